package router

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/cuemby/infractl/pkg/log"
)

// monitoringTokenTTL is how long the token injected into the dashboard
// page stays valid; the page's own JS re-fetches it is out of scope here.
const monitoringTokenTTL = time.Hour

var monitoringPage = template.Must(template.New("monitoring").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>infractl</title>
</head>
<body>
  <div id="app">loading...</div>
  <script>
    window.INFRACTL_TOKEN = {{.Token}};
  </script>
  <script src="/static/dashboard.js"></script>
</body>
</html>
`))

// handleMonitoring serves the dashboard shell with a fresh one-hour bearer
// token injected for its own API calls. The dashboard's JS bundle itself is
// an external asset, not built here.
func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	tok, err := s.deps.Tokens.Generate("monitoring-dashboard", monitoringTokenTTL)
	if err != nil {
		log.WithComponent("router").Error().Err(err).Msg("failed to mint dashboard token")
		writeError(w, http.StatusInternalServerError, "failed to prepare dashboard")
		return
	}

	quoted, err := json.Marshal(tok)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to prepare dashboard")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = monitoringPage.Execute(w, struct{ Token template.JS }{Token: template.JS(quoted)})
}
