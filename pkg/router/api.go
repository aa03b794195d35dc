package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/infractl/pkg/types"
)

const defaultAPILimit = 100

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryTime(r *http.Request, key string, def time.Time) time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return def
	}
	return t
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.Store.AgentStatuses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load agent statuses")
		return
	}
	byName := make(map[string]types.AgentStatus, len(statuses))
	for _, st := range statuses {
		byName[st.AgentName] = st
	}

	type agentView struct {
		Name    string             `json:"name"`
		Address string             `json:"address"`
		Status  *types.AgentStatus `json:"status,omitempty"`
	}
	out := make([]agentView, 0, len(s.deps.Config.Agents))
	for _, a := range s.deps.Config.Agents {
		view := agentView{Name: a.Name, Address: a.Address}
		if st, ok := byName[a.Name]; ok {
			v := st
			view.Status = &v
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAgentStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.Store.AgentStatuses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load agent statuses")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, err := s.deps.Store.AgentStatusByName(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePushAgentStatus(w http.ResponseWriter, r *http.Request) {
	var status types.AgentStatus
	if err := decodeJSON(r, &status); err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent status body")
		return
	}
	if status.LastSeen.IsZero() {
		status.LastSeen = time.Now().UTC()
	}
	if err := s.deps.Store.UpsertAgentStatus(r.Context(), status); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record agent status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handlePushMetricSample(w http.ResponseWriter, r *http.Request) {
	var sample types.MetricSample
	if err := decodeJSON(r, &sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metric sample body")
		return
	}
	if sample.CollectedAt.IsZero() {
		sample.CollectedAt = time.Now().UTC()
	}
	if err := s.deps.Store.InsertRawMetric(r.Context(), sample); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record metric sample")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	agent := r.URL.Query().Get("agent")
	limit := queryInt(r, "limit", defaultAPILimit)
	to := queryTime(r, "to", time.Now().UTC())
	from := queryTime(r, "from", to.Add(-24*time.Hour))
	metricType := r.URL.Query().Get("type")

	switch metricType {
	case "hourly":
		rows, err := s.deps.Store.AggregatedMetrics(r.Context(), types.PeriodHourly, agent, from, to, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load hourly metrics")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	case "daily":
		rows, err := s.deps.Store.AggregatedMetrics(r.Context(), types.PeriodDaily, agent, from, to, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load daily metrics")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	default:
		rows, err := s.deps.Store.RawMetrics(r.Context(), agent, from, to, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load raw metrics")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func (s *Server) handleDeployHistory(w http.ResponseWriter, r *http.Request) {
	agent := r.URL.Query().Get("agent")
	limit := queryInt(r, "limit", defaultAPILimit)
	rows, err := s.deps.Store.DeployHistory(r.Context(), agent, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load deploy history")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultAPILimit)
	rows, err := s.deps.Store.SuspiciousRequests(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load suspicious requests")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Config.Deployments)
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, d := range s.deps.Config.Deployments {
		if d.Name == name {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	writeError(w, http.StatusNotFound, "deployment not found")
}
