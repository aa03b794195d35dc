package router

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/types"
)

// localAgentName marks a job executed on the node that received it. Trigger
// children the worker fans out from such a job inherit the same name.
const localAgentName = "local"

// resolveSpec finds a deployment by name in local config, falling back to
// Home when this node is an Agent and has a Home address configured.
func (s *Server) resolveSpec(ctx context.Context, name string) (types.DeploymentSpec, bool) {
	for _, d := range s.deps.Config.Deployments {
		if d.Name == name {
			return d, true
		}
	}
	if s.deps.AgentClient != nil {
		spec, err := s.deps.AgentClient.FetchDeployment(ctx, name)
		if err == nil {
			return spec, true
		}
	}
	return types.DeploymentSpec{}, false
}

func (s *Server) webhookSecret(name string) string {
	for _, w := range s.deps.Config.Webhooks {
		if w.Name == name {
			return w.Secret
		}
	}
	return ""
}

// verifyWebhookSignature checks x-hub-signature-256 (HMAC-SHA256 hex,
// optionally "sha256="-prefixed) or x-gitlab-token (literal equality)
// against secret. A webhook with no configured secret is never verified.
func verifyWebhookSignature(r *http.Request, body []byte, secret string) bool {
	if secret == "" {
		return true
	}
	if sig := r.Header.Get("x-hub-signature-256"); sig != "" {
		return verifyHMAC(body, sig, secret)
	}
	if tok := r.Header.Get("x-gitlab-token"); tok != "" {
		return subtle.ConstantTimeCompare([]byte(tok), []byte(secret)) == 1
	}
	return false
}

func verifyHMAC(body []byte, signature, secret string) bool {
	sig := strings.TrimPrefix(signature, "sha256=")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	return hmac.Equal(sigBytes, expected)
}

// triggerSourceFromHeaders inspects the standard provider event headers to
// label how a deploy was initiated.
func triggerSourceFromHeaders(r *http.Request) string {
	switch {
	case r.Header.Get("x-github-event") != "":
		return "github"
	case r.Header.Get("x-gitlab-event") != "":
		return "gitlab"
	case r.Header.Get("x-event-key") != "":
		return "bitbucket"
	default:
		return "manual"
	}
}

func (s *Server) handleDeployWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	spec, ok := s.resolveSpec(r.Context(), name)
	if !ok {
		writeError(w, http.StatusNotFound, "deployment not found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if secret := s.webhookSecret(name); secret != "" {
		if !verifyWebhookSignature(r, body, secret) {
			writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}

	now := time.Now().UTC()
	job := &types.DeployJob{
		ID:             uuid.NewString(),
		DeploymentName: name,
		AgentName:      localAgentName,
		Spec:           spec,
		Status:         types.JobPending,
		CreatedAt:      now,
		TriggerSource:  triggerSourceFromHeaders(r),
	}
	s.deps.Queue.Enqueue(job)

	log.WithComponent("router").Info().
		Str("deployment", name).
		Str("job_id", job.ID).
		Str("trigger_source", job.TriggerSource).
		Msg("deploy job enqueued")

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "deploy job enqueued",
		"job_id":  job.ID,
	})
}

func (s *Server) handleShutdownWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	spec, ok := s.resolveSpec(r.Context(), name)
	if !ok {
		writeError(w, http.StatusNotFound, "deployment not found")
		return
	}

	result := s.deps.Executor.Shutdown(r.Context(), spec)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": result.Success,
		"message": result.Output,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.deps.Queue.GetJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	pending := s.deps.Queue.QueueStatus()
	history := s.deps.Queue.History(0)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": len(pending),
		"jobs":    pending,
		"history": history,
	})
}
