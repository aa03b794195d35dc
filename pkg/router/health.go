package router

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/infractl/pkg/types"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("infractl"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := types.HealthPayload{
		Status:        "ok",
		Version:       s.deps.Version,
		UptimeSeconds: int64(time.Since(s.deps.StartedAt).Seconds()),
		Mode:          s.deps.Mode,
	}
	if s.deps.Collector != nil {
		sample := s.deps.Collector.Sample(r.Context(), s.deps.AgentName)
		payload.System = &types.SystemInfo{
			CPUUsagePercent:    sample.CPUUsage,
			MemoryUsagePercent: sample.MemoryUsagePercent,
			MemoryUsedBytes:    sample.MemoryUsed,
			MemoryTotalBytes:   sample.MemoryTotal,
			Load1:              sample.Load1,
			Load5:              sample.Load5,
			Load15:             sample.Load15,
			DiskUsagePercent:   sample.DiskUsagePercent,
		}
		if sample.ContainerCount != nil {
			payload.Docker = &types.DockerInfo{ContainerCount: *sample.ContainerCount}
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(r.Body).Decode(v)
}
