package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/infractl/pkg/admission"
	"github.com/cuemby/infractl/pkg/agentclient"
	"github.com/cuemby/infractl/pkg/deploy"
	"github.com/cuemby/infractl/pkg/queue"
	"github.com/cuemby/infractl/pkg/storage"
	"github.com/cuemby/infractl/pkg/telemetry"
	"github.com/cuemby/infractl/pkg/token"
	"github.com/cuemby/infractl/pkg/types"
)

var _ Store = (*storage.Engine)(nil)

// Store is the subset of *storage.Engine the Home-only API needs.
type Store interface {
	AgentStatuses(ctx context.Context) ([]types.AgentStatus, error)
	AgentStatusByName(ctx context.Context, name string) (types.AgentStatus, error)
	UpsertAgentStatus(ctx context.Context, s types.AgentStatus) error
	InsertRawMetric(ctx context.Context, m types.MetricSample) error
	RawMetrics(ctx context.Context, agent string, from, to time.Time, limit int) ([]types.MetricSample, error)
	AggregatedMetrics(ctx context.Context, period types.AggregationPeriod, agent string, from, to time.Time, limit int) ([]types.AggregatedMetric, error)
	DeployHistory(ctx context.Context, agent string, limit int) ([]types.DeployRecord, error)
	SuspiciousRequests(ctx context.Context, limit int) ([]types.SuspiciousRequest, error)
}

// MetricsCollector is the subset of *collector.Collector /health reads
// from to populate its "system"/"docker" fields.
type MetricsCollector interface {
	Sample(ctx context.Context, agentName string) types.MetricSample
}

// Deps bundles everything a Server needs to build its routes.
type Deps struct {
	Mode        types.Mode
	Config      *types.Config
	Pipeline    *admission.Pipeline
	Queue       *queue.Queue
	Executor    *deploy.Executor
	Store       Store               // nil on Agent
	AgentClient *agentclient.Client // nil on Home
	Collector   MetricsCollector
	AgentName   string
	Tokens      *token.Service
	Version     string
	StartedAt   time.Time
}

// Server holds the routed chi.Mux plus the dependencies its handlers close
// over.
type Server struct {
	deps Deps
	mux  *chi.Mux
}

// New builds a Server with every route mounted and wrapped by the
// admission pipeline.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.mux = chi.NewRouter()
	s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler ready to pass to
// http.Server.
func (s *Server) Handler() http.Handler {
	return s.deps.Pipeline.Wrap(s.mux)
}

func (s *Server) routes() {
	s.mux.Get("/", s.handleRoot)
	s.mux.Get("/health", s.handleHealth)
	s.mux.Handle("/metrics", telemetry.Handler())

	s.mux.Post("/webhook/deploy/{name}", s.handleDeployWebhook)
	s.mux.Post("/webhook/shutdown/{name}", s.handleShutdownWebhook)
	s.mux.Get("/webhook/status/{id}", s.handleJobStatus)
	s.mux.Get("/webhook/queue", s.handleQueueStatus)

	if s.deps.Mode == types.ModeHome {
		s.mux.Get("/monitoring", s.handleMonitoring)
		s.mux.Get("/api/agents", s.handleListAgents)
		s.mux.Get("/api/agents/statuses", s.handleAgentStatuses)
		s.mux.Get("/api/agents/{name}/status", s.handleAgentStatus)
		s.mux.Post("/api/agents/status", s.handlePushAgentStatus)
		s.mux.Get("/api/metrics", s.handleMetrics)
		s.mux.Post("/api/metrics", s.handlePushMetricSample)
		s.mux.Get("/api/deploys", s.handleDeployHistory)
		s.mux.Get("/api/suspicious", s.handleSuspicious)
		s.mux.Get("/api/deployments", s.handleListDeployments)
		s.mux.Get("/api/deployments/{name}", s.handleGetDeployment)
	}
}
