package router

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/infractl/pkg/admission"
	"github.com/cuemby/infractl/pkg/deploy"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/queue"
	"github.com/cuemby/infractl/pkg/token"
	"github.com/cuemby/infractl/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

type fakeStore struct {
	statuses []types.AgentStatus
	pushed   []types.AgentStatus
	raw      []types.MetricSample
	deploys  []types.DeployRecord
	suspects []types.SuspiciousRequest
}

func (f *fakeStore) AgentStatuses(ctx context.Context) ([]types.AgentStatus, error) {
	return f.statuses, nil
}

func (f *fakeStore) AgentStatusByName(ctx context.Context, name string) (types.AgentStatus, error) {
	for _, s := range f.statuses {
		if s.AgentName == name {
			return s, nil
		}
	}
	return types.AgentStatus{}, errors.New("agent not found")
}

func (f *fakeStore) UpsertAgentStatus(ctx context.Context, s types.AgentStatus) error {
	f.pushed = append(f.pushed, s)
	return nil
}

func (f *fakeStore) InsertRawMetric(ctx context.Context, m types.MetricSample) error {
	f.raw = append(f.raw, m)
	return nil
}

func (f *fakeStore) RawMetrics(ctx context.Context, agent string, from, to time.Time, limit int) ([]types.MetricSample, error) {
	return f.raw, nil
}

func (f *fakeStore) AggregatedMetrics(ctx context.Context, period types.AggregationPeriod, agent string, from, to time.Time, limit int) ([]types.AggregatedMetric, error) {
	return nil, nil
}

func (f *fakeStore) DeployHistory(ctx context.Context, agent string, limit int) ([]types.DeployRecord, error) {
	return f.deploys, nil
}

func (f *fakeStore) SuspiciousRequests(ctx context.Context, limit int) ([]types.SuspiciousRequest, error) {
	return f.suspects, nil
}

type fakeCollector struct {
	sample types.MetricSample
}

func (f *fakeCollector) Sample(ctx context.Context, agentName string) types.MetricSample {
	f.sample.AgentName = agentName
	return f.sample
}

func newTestServer(t *testing.T, mode types.Mode, cfg *types.Config, store Store) (*Server, *token.Service) {
	t.Helper()
	tokens := token.NewService("a-very-long-test-secret-value-ok")
	pipeline, err := admission.NewPipeline(admission.Config{RateLimit: 1000, RateWindow: time.Minute}, tokens, nil)
	require.NoError(t, err)

	deps := Deps{
		Mode:      mode,
		Config:    cfg,
		Pipeline:  pipeline,
		Queue:     queue.New(queue.DefaultMaxHistory),
		Executor:  deploy.NewExecutor(),
		Store:     store,
		Tokens:    tokens,
		Version:   "test",
		StartedAt: time.Now(),
	}
	return New(deps), tokens
}

func bearerRequest(tokens *token.Service, method, path string, body []byte) *http.Request {
	tok, _ := tokens.Generate("tester", time.Hour)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestRootIsPlaintextAndUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t, types.ModeHome, &types.Config{}, &fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "infractl", rec.Body.String())
}

func TestHealthReportsMode(t *testing.T) {
	s, _ := newTestServer(t, types.ModeAgent, &types.Config{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload types.HealthPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, types.ModeAgent, payload.Mode)
}

func TestHealthIncludesSystemSampleWhenCollectorSet(t *testing.T) {
	s, _ := newTestServer(t, types.ModeAgent, &types.Config{}, nil)
	s.deps.Collector = &fakeCollector{sample: types.MetricSample{CPUUsage: 42.5, MemoryUsagePercent: 70}}
	s.deps.AgentName = "agent-1"

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var payload types.HealthPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.NotNil(t, payload.System)
	assert.InDelta(t, 42.5, payload.System.CPUUsagePercent, 0.001)
	assert.Nil(t, payload.Docker)
}

func TestPushMetricSampleStoresSample(t *testing.T) {
	store := &fakeStore{}
	s, tokens := newTestServer(t, types.ModeHome, &types.Config{}, store)

	body, _ := json.Marshal(types.MetricSample{AgentName: "agent-1", CPUUsage: 10})
	req := bearerRequest(tokens, http.MethodPost, "/api/metrics", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.raw, 1)
	assert.Equal(t, "agent-1", store.raw[0].AgentName)
}

func TestDeployWebhookEnqueuesJob(t *testing.T) {
	cfg := &types.Config{Deployments: []types.DeploymentSpec{{Name: "web", Kind: types.KindGitPull}}}
	s, tokens := newTestServer(t, types.ModeHome, cfg, &fakeStore{})

	req := bearerRequest(tokens, http.MethodPost, "/webhook/deploy/web", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["job_id"])

	assert.Equal(t, 1, s.deps.Queue.Len())
}

func TestDeployWebhookUnknownDeploymentReturns404(t *testing.T) {
	cfg := &types.Config{}
	s, tokens := newTestServer(t, types.ModeHome, cfg, &fakeStore{})

	req := bearerRequest(tokens, http.MethodPost, "/webhook/deploy/missing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeployWebhookRejectsBadHMACSignature(t *testing.T) {
	cfg := &types.Config{
		Deployments: []types.DeploymentSpec{{Name: "web", Kind: types.KindGitPull}},
		Webhooks:    []types.WebhookEndpoint{{Name: "web", Secret: "topsecret"}},
	}
	s, tokens := newTestServer(t, types.ModeHome, cfg, &fakeStore{})

	req := bearerRequest(tokens, http.MethodPost, "/webhook/deploy/web", []byte(`{}`))
	req.Header.Set("x-hub-signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeployWebhookAcceptsValidHMACSignature(t *testing.T) {
	cfg := &types.Config{
		Deployments: []types.DeploymentSpec{{Name: "web", Kind: types.KindGitPull}},
		Webhooks:    []types.WebhookEndpoint{{Name: "web", Secret: "topsecret"}},
	}
	s, tokens := newTestServer(t, types.ModeHome, cfg, &fakeStore{})

	body := []byte(`{"ref":"main"}`)
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := bearerRequest(tokens, http.MethodPost, "/webhook/deploy/web", body)
	req.Header.Set("x-hub-signature-256", sig)
	req.Header.Set("x-github-event", "push")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	pending := s.deps.Queue.QueueStatus()
	require.Len(t, pending, 1)
	assert.Equal(t, "github", pending[0].TriggerSource)
}

func TestQueueStatusEndpointReportsPendingAndHistory(t *testing.T) {
	cfg := &types.Config{Deployments: []types.DeploymentSpec{{Name: "web", Kind: types.KindGitPull}}}
	s, tokens := newTestServer(t, types.ModeHome, cfg, &fakeStore{})

	req := bearerRequest(tokens, http.MethodPost, "/webhook/deploy/web", nil)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, bearerRequest(tokens, http.MethodGet, "/webhook/queue", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["pending"])
}

func TestJobStatusEndpointReturns404ForUnknownID(t *testing.T) {
	s, tokens := newTestServer(t, types.ModeHome, &types.Config{}, &fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, bearerRequest(tokens, http.MethodGet, "/webhook/status/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentOnlyModeHidesHomeAPIRoutes(t *testing.T) {
	s, tokens := newTestServer(t, types.ModeAgent, &types.Config{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, bearerRequest(tokens, http.MethodGet, "/api/deployments", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDeploymentsReturnsConfiguredSpecs(t *testing.T) {
	cfg := &types.Config{Deployments: []types.DeploymentSpec{{Name: "web", Kind: types.KindGitPull}}}
	s, tokens := newTestServer(t, types.ModeHome, cfg, &fakeStore{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, bearerRequest(tokens, http.MethodGet, "/api/deployments", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var specs []types.DeploymentSpec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &specs))
	require.Len(t, specs, 1)
	assert.Equal(t, "web", specs[0].Name)
}

func TestPushAgentStatusStoresRecord(t *testing.T) {
	store := &fakeStore{}
	s, tokens := newTestServer(t, types.ModeHome, &types.Config{}, store)

	body, _ := json.Marshal(types.AgentStatus{AgentName: "agent-1", Status: "healthy"})
	req := bearerRequest(tokens, http.MethodPost, "/api/agents/status", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.pushed, 1)
	assert.Equal(t, "agent-1", store.pushed[0].AgentName)
}

func TestMonitoringServesHTMLWithToken(t *testing.T) {
	s, _ := newTestServer(t, types.ModeHome, &types.Config{}, &fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/monitoring", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "window.INFRACTL_TOKEN")
}

func TestMissingBearerTokenRejectsAPIRequest(t *testing.T) {
	s, _ := newTestServer(t, types.ModeHome, &types.Config{}, &fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/deployments", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpointIsUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t, types.ModeHome, &types.Config{}, &fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
