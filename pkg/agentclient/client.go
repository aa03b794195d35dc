package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/token"
	"github.com/cuemby/infractl/pkg/types"
)

const defaultTimeout = 10 * time.Second

// tokenTTL is how long the bearer token minted for each outbound call is
// valid for. A short-lived, per-call token rather than one generated once
// and cached keeps an Agent from holding a long-lived credential in memory.
const tokenTTL = time.Hour

// Client is the HTTP client an Agent uses to reach its Home. Home has no
// equivalent client: it never calls out to Agents over HTTP.
type Client struct {
	baseURL    string
	agentName  string
	tokens     *token.Service
	httpClient *http.Client
}

// New builds a Client. baseURL is Home's address (e.g. "https://home.example.com"),
// agentName is used as the bearer token's subject on every request this
// client makes.
func New(baseURL, agentName string, tokens *token.Service) *Client {
	return &Client{
		baseURL:   baseURL,
		agentName: agentName,
		tokens:    tokens,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// FetchDeployment asks Home for a deployment spec this Agent doesn't have
// locally configured, used as the deploy webhook handler's fallback path.
func (c *Client) FetchDeployment(ctx context.Context, name string) (types.DeploymentSpec, error) {
	url := fmt.Sprintf("%s/api/deployments/%s", c.baseURL, name)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.DeploymentSpec{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.DeploymentSpec{}, errs.Wrap(errs.Deployment, err, "agentclient: fetch deployment")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.DeploymentSpec{}, errs.New(errs.Deployment, fmt.Sprintf("agentclient: fetch deployment %q: home returned %d", name, resp.StatusCode))
	}

	var spec types.DeploymentSpec
	if err := json.NewDecoder(resp.Body).Decode(&spec); err != nil {
		return types.DeploymentSpec{}, errs.Wrap(errs.Deployment, err, "agentclient: decode deployment response")
	}
	return spec, nil
}

// PushAgentStatus reports this Agent's current status to Home, on the same
// cadence as its local metrics collection.
func (c *Client) PushAgentStatus(ctx context.Context, status types.AgentStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return errs.Wrap(errs.Deployment, err, "agentclient: marshal agent status")
	}

	url := fmt.Sprintf("%s/api/agents/status", c.baseURL)
	req, err := c.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.Deployment, err, "agentclient: push agent status")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Deployment, fmt.Sprintf("agentclient: push agent status: home returned %d", resp.StatusCode))
	}
	return nil
}

// PushMetricSample reports one raw telemetry sample to Home. Agents carry
// no persistent storage of their own (§1 Non-goals), so every locally
// collected sample is forwarded here instead of inserted anywhere local.
func (c *Client) PushMetricSample(ctx context.Context, sample types.MetricSample) error {
	body, err := json.Marshal(sample)
	if err != nil {
		return errs.Wrap(errs.Deployment, err, "agentclient: marshal metric sample")
	}

	url := fmt.Sprintf("%s/api/metrics", c.baseURL)
	req, err := c.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.Deployment, err, "agentclient: push metric sample")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Deployment, fmt.Sprintf("agentclient: push metric sample: home returned %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errs.Wrap(errs.Deployment, err, "agentclient: build request")
	}

	tok, err := c.tokens.Generate(c.agentName, tokenTTL)
	if err != nil {
		return nil, errs.Wrap(errs.Deployment, err, "agentclient: generate bearer token")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return req, nil
}
