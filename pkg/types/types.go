package types

import (
	"net"
	"time"
)

// Mode is the role a node runs in.
type Mode string

const (
	ModeHome  Mode = "home"
	ModeAgent Mode = "agent"
)

// Config is the immutable, validated configuration loaded once at startup.
type Config struct {
	Mode        Mode              `yaml:"mode"`
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Deployments []DeploymentSpec  `yaml:"deployments"`
	Webhooks    []WebhookEndpoint `yaml:"webhooks"`
	Storage     StorageConfig     `yaml:"storage"`
	Retention   RetentionConfig   `yaml:"retention"`
	Updater     UpdaterConfig     `yaml:"updater"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Agents      []AgentEndpoint   `yaml:"agents"`
}

// ServerConfig controls the bind address and network isolation.
type ServerConfig struct {
	BindAddr      string   `yaml:"bind_addr"`
	Port          int      `yaml:"port"`
	IsolationMode bool     `yaml:"isolation_mode"`
	AllowedCIDRs  []string `yaml:"allowed_cidrs"`
	HomeAddress   string   `yaml:"home_address"`
}

// AuthConfig holds the symmetric secret and token/webhook configuration.
type AuthConfig struct {
	Secret          string            `yaml:"secret"`
	DefaultTokenTTL time.Duration     `yaml:"default_token_ttl"`
	WebhookSecrets  map[string]string `yaml:"webhook_secrets"`
}

// AgentEndpoint is a configured remote agent address reachable from Home.
type AgentEndpoint struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// StorageConfig controls the embedded relational store and in-memory
// queue history bound.
type StorageConfig struct {
	Path       string `yaml:"path"`
	MaxHistory int    `yaml:"max_history"`
}

// RetentionConfig controls roll-up and pruning durations, as strings like
// "7d", "4w", "1m", "1y" (see ParseRetentionDuration).
type RetentionConfig struct {
	RawDays    string `yaml:"raw_days"`
	HourlyDays string `yaml:"hourly_days"`
	DailyDays  string `yaml:"daily_days"`
}

// MetricsConfig controls the local host-telemetry collection loop. The
// spec leaves the Home-pulls-vs-Agent-pushes choice agnostic; this fixes
// the cadence at which each node samples and reports its own metrics.
type MetricsConfig struct {
	CollectEvery time.Duration `yaml:"collect_every"`
}

// UpdaterConfig controls the self-update and config-sync loop.
type UpdaterConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Repo       string        `yaml:"repo"`
	Prerelease bool          `yaml:"prerelease"`
	CheckEvery time.Duration `yaml:"check_every"`
	ConfigURL  string        `yaml:"config_url"`
}

// DeploymentKind selects the main step of the deploy executor.
type DeploymentKind string

const (
	KindGitPull      DeploymentKind = "git_pull"
	KindDockerPull   DeploymentKind = "docker_pull"
	KindCustomScript DeploymentKind = "custom_script"
)

// ContainerStrategy controls how docker_pull brings services back up.
type ContainerStrategy string

const (
	StrategyDefault       ContainerStrategy = "default"
	StrategyForceRecreate ContainerStrategy = "force_recreate"
	StrategyRestart       ContainerStrategy = "restart"
)

// DeploymentSpec is a named deployment recipe, identified by Name.
type DeploymentSpec struct {
	Name string         `yaml:"name"`
	Kind DeploymentKind `yaml:"kind"`

	Path   string `yaml:"path,omitempty"`
	Repo   string `yaml:"repo,omitempty"`
	Branch string `yaml:"branch,omitempty"`
	Remote string `yaml:"remote,omitempty"`
	SSHKey string `yaml:"ssh_key,omitempty"`

	ComposeFile string   `yaml:"compose_file,omitempty"`
	Services    []string `yaml:"services,omitempty"`

	Script  string `yaml:"script,omitempty"`
	WorkDir string `yaml:"work_dir,omitempty"`
	User    string `yaml:"user,omitempty"`

	Env map[string]string `yaml:"env,omitempty"`

	PreCommands      []string `yaml:"pre_commands,omitempty"`
	PostCommands     []string `yaml:"post_commands,omitempty"`
	ShutdownCommands []string `yaml:"shutdown_commands,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
	Prune   bool          `yaml:"prune,omitempty"`

	FileFetch []string `yaml:"file_fetch,omitempty"`

	Triggers []string `yaml:"triggers,omitempty"`

	ContinueOnFailure bool              `yaml:"continue_on_failure,omitempty"`
	Strategy          ContainerStrategy `yaml:"strategy,omitempty"`
}

// WebhookEndpoint maps an incoming webhook path component to an optional
// per-webhook HMAC secret.
type WebhookEndpoint struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret,omitempty"`
}

// JobStatus is the deploy job lifecycle state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// DeployJob is one execution of a deployment. The spec is snapshotted at
// enqueue time so a concurrent config reload can't change semantics
// mid-flight.
type DeployJob struct {
	ID             string         `json:"id"`
	DeploymentName string         `json:"deployment_name"`
	AgentName      string         `json:"agent_name"`
	Spec           DeploymentSpec `json:"spec"`
	Status         JobStatus      `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	TriggerSource  string         `json:"trigger_source,omitempty"`
	Result         *DeployResult  `json:"result,omitempty"`
}

// DeployResult is the outcome of running a deploy job's executor phases.
type DeployResult struct {
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// MetricSample is a single raw telemetry reading pulled from an agent's
// collector.
type MetricSample struct {
	AgentName          string    `json:"agent_name"`
	CollectedAt        time.Time `json:"collected_at"`
	CPUUsage           float64   `json:"cpu_usage"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
	MemoryUsed         int64     `json:"memory_used"`
	MemoryTotal        int64     `json:"memory_total"`
	Load1              float64   `json:"load_1"`
	Load5              float64   `json:"load_5"`
	Load15             float64   `json:"load_15"`
	DiskUsagePercent   *float64  `json:"disk_usage_percent,omitempty"`
	ContainerCount     *int      `json:"container_count,omitempty"`
	RawPayload         []byte    `json:"raw_payload,omitempty"`
}

// AggregationPeriod distinguishes hourly from daily roll-ups.
type AggregationPeriod string

const (
	PeriodHourly AggregationPeriod = "hourly"
	PeriodDaily  AggregationPeriod = "daily"
)

// AggregatedMetric summarizes samples over a UTC-aligned bucket. The pair
// (AgentName, PeriodStart) is unique per table.
type AggregatedMetric struct {
	AgentName    string    `json:"agent_name"`
	PeriodStart  time.Time `json:"period_start"`
	AvgCPU       float64   `json:"avg_cpu"`
	MaxCPU       float64   `json:"max_cpu"`
	AvgMemory    float64   `json:"avg_memory"`
	MaxMemory    float64   `json:"max_memory"`
	AvgLoad1     float64   `json:"avg_load_1"`
	MaxLoad1     float64   `json:"max_load_1"`
	SamplesCount int       `json:"samples_count"`
}

// DeployRecord is the permanent log of one executed job, persisted by Home.
type DeployRecord struct {
	ID             string     `json:"id"`
	AgentName      string     `json:"agent_name"`
	DeploymentName string     `json:"deployment_name"`
	Kind           string     `json:"kind"`
	Status         JobStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	TriggerSource  string     `json:"trigger_source,omitempty"`
	CommitSHA      string     `json:"commit_sha,omitempty"`
	Output         string     `json:"output,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Suspicious-request reasons (see pkg/admission). invalid_jwt carries a
// ":<detail>" suffix built at the call site, so it has no constant here.
const (
	ReasonNetworkViolation = "network_violation"
	ReasonMissingAuth      = "missing_auth"
	ReasonMalformedAuth    = "malformed_auth_header"
	ReasonRateLimited      = "rate_limit_exceeded"
)

// SuspiciousRequest is persisted for every request the admission pipeline
// rejected.
type SuspiciousRequest struct {
	RecordedAt time.Time `json:"recorded_at"`
	SourceIP   string    `json:"source_ip"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Reason     string    `json:"reason"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Headers    string    `json:"headers,omitempty"`
}

// AgentStatus is the latest observed status for a named agent, keyed by
// AgentName with insert-or-replace semantics.
type AgentStatus struct {
	AgentName     string    `json:"agent_name"`
	LastSeen      time.Time `json:"last_seen"`
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	UptimeSeconds *int64    `json:"uptime_seconds,omitempty"`
}

// AgentAssignment is a sticky deployment-name -> agent-address mapping used
// by the Home CLI so `deploy --name N` can be re-invoked without repeating
// `--agent`.
type AgentAssignment struct {
	DeploymentName string `yaml:"deployment_name"`
	AgentAddress   string `yaml:"agent_address"`
}

// SystemInfo is the host-telemetry reading the metrics collector returns
// for GET /health's "system" field.
type SystemInfo struct {
	CPUUsagePercent    float64  `json:"cpu_usage_percent"`
	MemoryUsagePercent float64  `json:"memory_usage_percent"`
	MemoryUsedBytes    int64    `json:"memory_used_bytes"`
	MemoryTotalBytes   int64    `json:"memory_total_bytes"`
	Load1              float64  `json:"load_1"`
	Load5              float64  `json:"load_5"`
	Load15             float64  `json:"load_15"`
	DiskUsagePercent   *float64 `json:"disk_usage_percent,omitempty"`
}

// DockerInfo is the optional container-runtime reading for GET /health's
// "docker" field, present only when a docker daemon answered.
type DockerInfo struct {
	ContainerCount int `json:"container_count"`
}

// HealthPayload is the shape returned by GET /health.
type HealthPayload struct {
	Status        string      `json:"status"`
	Version       string      `json:"version"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Mode          Mode        `json:"mode"`
	System        *SystemInfo `json:"system"`
	Docker        *DockerInfo `json:"docker,omitempty"`
}

// ErrorResponse is the standard error body shape (§6 of the spec).
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ClientIP returns the bare client IP from a request's RemoteAddr, unless
// forwardedFor (already resolved by the caller) is non-empty.
func ClientIP(remoteAddr string, forwardedFor string) string {
	if forwardedFor != "" {
		return forwardedFor
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
