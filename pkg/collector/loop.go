package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/types"
)

// DefaultInterval is used when a Loop is built with interval <= 0.
const DefaultInterval = 30 * time.Second

// RawMetricInserter is the subset of *storage.Engine the collection loop
// needs on Home, where a sample is written straight to local storage.
type RawMetricInserter interface {
	InsertRawMetric(ctx context.Context, m types.MetricSample) error
}

// HomeReporter is the subset of *agentclient.Client the collection loop
// needs on Agent, which carries no persistent storage of its own and so
// reports every sample and status to Home instead.
type HomeReporter interface {
	PushMetricSample(ctx context.Context, sample types.MetricSample) error
	PushAgentStatus(ctx context.Context, status types.AgentStatus) error
}

// Loop samples a Collector on a fixed interval and routes the result:
// Home writes straight to its own storage, Agent pushes the sample plus
// an agent_status upsert to Home, both on the same cadence (spec §1:
// "Agents push at Agent-local intervals"). Exactly one of store/reporter
// is expected to be non-nil, matching the node's Mode.
type Loop struct {
	collector *Collector
	agentName string
	version   string
	startedAt time.Time
	interval  time.Duration
	store     RawMetricInserter
	reporter  HomeReporter
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewLoop builds a Loop. interval <= 0 uses DefaultInterval.
func NewLoop(c *Collector, agentName, version string, startedAt time.Time, interval time.Duration, store RawMetricInserter, reporter HomeReporter) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		collector: c,
		agentName: agentName,
		version:   version,
		startedAt: startedAt,
		interval:  interval,
		store:     store,
		reporter:  reporter,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the ticker loop as a goroutine. ctx cancellation or Stop
// ends it.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	logger := log.WithComponent("collector")
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick(ctx, logger)
		}
	}
}

func (l *Loop) tick(ctx context.Context, logger zerolog.Logger) {
	sample := l.collector.Sample(ctx, l.agentName)

	if l.store != nil {
		if err := l.store.InsertRawMetric(ctx, sample); err != nil {
			logger.Error().Err(err).Msg("insert raw metric failed")
		}
	}
	if l.reporter == nil {
		return
	}
	if err := l.reporter.PushMetricSample(ctx, sample); err != nil {
		logger.Error().Err(err).Msg("push metric sample failed")
	}
	uptime := int64(time.Since(l.startedAt).Seconds())
	status := types.AgentStatus{
		AgentName:     l.agentName,
		LastSeen:      time.Now().UTC(),
		Status:        "online",
		Version:       l.version,
		UptimeSeconds: &uptime,
	}
	if err := l.reporter.PushAgentStatus(ctx, status); err != nil {
		logger.Error().Err(err).Msg("push agent status failed")
	}
}
