package retention

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/storage"
	"github.com/cuemby/infractl/pkg/telemetry"
	"github.com/cuemby/infractl/pkg/types"
)

var _ Storage = (*storage.Engine)(nil)

const (
	hourlyInterval = time.Hour
	dailyInterval  = 24 * time.Hour
	sweepInterval  = 6 * time.Hour
)

// Storage is the subset of *storage.Engine the retention tasks need.
type Storage interface {
	RollupHourly(ctx context.Context, now time.Time) error
	RollupDaily(ctx context.Context, now time.Time) error
	PruneMetrics(ctx context.Context, rawBefore, hourlyBefore, dailyBefore time.Time) error
}

// Scheduler runs the hourly roll-up, daily roll-up, and retention sweep as
// three independent timer-driven tasks.
type Scheduler struct {
	store  Storage
	cfg    types.RetentionConfig
	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Scheduler. cfg's RawDays/HourlyDays/DailyDays are parsed
// lazily on each sweep so a malformed value only fails that sweep, not
// startup.
func New(store Storage, cfg types.RetentionConfig) *Scheduler {
	return &Scheduler{
		store:  store,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the three tasks as goroutines. ctx cancellation and Stop
// both end them.
func (s *Scheduler) Start(ctx context.Context) {
	var done sync.WaitGroup
	done.Add(3)
	go func() { defer done.Done(); s.runHourly(ctx) }()
	go func() { defer done.Done(); s.runDaily(ctx) }()
	go func() { defer done.Done(); s.runSweep(ctx) }()

	go func() {
		done.Wait()
		close(s.doneCh)
	}()
}

// Stop signals all three tasks to exit and waits for them to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) runHourly(ctx context.Context) {
	s.runTicker(ctx, hourlyInterval, "hourly rollup", func(ctx context.Context, now time.Time) error {
		return s.store.RollupHourly(ctx, now)
	})
}

func (s *Scheduler) runDaily(ctx context.Context) {
	s.runTicker(ctx, dailyInterval, "daily rollup", func(ctx context.Context, now time.Time) error {
		return s.store.RollupDaily(ctx, now)
	})
}

func (s *Scheduler) runSweep(ctx context.Context) {
	s.runTicker(ctx, sweepInterval, "retention sweep", func(ctx context.Context, now time.Time) error {
		return s.sweep(ctx, now)
	})
}

func (s *Scheduler) sweep(ctx context.Context, now time.Time) error {
	rawTTL, err := ParseRetentionDuration(s.cfg.RawDays)
	if err != nil {
		return err
	}
	hourlyTTL, err := ParseRetentionDuration(s.cfg.HourlyDays)
	if err != nil {
		return err
	}
	dailyTTL, err := ParseRetentionDuration(s.cfg.DailyDays)
	if err != nil {
		return err
	}
	return s.store.PruneMetrics(ctx, now.Add(-rawTTL), now.Add(-hourlyTTL), now.Add(-dailyTTL))
}

// runTicker fires fn once per interval until ctx is cancelled or Stop is
// called, logging any failure without stopping the schedule.
func (s *Scheduler) runTicker(ctx context.Context, interval time.Duration, name string, fn func(context.Context, time.Time) error) {
	logger := log.WithComponent("retention")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			timer := telemetry.NewTimer()
			err := fn(ctx, time.Now().UTC())
			timer.ObserveDurationVec(telemetry.RetentionSweepDuration, name)
			if err != nil {
				logger.Error().Err(err).Str("task", name).Msg("retention task failed")
			}
		}
	}
}
