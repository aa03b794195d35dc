package retention

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

type fakeStore struct {
	mu            sync.Mutex
	hourlyCalls   int
	dailyCalls    int
	pruneCalls    int
	lastRawBefore time.Time
}

func (f *fakeStore) RollupHourly(ctx context.Context, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hourlyCalls++
	return nil
}

func (f *fakeStore) RollupDaily(ctx context.Context, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCalls++
	return nil
}

func (f *fakeStore) PruneMetrics(ctx context.Context, rawBefore, hourlyBefore, dailyBefore time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneCalls++
	f.lastRawBefore = rawBefore
	return nil
}

func (f *fakeStore) snapshot() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hourlyCalls, f.dailyCalls, f.pruneCalls
}

func TestSweepComputesCutoffsFromConfig(t *testing.T) {
	store := &fakeStore{}
	cfg := types.RetentionConfig{RawDays: "7d", HourlyDays: "4w", DailyDays: "1y"}
	s := New(store, cfg)

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.sweep(context.Background(), now))

	_, _, prunes := store.snapshot()
	assert.Equal(t, 1, prunes)
	assert.Equal(t, now.Add(-7*24*time.Hour), store.lastRawBefore)
}

func TestSweepFailsOnInvalidDurationString(t *testing.T) {
	store := &fakeStore{}
	cfg := types.RetentionConfig{RawDays: "bogus", HourlyDays: "4w", DailyDays: "1y"}
	s := New(store, cfg)

	err := s.sweep(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestRunTickerFiresOnEachTickAndStopsOnStopCh(t *testing.T) {
	store := &fakeStore{}
	s := New(store, types.RetentionConfig{RawDays: "7d", HourlyDays: "4w", DailyDays: "1y"})

	var calls int
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		s.runTicker(context.Background(), 5*time.Millisecond, "test task", func(ctx context.Context, now time.Time) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		})
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	close(s.stopCh)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, calls, 0)
}

func TestStartRunsAllThreeTasksAndStopStopsThem(t *testing.T) {
	store := &fakeStore{}
	s := New(store, types.RetentionConfig{RawDays: "7d", HourlyDays: "4w", DailyDays: "1y"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Stop()
}
