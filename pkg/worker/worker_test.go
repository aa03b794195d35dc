package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/infractl/pkg/deploy"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/queue"
	"github.com/cuemby/infractl/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeStore struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (f *fakeStore) InsertDeployHistory(ctx context.Context, r types.DeployRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, r.ID)
	return nil
}

func (f *fakeStore) FinishDeployHistory(ctx context.Context, id string, status types.JobStatus, completedAt time.Time, durationMs int64, output, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, id)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerRunsJobAndRecordsHomeHistory(t *testing.T) {
	q := queue.New(0)
	store := &fakeStore{}
	w := New(types.ModeHome, q, deploy.NewExecutor(), store, nil, "agent-1")

	job := &types.DeployJob{
		ID:             "job-1",
		DeploymentName: "d",
		Spec:           types.DeploymentSpec{Name: "d", Kind: types.KindCustomScript, Script: "true"},
		CreatedAt:      time.Now(),
	}
	q.Enqueue(job)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.finished) == 1
	})

	got, found := q.GetJob("job-1")
	require.True(t, found)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Contains(t, store.started, "job-1")
}

func TestWorkerFansOutTriggersOnUnskippedSuccess(t *testing.T) {
	q := queue.New(0)
	deployments := []types.DeploymentSpec{
		{Name: "parent", Kind: types.KindCustomScript, Script: "true", Triggers: []string{"child"}},
		{Name: "child", Kind: types.KindCustomScript, Script: "true"},
	}
	w := New(types.ModeAgent, q, deploy.NewExecutor(), nil, deployments, "")

	q.Enqueue(&types.DeployJob{
		ID: "job-parent", DeploymentName: "parent", Spec: deployments[0], CreatedAt: time.Now(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	waitFor(t, func() bool {
		for _, j := range q.QueueStatus() {
			if j.DeploymentName == "child" {
				return true
			}
		}
		for _, j := range q.History(50) {
			if j.DeploymentName == "child" {
				return true
			}
		}
		return false
	})
	assert.True(t, jobStatusIsTerminalInHistory(q, "job-parent"))
}

func jobStatusIsTerminalInHistory(q *queue.Queue, id string) bool {
	for _, j := range q.History(50) {
		if j.ID == id {
			return true
		}
	}
	return false
}

func TestFanOutStopsOnMissingTriggerWithoutContinueOnFailure(t *testing.T) {
	q := queue.New(0)
	deployments := []types.DeploymentSpec{
		{Name: "parent", Triggers: []string{"missing", "child"}},
		{Name: "child"},
	}
	w := New(types.ModeAgent, q, deploy.NewExecutor(), nil, deployments, "")

	parentJob := &types.DeployJob{DeploymentName: "parent", Spec: deployments[0]}
	w.fanOutTriggers(parentJob, discardLogger())

	require.Equal(t, 0, q.Len())
}

func TestFanOutContinuesPastMissingTriggerWhenAllowed(t *testing.T) {
	q := queue.New(0)
	deployments := []types.DeploymentSpec{
		{Name: "parent", Triggers: []string{"missing", "child"}, ContinueOnFailure: true},
		{Name: "child"},
	}
	w := New(types.ModeAgent, q, deploy.NewExecutor(), nil, deployments, "")

	parentJob := &types.DeployJob{DeploymentName: "parent", Spec: deployments[0]}
	w.fanOutTriggers(parentJob, discardLogger())

	require.Equal(t, 1, q.Len())
}
