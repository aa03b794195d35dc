package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/infractl/pkg/deploy"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/queue"
	"github.com/cuemby/infractl/pkg/storage"
	"github.com/cuemby/infractl/pkg/types"
)

// PollInterval is the queue poll cadence when idle.
const PollInterval = 100 * time.Millisecond

// Storage is the subset of *storage.Engine the worker needs, narrowed so
// tests can substitute a fake.
type Storage interface {
	InsertDeployHistory(ctx context.Context, r types.DeployRecord) error
	FinishDeployHistory(ctx context.Context, id string, status types.JobStatus, completedAt time.Time, durationMs int64, output, errMsg string) error
}

var _ Storage = (*storage.Engine)(nil)

// Worker drains q one job at a time, records Home-side history, runs the
// executor, and fans out triggers. A nil Storage means history isn't
// persisted, which is how Agent-mode nodes run it.
type Worker struct {
	mode        types.Mode
	q           *queue.Queue
	executor    *deploy.Executor
	store       Storage
	deployments map[string]types.DeploymentSpec
	agentName   string

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Worker. deployments indexes the full deployment list by
// name, used to resolve trigger fan-out.
func New(mode types.Mode, q *queue.Queue, executor *deploy.Executor, store Storage, deployments []types.DeploymentSpec, agentName string) *Worker {
	byName := make(map[string]types.DeploymentSpec, len(deployments))
	for _, d := range deployments {
		byName[d.Name] = d
	}
	return &Worker{
		mode:        mode,
		q:           q,
		executor:    executor,
		store:       store,
		deployments: byName,
		agentName:   agentName,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the poll loop in a goroutine until Stop is called.
func (w *Worker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop signals the loop to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := w.q.NextJob(time.Now())
			if job == nil {
				continue
			}
			w.runJob(ctx, job)
		}
	}
}

func (w *Worker) runJob(ctx context.Context, job *types.DeployJob) {
	logger := log.WithComponent("worker").With().
		Str("job_id", job.ID).
		Str("deployment", job.DeploymentName).
		Logger()

	started := time.Now()
	if w.mode == types.ModeHome && w.store != nil {
		rec := types.DeployRecord{
			ID:             job.ID,
			AgentName:      job.AgentName,
			DeploymentName: job.DeploymentName,
			Kind:           string(job.Spec.Kind),
			Status:         types.JobRunning,
			StartedAt:      started,
			TriggerSource:  job.TriggerSource,
		}
		if err := w.store.InsertDeployHistory(ctx, rec); err != nil {
			logger.Error().Err(err).Msg("failed to record deploy history start")
		}
	}

	result := w.executor.Run(ctx, job.Spec)

	status := types.JobCompleted
	if !result.Success {
		status = types.JobFailed
	}

	if err := w.q.UpdateStatus(job.ID, status, time.Now(), result); err != nil {
		logger.Error().Err(err).Msg("failed to update queue status")
	}

	if w.mode == types.ModeHome && w.store != nil {
		if err := w.store.FinishDeployHistory(ctx, job.ID, status, time.Now(), result.DurationMs, result.Output, result.Error); err != nil {
			logger.Error().Err(err).Msg("failed to finish deploy history")
		}
	}

	if result.Success && !result.Skipped {
		w.fanOutTriggers(job, logger)
	}
}

// fanOutTriggers enqueues a fresh job for each configured trigger name,
// resolved against the deployment list, in order. A missing child halts
// the remaining fan-out unless the parent allows continuing on failure.
func (w *Worker) fanOutTriggers(parent *types.DeployJob, logger zerolog.Logger) {
	for _, name := range parent.Spec.Triggers {
		child, ok := w.deployments[name]
		if !ok {
			logger.Warn().Str("trigger", name).Msg("trigger target not found in deployment list")
			if !parent.Spec.ContinueOnFailure {
				return
			}
			continue
		}
		w.q.Enqueue(&types.DeployJob{
			ID:             uuid.NewString(),
			DeploymentName: child.Name,
			AgentName:      parent.AgentName,
			Spec:           child,
			CreatedAt:      time.Now(),
			TriggerSource:  "trigger:" + parent.DeploymentName,
		})
	}
}
