package queue

import (
	"sync"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/telemetry"
	"github.com/cuemby/infractl/pkg/types"
)

// DefaultMaxHistory bounds the completed-job ring kept in memory.
const DefaultMaxHistory = 100

// Queue is a FIFO live queue plus a bounded history ring of finished jobs.
// One RWMutex guards both; live jobs are a slice walked front-to-back so
// enqueue order is preserved.
type Queue struct {
	mu         sync.RWMutex
	live       []*types.DeployJob
	history    []*types.DeployJob
	maxHistory int
}

// New builds an empty Queue. maxHistory <= 0 uses DefaultMaxHistory.
func New(maxHistory int) *Queue {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Queue{maxHistory: maxHistory}
}

// Enqueue appends job to the live queue in JobPending status.
func (q *Queue) Enqueue(job *types.DeployJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = types.JobPending
	q.live = append(q.live, job)
	telemetry.QueueDepth.Set(float64(q.pendingCountLocked()))
}

// NextJob finds the first pending job, transitions it to running, stamps
// StartedAt with now, and returns it. Returns nil if nothing is pending.
func (q *Queue) NextJob(now time.Time) *types.DeployJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.live {
		if job.Status == types.JobPending {
			job.Status = types.JobRunning
			started := now
			job.StartedAt = &started
			telemetry.QueueDepth.Set(float64(q.pendingCountLocked()))
			return job
		}
	}
	return nil
}

// pendingCountLocked counts pending jobs; callers must hold q.mu.
func (q *Queue) pendingCountLocked() int {
	n := 0
	for _, job := range q.live {
		if job.Status == types.JobPending {
			n++
		}
	}
	return n
}

// UpdateStatus transitions the job identified by id to status, attaching
// result (if non-nil). Terminal statuses (completed, failed, cancelled)
// stamp CompletedAt with now and move the job out of the live queue into
// history, evicting the oldest history entry if maxHistory is exceeded.
// Returns an error if no live job with that id exists.
func (q *Queue) UpdateStatus(id string, status types.JobStatus, now time.Time, result *types.DeployResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, job := range q.live {
		if job.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errs.New(errs.Deployment, "queue: unknown job "+id)
	}

	job := q.live[idx]
	job.Status = status
	telemetry.QueueDepth.Set(float64(q.pendingCountLocked()))
	if result != nil {
		job.Result = result
	}

	if !isTerminal(status) {
		return nil
	}

	completed := now
	job.CompletedAt = &completed

	q.live = append(q.live[:idx], q.live[idx+1:]...)
	q.pushHistory(job)
	telemetry.DeployJobsTotal.WithLabelValues(string(status)).Inc()
	return nil
}

func (q *Queue) pushHistory(job *types.DeployJob) {
	q.history = append(q.history, job)
	if len(q.history) > q.maxHistory {
		q.history = q.history[len(q.history)-q.maxHistory:]
	}
}

func isTerminal(status types.JobStatus) bool {
	switch status {
	case types.JobCompleted, types.JobFailed, types.JobCancelled:
		return true
	default:
		return false
	}
}

// GetJob looks up a job by id, checking the live queue first, then history.
func (q *Queue) GetJob(id string) (*types.DeployJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, job := range q.live {
		if job.ID == id {
			return job, true
		}
	}
	for _, job := range q.history {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

// QueueStatus returns a snapshot of the live queue, oldest first.
func (q *Queue) QueueStatus() []*types.DeployJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*types.DeployJob, len(q.live))
	copy(out, q.live)
	return out
}

// History returns up to limit most-recent history entries, newest first.
// limit <= 0 returns the entire history.
func (q *Queue) History(limit int) []*types.DeployJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := len(q.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*types.DeployJob, limit)
	for i := 0; i < limit; i++ {
		out[i] = q.history[n-1-i]
	}
	return out
}

// Cancel marks a pending job cancelled and moves it to history. Running
// jobs cannot be cancelled this way; that requires the worker itself to
// observe a cancellation flag, which the spec does not provide for.
func (q *Queue) Cancel(id string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, job := range q.live {
		if job.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errs.New(errs.Deployment, "queue: unknown job "+id)
	}
	if q.live[idx].Status != types.JobPending {
		return errs.New(errs.Deployment, "queue: job "+id+" is not pending")
	}

	job := q.live[idx]
	job.Status = types.JobCancelled
	completed := now
	job.CompletedAt = &completed

	q.live = append(q.live[:idx], q.live[idx+1:]...)
	q.pushHistory(job)
	telemetry.QueueDepth.Set(float64(q.pendingCountLocked()))
	telemetry.DeployJobsTotal.WithLabelValues(string(types.JobCancelled)).Inc()
	return nil
}

// Len reports the number of pending jobs; jobs already running are not
// counted, since they have left the waiting state.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.pendingCountLocked()
}
