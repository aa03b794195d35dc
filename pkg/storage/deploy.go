package storage

import (
	"context"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/types"
)

// InsertDeployHistory records a job entering "running" state.
func (e *Engine) InsertDeployHistory(ctx context.Context, r types.DeployRecord) error {
	_, err := e.exec(ctx, `
		INSERT INTO deploy_history
			(id, agent_name, deployment_name, kind, status, started_at, trigger_source, commit_sha)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgentName, r.DeploymentName, r.Kind, r.Status, r.StartedAt.UTC().Format(time.RFC3339),
		r.TriggerSource, r.CommitSHA)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "insert deploy history")
	}
	return nil
}

// FinishDeployHistory updates a row with its terminal status, output,
// duration, and error.
func (e *Engine) FinishDeployHistory(ctx context.Context, id string, status types.JobStatus, completedAt time.Time, durationMs int64, output, errMsg string) error {
	_, err := e.exec(ctx, `
		UPDATE deploy_history
		SET status = ?, completed_at = ?, duration_ms = ?, output = ?, error = ?
		WHERE id = ?`,
		status, completedAt.UTC().Format(time.RFC3339), durationMs, output, errMsg, id)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "finish deploy history")
	}
	return nil
}

// DeployHistory returns deploy records for agent (all agents if empty),
// newest first, bounded by limit.
func (e *Engine) DeployHistory(ctx context.Context, agent string, limit int) ([]types.DeployRecord, error) {
	rows, err := e.query(ctx, `
		SELECT id, agent_name, deployment_name, kind, status, started_at, completed_at,
		       duration_ms, trigger_source, commit_sha, output, error
		FROM deploy_history
		WHERE ? = '' OR agent_name = ?
		ORDER BY started_at DESC
		LIMIT ?`, agent, agent, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "query deploy history")
	}
	defer rows.Close()

	var out []types.DeployRecord
	for rows.Next() {
		var r types.DeployRecord
		var startedAt string
		var completedAt *string
		if err := rows.Scan(&r.ID, &r.AgentName, &r.DeploymentName, &r.Kind, &r.Status, &startedAt,
			&completedAt, &r.DurationMs, &r.TriggerSource, &r.CommitSHA, &r.Output, &r.Error); err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan deploy history")
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt != nil {
			t, _ := time.Parse(time.RFC3339, *completedAt)
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
