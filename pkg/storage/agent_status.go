package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/types"
)

// UpsertAgentStatus inserts or replaces the latest observed status for an
// agent.
func (e *Engine) UpsertAgentStatus(ctx context.Context, s types.AgentStatus) error {
	_, err := e.exec(ctx, `
		INSERT INTO agent_status (agent_name, last_seen, status, version, uptime_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (agent_name) DO UPDATE SET
			last_seen = excluded.last_seen,
			status = excluded.status,
			version = excluded.version,
			uptime_seconds = excluded.uptime_seconds`,
		s.AgentName, s.LastSeen.UTC().Format(time.RFC3339), s.Status, s.Version, s.UptimeSeconds)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "upsert agent status")
	}
	return nil
}

// AgentStatusByName returns one agent's latest status.
func (e *Engine) AgentStatusByName(ctx context.Context, name string) (types.AgentStatus, error) {
	row := e.queryRow(ctx, `
		SELECT agent_name, last_seen, status, version, uptime_seconds
		FROM agent_status WHERE agent_name = ?`, name)

	var s types.AgentStatus
	var lastSeen string
	if err := row.Scan(&s.AgentName, &lastSeen, &s.Status, &s.Version, &s.UptimeSeconds); err != nil {
		if err == sql.ErrNoRows {
			return types.AgentStatus{}, errs.New(errs.Storage, "agent status not found")
		}
		return types.AgentStatus{}, errs.Wrap(errs.Storage, err, "scan agent status")
	}
	s.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	return s, nil
}

// AgentStatuses returns every agent's latest status.
func (e *Engine) AgentStatuses(ctx context.Context) ([]types.AgentStatus, error) {
	rows, err := e.query(ctx, `SELECT agent_name, last_seen, status, version, uptime_seconds FROM agent_status`)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "query agent statuses")
	}
	defer rows.Close()

	var out []types.AgentStatus
	for rows.Next() {
		var s types.AgentStatus
		var lastSeen string
		if err := rows.Scan(&s.AgentName, &lastSeen, &s.Status, &s.Version, &s.UptimeSeconds); err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan agent status")
		}
		s.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		out = append(out, s)
	}
	return out, rows.Err()
}
