package storage

import (
	"context"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/types"
)

// InsertSuspicious records a rejected request.
func (e *Engine) InsertSuspicious(ctx context.Context, s types.SuspiciousRequest) error {
	_, err := e.exec(ctx, `
		INSERT INTO suspicious_requests (recorded_at, source_ip, method, path, reason, user_agent, headers)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.RecordedAt.UTC().Format(time.RFC3339), s.SourceIP, s.Method, s.Path, s.Reason, s.UserAgent, s.Headers)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "insert suspicious request")
	}
	return nil
}

// SuspiciousRequests returns the most recent rejected requests, bounded by
// limit.
func (e *Engine) SuspiciousRequests(ctx context.Context, limit int) ([]types.SuspiciousRequest, error) {
	rows, err := e.query(ctx, `
		SELECT recorded_at, source_ip, method, path, reason, user_agent, headers
		FROM suspicious_requests
		ORDER BY recorded_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "query suspicious requests")
	}
	defer rows.Close()

	var out []types.SuspiciousRequest
	for rows.Next() {
		var s types.SuspiciousRequest
		var recordedAt string
		if err := rows.Scan(&recordedAt, &s.SourceIP, &s.Method, &s.Path, &s.Reason, &s.UserAgent, &s.Headers); err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan suspicious request")
		}
		s.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}
