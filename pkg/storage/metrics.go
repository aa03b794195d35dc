package storage

import (
	"context"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/types"
)

// InsertRawMetric appends one raw telemetry sample.
func (e *Engine) InsertRawMetric(ctx context.Context, m types.MetricSample) error {
	_, err := e.exec(ctx, `
		INSERT INTO metrics_raw
			(agent_name, collected_at, cpu_usage, memory_usage_percent, memory_used,
			 memory_total, load_1, load_5, load_15, disk_usage_percent, container_count, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.AgentName, m.CollectedAt.UTC().Format(time.RFC3339), m.CPUUsage, m.MemoryUsagePercent,
		m.MemoryUsed, m.MemoryTotal, m.Load1, m.Load5, m.Load15, m.DiskUsagePercent, m.ContainerCount, m.RawPayload)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "insert raw metric")
	}
	return nil
}

// RawMetrics returns raw samples for agent (all agents if empty) within
// [from, to], newest first, bounded by limit.
func (e *Engine) RawMetrics(ctx context.Context, agent string, from, to time.Time, limit int) ([]types.MetricSample, error) {
	rows, err := e.query(ctx, `
		SELECT agent_name, collected_at, cpu_usage, memory_usage_percent, memory_used,
		       memory_total, load_1, load_5, load_15, disk_usage_percent, container_count, raw_payload
		FROM metrics_raw
		WHERE (? = '' OR agent_name = ?) AND collected_at BETWEEN ? AND ?
		ORDER BY collected_at DESC
		LIMIT ?`,
		agent, agent, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "query raw metrics")
	}
	defer rows.Close()

	var out []types.MetricSample
	for rows.Next() {
		var m types.MetricSample
		var collectedAt string
		if err := rows.Scan(&m.AgentName, &collectedAt, &m.CPUUsage, &m.MemoryUsagePercent,
			&m.MemoryUsed, &m.MemoryTotal, &m.Load1, &m.Load5, &m.Load15,
			&m.DiskUsagePercent, &m.ContainerCount, &m.RawPayload); err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan raw metric")
		}
		m.CollectedAt, _ = time.Parse(time.RFC3339, collectedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RollupHourly re-aggregates the trailing two hours of raw samples into
// metrics_hourly, insert-or-replacing per (agent_name, period_start). The
// two-hour lookback re-consolidates the previous bucket in case of late
// samples.
func (e *Engine) RollupHourly(ctx context.Context, now time.Time) error {
	since := now.UTC().Add(-2 * time.Hour).Format(time.RFC3339)
	query := `
		INSERT INTO metrics_hourly (agent_name, period_start, avg_cpu, max_cpu, avg_memory, max_memory, avg_load_1, max_load_1, samples_count)
		SELECT
			agent_name,
			strftime('%Y-%m-%dT%H:00:00Z', collected_at) AS bucket,
			AVG(cpu_usage) AS avg_cpu,
			MAX(cpu_usage) AS max_cpu,
			AVG(memory_usage_percent) AS avg_memory,
			MAX(memory_usage_percent) AS max_memory,
			AVG(load_1) AS avg_load_1,
			MAX(load_1) AS max_load_1,
			COUNT(*) AS samples_count
		FROM metrics_raw
		WHERE collected_at >= ?
		GROUP BY agent_name, bucket
		ON CONFLICT (agent_name, period_start) DO UPDATE SET
			avg_cpu = excluded.avg_cpu,
			max_cpu = excluded.max_cpu,
			avg_memory = excluded.avg_memory,
			max_memory = excluded.max_memory,
			avg_load_1 = excluded.avg_load_1,
			max_load_1 = excluded.max_load_1,
			samples_count = excluded.samples_count`

	if _, err := e.exec(ctx, query, since); err != nil {
		return errs.Wrap(errs.Storage, err, "rollup metrics_raw into metrics_hourly")
	}
	return nil
}

// RollupDaily re-aggregates the trailing two days of hourly records into
// metrics_daily, averaging the hourly averages, maxing the hourly maxes,
// and summing samples_count across the day's hourly buckets.
func (e *Engine) RollupDaily(ctx context.Context, now time.Time) error {
	since := now.UTC().Add(-2 * 24 * time.Hour).Format(time.RFC3339)
	query := `
		INSERT INTO metrics_daily (agent_name, period_start, avg_cpu, max_cpu, avg_memory, max_memory, avg_load_1, max_load_1, samples_count)
		SELECT
			agent_name,
			strftime('%Y-%m-%dT00:00:00Z', period_start) AS bucket,
			AVG(avg_cpu) AS avg_cpu,
			MAX(max_cpu) AS max_cpu,
			AVG(avg_memory) AS avg_memory,
			MAX(max_memory) AS max_memory,
			AVG(avg_load_1) AS avg_load_1,
			MAX(max_load_1) AS max_load_1,
			SUM(samples_count) AS samples_count
		FROM metrics_hourly
		WHERE period_start >= ?
		GROUP BY agent_name, bucket
		ON CONFLICT (agent_name, period_start) DO UPDATE SET
			avg_cpu = excluded.avg_cpu,
			max_cpu = excluded.max_cpu,
			avg_memory = excluded.avg_memory,
			max_memory = excluded.max_memory,
			avg_load_1 = excluded.avg_load_1,
			max_load_1 = excluded.max_load_1,
			samples_count = excluded.samples_count`

	if _, err := e.exec(ctx, query, since); err != nil {
		return errs.Wrap(errs.Storage, err, "rollup metrics_hourly into metrics_daily")
	}
	return nil
}

// AggregatedMetrics returns hourly or daily records for agent within
// [from, to], newest first, bounded by limit.
func (e *Engine) AggregatedMetrics(ctx context.Context, period types.AggregationPeriod, agent string, from, to time.Time, limit int) ([]types.AggregatedMetric, error) {
	table := "metrics_hourly"
	if period == types.PeriodDaily {
		table = "metrics_daily"
	}

	rows, err := e.query(ctx, `
		SELECT agent_name, period_start, avg_cpu, max_cpu, avg_memory, max_memory, avg_load_1, max_load_1, samples_count
		FROM `+table+`
		WHERE (? = '' OR agent_name = ?) AND period_start BETWEEN ? AND ?
		ORDER BY period_start DESC
		LIMIT ?`,
		agent, agent, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "query aggregated metrics")
	}
	defer rows.Close()

	var out []types.AggregatedMetric
	for rows.Next() {
		var m types.AggregatedMetric
		var periodStart string
		if err := rows.Scan(&m.AgentName, &periodStart, &m.AvgCPU, &m.MaxCPU, &m.AvgMemory, &m.MaxMemory,
			&m.AvgLoad1, &m.MaxLoad1, &m.SamplesCount); err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan aggregated metric")
		}
		m.PeriodStart, _ = time.Parse(time.RFC3339, periodStart)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneMetrics deletes records older than the given cutoffs from all three
// metric tables.
func (e *Engine) PruneMetrics(ctx context.Context, rawBefore, hourlyBefore, dailyBefore time.Time) error {
	if _, err := e.exec(ctx, `DELETE FROM metrics_raw WHERE collected_at < ?`, rawBefore.UTC().Format(time.RFC3339)); err != nil {
		return errs.Wrap(errs.Storage, err, "prune raw metrics")
	}
	if _, err := e.exec(ctx, `DELETE FROM metrics_hourly WHERE period_start < ?`, hourlyBefore.UTC().Format(time.RFC3339)); err != nil {
		return errs.Wrap(errs.Storage, err, "prune hourly metrics")
	}
	if _, err := e.exec(ctx, `DELETE FROM metrics_daily WHERE period_start < ?`, dailyBefore.UTC().Format(time.RFC3339)); err != nil {
		return errs.Wrap(errs.Storage, err, "prune daily metrics")
	}
	return nil
}
