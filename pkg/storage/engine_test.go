package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/infractl/pkg/types"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestInsertAndQueryRawMetrics(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, e.InsertRawMetric(ctx, types.MetricSample{
		AgentName: "agent-1", CollectedAt: now, CPUUsage: 12.5, MemoryUsagePercent: 40,
		MemoryUsed: 1000, MemoryTotal: 2000, Load1: 0.1, Load5: 0.2, Load15: 0.3,
	}))

	samples, err := e.RawMetrics(ctx, "agent-1", now.Add(-time.Hour), now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "agent-1", samples[0].AgentName)
	assert.InDelta(t, 12.5, samples[0].CPUUsage, 0.001)
}

func TestRollupHourlyProducesOneRowPerAgentPerHour(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	hour := time.Now().UTC().Truncate(time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.InsertRawMetric(ctx, types.MetricSample{
			AgentName: "agent-1", CollectedAt: hour.Add(time.Duration(i) * time.Minute),
			CPUUsage: float64(10 * (i + 1)), MemoryUsagePercent: 50, Load1: 1,
		}))
	}

	require.NoError(t, e.RollupHourly(ctx, hour.Add(time.Minute)))

	rows, err := e.AggregatedMetrics(ctx, types.PeriodHourly, "agent-1", hour.Add(-time.Hour), hour.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].SamplesCount)
	assert.InDelta(t, 20, rows[0].AvgCPU, 0.001)
	assert.InDelta(t, 30, rows[0].MaxCPU, 0.001)
}

func TestRollupDailyAveragesAndSumsHourlyBuckets(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	hour1 := day.Add(2 * time.Hour)
	hour2 := day.Add(3 * time.Hour)

	for i := 0; i < 2; i++ {
		require.NoError(t, e.InsertRawMetric(ctx, types.MetricSample{
			AgentName: "agent-1", CollectedAt: hour1.Add(time.Duration(i) * time.Minute),
			CPUUsage: 10, MemoryUsagePercent: 40, Load1: 1,
		}))
	}
	require.NoError(t, e.InsertRawMetric(ctx, types.MetricSample{
		AgentName: "agent-1", CollectedAt: hour2,
		CPUUsage: 30, MemoryUsagePercent: 60, Load1: 1,
	}))

	require.NoError(t, e.RollupHourly(ctx, hour1.Add(time.Minute)))
	require.NoError(t, e.RollupHourly(ctx, hour2.Add(time.Minute)))
	require.NoError(t, e.RollupDaily(ctx, hour2.Add(time.Hour)))

	rows, err := e.AggregatedMetrics(ctx, types.PeriodDaily, "agent-1", day.Add(-time.Hour), day.Add(25*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].SamplesCount)
	assert.InDelta(t, 20, rows[0].AvgCPU, 0.001)
	assert.InDelta(t, 30, rows[0].MaxCPU, 0.001)
}

func TestUpsertAgentStatusReplacesExisting(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.UpsertAgentStatus(ctx, types.AgentStatus{AgentName: "a1", LastSeen: time.Now(), Status: "online"}))
	require.NoError(t, e.UpsertAgentStatus(ctx, types.AgentStatus{AgentName: "a1", LastSeen: time.Now(), Status: "offline"}))

	s, err := e.AgentStatusByName(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "offline", s.Status)

	all, err := e.AgentStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeployHistoryLifecycle(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	start := time.Now().UTC()

	require.NoError(t, e.InsertDeployHistory(ctx, types.DeployRecord{
		ID: "job-1", AgentName: "local", DeploymentName: "api", Kind: "git_pull",
		Status: types.JobRunning, StartedAt: start,
	}))
	require.NoError(t, e.FinishDeployHistory(ctx, "job-1", types.JobCompleted, start.Add(time.Second), 1000, "[pull] ok", ""))

	records, err := e.DeployHistory(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.JobCompleted, records[0].Status)
	assert.Equal(t, int64(1000), records[0].DurationMs)
}

func TestInsertAndListSuspiciousRequests(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.InsertSuspicious(ctx, types.SuspiciousRequest{
		RecordedAt: time.Now(), SourceIP: "1.2.3.4", Method: "GET", Path: "/webhook/deploy/x",
		Reason: types.ReasonMissingAuth,
	}))

	rows, err := e.SuspiciousRequests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.ReasonMissingAuth, rows[0].Reason)
}
