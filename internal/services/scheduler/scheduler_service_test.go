package scheduler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/services/jobs"
	"github.com/tradewatch/tradewatch/internal/storage/sqlite"
)

type schedulerEnv struct {
	service *Service
	config  *common.Config
	defs    interfaces.JobDefinitionStorage
	runs    interfaces.JobRunStorage
}

func setupScheduler(t *testing.T) *schedulerEnv {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := sqlite.NewSQLiteDB(logger, &common.SQLiteConfig{
		Path:          t.TempDir() + "/test.db",
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	config := common.NewDefaultConfig()
	config.Jobs.WarmupOnStart = false

	snapshots := sqlite.NewSnapshotStorage(db, logger)
	jobRuns := sqlite.NewJobRunStorage(db, logger)
	defs := sqlite.NewJobDefinitionStorage(db, logger)

	registry := jobs.NewService(config, nil, snapshots, jobRuns, nil, logger)
	require.NoError(t, registry.SeedJobDefinitions(context.Background(), defs))

	service := NewService(config, registry, defs, jobRuns, snapshots, logger).(*Service)
	require.NoError(t, service.Start(context.Background()))
	t.Cleanup(service.Stop)

	return &schedulerEnv{service: service, config: config, defs: defs, runs: jobRuns}
}

func TestTriggerRunsJobAndRecordsRun(t *testing.T) {
	env := setupScheduler(t)
	ctx := context.Background()

	result := env.service.Trigger(ctx, jobs.JobCleanupSnapshots, nil, models.TriggerSourceManual)
	require.Equal(t, interfaces.TriggerStatusStarted, result.Status)
	require.NotEmpty(t, result.RunID)

	run, err := env.runs.GetJobRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunStatusSuccess, run.Status)
	assert.Equal(t, models.TriggerSourceManual, run.TriggeredBy)
	assert.True(t, strings.HasPrefix(run.Message, "cleanup done:"), "unexpected message %q", run.Message)
	require.NotNil(t, run.FinishedAt)

	def, err := env.defs.GetJobDefinition(ctx, jobs.JobCleanupSnapshots)
	require.NoError(t, err)
	assert.NotNil(t, def.LastScheduledAt)
	assert.NotNil(t, def.LastSuccessAt)
}

func TestTriggerParamsOverrideMergedIntoRun(t *testing.T) {
	env := setupScheduler(t)
	ctx := context.Background()

	result := env.service.Trigger(ctx, jobs.JobCleanupSnapshots, map[string]interface{}{"keep_days": 7}, models.TriggerSourceAPI)
	require.Equal(t, interfaces.TriggerStatusStarted, result.Status)

	run, err := env.runs.GetJobRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, run.Params["keep_days"])
	assert.Contains(t, run.Message, "keep_days=7")
}

func TestTriggerUnknownJob(t *testing.T) {
	env := setupScheduler(t)

	result := env.service.Trigger(context.Background(), "no_such_job", nil, models.TriggerSourceManual)
	assert.Equal(t, interfaces.TriggerStatusNotFound, result.Status)
	assert.Empty(t, result.RunID)
}

func TestTriggerDisabledJobRejected(t *testing.T) {
	env := setupScheduler(t)
	ctx := context.Background()

	require.NoError(t, env.defs.SetJobEnabled(ctx, jobs.JobCleanupSnapshots, false))
	require.NoError(t, env.service.Reload(ctx, jobs.JobCleanupSnapshots))

	result := env.service.Trigger(ctx, jobs.JobCleanupSnapshots, nil, models.TriggerSourceManual)
	assert.Equal(t, interfaces.TriggerStatusRejectedDisabled, result.Status)
}

func TestGlobalDisableBlocksManualTriggers(t *testing.T) {
	env := setupScheduler(t)
	env.config.Jobs.Enabled = false

	assert.False(t, env.service.IsGloballyEnabled())
	result := env.service.Trigger(context.Background(), jobs.JobCleanupSnapshots, nil, models.TriggerSourceManual)
	assert.Equal(t, interfaces.TriggerStatusRejectedDisabled, result.Status)
}

func TestTriggerRejectedWhileRunning(t *testing.T) {
	env := setupScheduler(t)

	env.service.mu.Lock()
	env.service.entries[jobs.JobCleanupSnapshots].inFlight = true
	env.service.mu.Unlock()

	result := env.service.Trigger(context.Background(), jobs.JobCleanupSnapshots, nil, models.TriggerSourceManual)
	assert.Equal(t, interfaces.TriggerStatusRejectedRunning, result.Status)

	env.service.clearInFlight(jobs.JobCleanupSnapshots)
	result = env.service.Trigger(context.Background(), jobs.JobCleanupSnapshots, nil, models.TriggerSourceManual)
	assert.Equal(t, interfaces.TriggerStatusStarted, result.Status)
}

func TestPanicInJobBodyBecomesFailedRun(t *testing.T) {
	env := setupScheduler(t)
	ctx := context.Background()

	// The insight generator is deliberately absent in this setup, so the
	// job body panics on a nil receiver; the run must fail, not crash
	result := env.service.Trigger(ctx, jobs.JobGenerateInsights, nil, models.TriggerSourceManual)
	require.Equal(t, interfaces.TriggerStatusStarted, result.Status)

	run, err := env.runs.GetJobRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "panic")

	// The gate is released after a panic
	result = env.service.Trigger(ctx, jobs.JobGenerateInsights, nil, models.TriggerSourceManual)
	assert.Equal(t, interfaces.TriggerStatusStarted, result.Status)
}

func TestJobStatuses(t *testing.T) {
	env := setupScheduler(t)
	ctx := context.Background()

	statuses, err := env.service.JobStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 9)
	for _, status := range statuses {
		assert.False(t, status.IsRunning)
		require.NotNil(t, status.Definition)
		assert.NotNil(t, status.NextRun, "enabled job %s has no next run", status.Definition.ID)
	}

	env.service.Trigger(ctx, jobs.JobCleanupSnapshots, nil, models.TriggerSourceManual)
	statuses, err = env.service.JobStatuses(ctx)
	require.NoError(t, err)
	for _, status := range statuses {
		if status.Definition.ID == jobs.JobCleanupSnapshots {
			assert.NotNil(t, status.LastRun)
		}
	}
}

func TestReloadUnschedulesDisabledJob(t *testing.T) {
	env := setupScheduler(t)
	ctx := context.Background()

	require.NoError(t, env.defs.SetJobEnabled(ctx, jobs.JobTradeExim, false))
	require.NoError(t, env.service.Reload(ctx, jobs.JobTradeExim))

	statuses, err := env.service.JobStatuses(ctx)
	require.NoError(t, err)
	for _, status := range statuses {
		if status.Definition.ID == jobs.JobTradeExim {
			assert.False(t, status.Definition.Enabled)
			assert.Nil(t, status.NextRun)
		}
	}
}
