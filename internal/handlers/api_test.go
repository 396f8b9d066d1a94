package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/services/jobs"
	"github.com/tradewatch/tradewatch/internal/services/scheduler"
	"github.com/tradewatch/tradewatch/internal/storage/sqlite"
)

type apiEnv struct {
	api       *API
	config    *common.Config
	defs      interfaces.JobDefinitionStorage
	runs      interfaces.JobRunStorage
	snapshots interfaces.SnapshotStorage
	insights  interfaces.InsightStorage
	catalog   interfaces.CatalogStorage
}

func setupAPI(t *testing.T) *apiEnv {
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
	insights := sqlite.NewInsightStorage(db, logger)
	catalog := sqlite.NewCatalogStorage(db, logger)

	registry := jobs.NewService(config, nil, snapshots, jobRuns, nil, logger)
	require.NoError(t, registry.SeedJobDefinitions(context.Background(), defs))

	sched := scheduler.NewService(config, registry, defs, jobRuns, snapshots, logger)
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(sched.Stop)

	api := NewAPI(config, sched, defs, jobRuns, snapshots, insights, catalog, logger)

	return &apiEnv{
		api:       api,
		config:    config,
		defs:      defs,
		runs:      jobRuns,
		snapshots: snapshots,
		insights:  insights,
		catalog:   catalog,
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func seedSnapshot(t *testing.T, env *apiEnv, widgetKey, scope string, fetchedAt time.Time) {
	t.Helper()
	snap := &models.WidgetSnapshot{
		WidgetKey: widgetKey,
		Scope:     scope,
		Source:    "World Bank WDI",
		Payload: &models.Envelope{
			Source: models.SourceInfo{Name: "World Bank WDI"},
			Period: "2019-2023",
			Data:   json.RawMessage(`{"series":[]}`),
		},
		FetchedAt: fetchedAt,
	}
	require.NoError(t, env.snapshots.AppendSnapshot(context.Background(), snap))
}

func TestHealthEndpoint(t *testing.T) {
	env := setupAPI(t)

	rec := httptest.NewRecorder()
	env.api.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestStatusEndpointReportsCounts(t *testing.T) {
	env := setupAPI(t)
	seedSnapshot(t, env, models.WidgetKeyTradeExim, "India", time.Now())

	rec := httptest.NewRecorder()
	env.api.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["snapshot_count"])
	assert.Equal(t, true, body["globally_enabled"])
}

func TestListJobsReturnsAllDefinitions(t *testing.T) {
	env := setupAPI(t)

	rec := httptest.NewRecorder()
	env.api.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["jobs"], 9)
	assert.Equal(t, true, body["globally_enabled"])
}

func TestTriggerJobNotFound(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/nope/trigger", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	env.api.TriggerJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerJobStartsRun(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/cleanup_snapshots/trigger",
		strings.NewReader(`{"keep_days": 7}`))
	req.SetPathValue("id", jobs.JobCleanupSnapshots)
	rec := httptest.NewRecorder()
	env.api.TriggerJob(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(interfaces.TriggerStatusStarted), body["status"])
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	// Async execution; poll for the terminal run row
	require.Eventually(t, func() bool {
		run, err := env.runs.GetJobRun(context.Background(), runID)
		return err == nil && run.Status.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	run, err := env.runs.GetJobRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunStatusSuccess, run.Status)
	assert.Contains(t, run.Message, "keep_days=7")
}

func TestTriggerJobDisabledReturnsForbidden(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	require.NoError(t, env.defs.SetJobEnabled(ctx, jobs.JobCleanupSnapshots, false))
	require.NoError(t, env.api.scheduler.Reload(ctx, jobs.JobCleanupSnapshots))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/cleanup_snapshots/trigger", nil)
	req.SetPathValue("id", jobs.JobCleanupSnapshots)
	rec := httptest.NewRecorder()
	env.api.TriggerJob(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateJobSchedule(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodPut, "/api/jobs/cleanup_snapshots",
		strings.NewReader(`{"schedule": "0 3 * * *", "enabled": false}`))
	req.SetPathValue("id", jobs.JobCleanupSnapshots)
	rec := httptest.NewRecorder()
	env.api.UpdateJob(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	def, err := env.defs.GetJobDefinition(context.Background(), jobs.JobCleanupSnapshots)
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", def.Schedule)
	assert.False(t, def.Enabled)
}

func TestUpdateJobRejectsBadCron(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodPut, "/api/jobs/cleanup_snapshots",
		strings.NewReader(`{"schedule": "not a cron"}`))
	req.SetPathValue("id", jobs.JobCleanupSnapshots)
	rec := httptest.NewRecorder()
	env.api.UpdateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	def, err := env.defs.GetJobDefinition(context.Background(), jobs.JobCleanupSnapshots)
	require.NoError(t, err)
	assert.Equal(t, env.config.Jobs.DefaultSchedule, def.Schedule)
}

func TestUpdateJobUnknown(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodPut, "/api/jobs/nope",
		strings.NewReader(`{"enabled": true}`))
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	env.api.UpdateJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnableDisableJob(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/trade_exim_5y/disable", nil)
	req.SetPathValue("id", jobs.JobTradeExim)
	rec := httptest.NewRecorder()
	env.api.DisableJob(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	def, err := env.defs.GetJobDefinition(ctx, jobs.JobTradeExim)
	require.NoError(t, err)
	assert.False(t, def.Enabled)

	req = httptest.NewRequest(http.MethodPost, "/api/jobs/trade_exim_5y/enable", nil)
	req.SetPathValue("id", jobs.JobTradeExim)
	rec = httptest.NewRecorder()
	env.api.EnableJob(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	def, err = env.defs.GetJobDefinition(ctx, jobs.JobTradeExim)
	require.NoError(t, err)
	assert.True(t, def.Enabled)
}

func TestListRunsFiltersByJob(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	result := env.api.scheduler.Trigger(ctx, jobs.JobCleanupSnapshots, nil, models.TriggerSourceManual)
	require.Equal(t, interfaces.TriggerStatusStarted, result.Status)

	rec := httptest.NewRecorder()
	env.api.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/runs?job_id=cleanup_snapshots", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Len(t, body["runs"], 1)

	rec = httptest.NewRecorder()
	env.api.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/runs?job_id=trade_exim_5y", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["runs"])
}

func TestGetWidgetLatestPerScope(t *testing.T) {
	env := setupAPI(t)
	now := time.Now()
	seedSnapshot(t, env, models.WidgetKeyTradeExim, "India", now.Add(-time.Hour))
	seedSnapshot(t, env, models.WidgetKeyTradeExim, "India", now)
	seedSnapshot(t, env, models.WidgetKeyTradeExim, "Mexico", now)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets/trade_exim", nil)
	req.SetPathValue("key", models.WidgetKeyTradeExim)
	rec := httptest.NewRecorder()
	env.api.GetWidget(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, models.WidgetKeyTradeExim, body["widget_key"])
	assert.Len(t, body["snapshots"], 2)
}

func TestGetWidgetUnknownReturns404(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets/nope", nil)
	req.SetPathValue("key", "nope")
	rec := httptest.NewRecorder()
	env.api.GetWidget(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWidgetScopeMergesCatalogDefaults(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	require.NoError(t, env.catalog.SaveWidgetDefinition(ctx, &models.WidgetDefinition{
		WidgetKey: models.WidgetKeyTradeExim,
		Title:     "Exports and imports",
		Unit:      "current US$",
		Frequency: "annual",
		Caveats:   []string{"Catalog caveat."},
	}))
	seedSnapshot(t, env, models.WidgetKeyTradeExim, "India", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/widgets/trade_exim/India", nil)
	req.SetPathValue("key", models.WidgetKeyTradeExim)
	req.SetPathValue("scope", "India")
	rec := httptest.NewRecorder()
	env.api.GetWidgetScope(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.WidgetSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.Payload)
	assert.Equal(t, "current US$", snap.Payload.Unit)
	assert.Equal(t, "annual", snap.Payload.Frequency)
	assert.Contains(t, snap.Payload.Caveats, "Catalog caveat.")
	// Adapter-set fields survive the merge
	assert.Equal(t, "2019-2023", snap.Payload.Period)
}

func TestGetWidgetScopeNotFound(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets/trade_exim/India", nil)
	req.SetPathValue("key", models.WidgetKeyTradeExim)
	req.SetPathValue("scope", "India")
	rec := httptest.NewRecorder()
	env.api.GetWidgetScope(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWidgetScopeAcceptsEitherCasing(t *testing.T) {
	env := setupAPI(t)
	seedSnapshot(t, env, models.WidgetKeyTradeExim, "India", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/widgets/trade_exim/india", nil)
	req.SetPathValue("key", models.WidgetKeyTradeExim)
	req.SetPathValue("scope", "india")
	rec := httptest.NewRecorder()
	env.api.GetWidgetScope(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.WidgetSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "India", snap.Scope)

	req = httptest.NewRequest(http.MethodGet, "/api/widgets/trade_exim/Singapore", nil)
	req.SetPathValue("key", models.WidgetKeyTradeExim)
	req.SetPathValue("scope", "Singapore")
	rec = httptest.NewRecorder()
	env.api.GetWidgetScope(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown scope still misses")
}

func TestGetInsightAcceptsEitherScopeCasing(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	require.NoError(t, env.insights.AppendInsight(ctx, &models.WidgetInsight{
		ID:          "ins_geo",
		CardKey:     "wealth",
		TabKey:      "indicators",
		Scope:       "Global",
		Lang:        "en",
		Content:     "GDP per capita held steady.",
		DataDigest:  "digest",
		GeneratedBy: models.InsightOriginTemplate,
	}))

	// Per-geo tabs store the canonical "Global"; the query default is "global"
	rec := httptest.NewRecorder()
	env.api.GetInsight(rec, httptest.NewRequest(http.MethodGet, "/api/insights?card=wealth&tab=indicators", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GDP per capita held steady.", decodeBody(t, rec)["content"])

	rec = httptest.NewRecorder()
	env.api.GetInsight(rec, httptest.NewRequest(http.MethodGet, "/api/insights?card=wealth&tab=indicators&scope=Global", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetInsightDefaultsAndNotFound(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	require.NoError(t, env.insights.AppendInsight(ctx, &models.WidgetInsight{
		ID:          "ins_test",
		CardKey:     "trade_flow",
		TabKey:      "corridors",
		Scope:       "global",
		Lang:        "en",
		Content:     "Corridor rates held steady.",
		DataDigest:  "digest",
		GeneratedBy: models.InsightOriginTemplate,
	}))

	rec := httptest.NewRecorder()
	env.api.GetInsight(rec, httptest.NewRequest(http.MethodGet, "/api/insights?card=trade_flow&tab=corridors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Corridor rates held steady.", body["content"])

	rec = httptest.NewRecorder()
	env.api.GetInsight(rec, httptest.NewRequest(http.MethodGet, "/api/insights?card=trade_flow&tab=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	env.api.GetInsight(rec, httptest.NewRequest(http.MethodGet, "/api/insights?tab=corridors", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCatalog(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	for _, src := range models.DefaultDataSources() {
		require.NoError(t, env.catalog.SaveDataSource(ctx, src))
	}
	for _, def := range models.DefaultWidgetDefinitions() {
		require.NoError(t, env.catalog.SaveWidgetDefinition(ctx, def))
	}

	rec := httptest.NewRecorder()
	env.api.GetCatalog(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["widgets"], 7)
	assert.Len(t, body["sources"], 4)
}
