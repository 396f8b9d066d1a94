package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/services/insights"
	"github.com/tradewatch/tradewatch/internal/services/sources"
)

// Registry job IDs
const (
	JobTradeCorridors   = "trade_corridors"
	JobTradeExim        = "trade_exim_5y"
	JobWealthIndicators = "wealth_indicators_5y"
	JobWealthDisposable = "wealth_disposable_latest"
	JobWealthAge        = "wealth_age_structure_latest"
	JobFinanceIndustry  = "finance_ma_industry"
	JobFinanceCountry   = "finance_ma_country"
	JobGenerateInsights = "generate_insights"
	JobCleanupSnapshots = "cleanup_snapshots"
)

// Spec is one registered job: its identity, parameter handling and body.
// The scheduler owns the run lifecycle; the body returns a short human
// message stored on the run row.
type Spec struct {
	ID            string
	Name          string
	Description   string
	DefaultParams map[string]interface{}
	Normalize     func(raw map[string]interface{}) *models.JobParams
	Run           func(ctx context.Context, runID string, params *models.JobParams) (string, error)
}

// Service builds and owns the job registry. Job bodies write snapshots
// and insights; they never touch job run rows except the heartbeat.
type Service struct {
	config    *common.Config
	logger    arbor.ILogger
	client    *sources.Client
	snapshots interfaces.SnapshotStorage
	jobRuns   interfaces.JobRunStorage
	generator *insights.Generator
}

// NewService creates the job service
func NewService(
	config *common.Config,
	client *sources.Client,
	snapshots interfaces.SnapshotStorage,
	jobRuns interfaces.JobRunStorage,
	generator *insights.Generator,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:    config,
		logger:    logger,
		client:    client,
		snapshots: snapshots,
		jobRuns:   jobRuns,
		generator: generator,
	}
}

// Specs returns the registry in seed order
func (s *Service) Specs() []*Spec {
	allGeos := geoNames(models.AllGeos())
	return []*Spec{
		{
			ID:            JobTradeCorridors,
			Name:          "Trade Corridors Snapshot",
			Description:   "Refresh trade corridors summary (includes WCI extraction).",
			DefaultParams: map[string]interface{}{"force": false},
			Normalize:     normalizeForceParams,
			Run:           s.runTradeCorridors,
		},
		{
			ID:            JobTradeExim,
			Name:          "Trade Exim 5Y by Geo",
			Description:   "Refresh export/import series from World Bank WDI for configured geos.",
			DefaultParams: map[string]interface{}{"geo_list": allGeos, "years": 5, "end_year": nil, "force": false},
			Normalize:     normalizeSeriesParams,
			Run:           s.runTradeExim,
		},
		{
			ID:            JobWealthIndicators,
			Name:          "Wealth Indicators 5Y by Geo",
			Description:   "Refresh GDP per capita and consumption 5Y series for configured geos.",
			DefaultParams: map[string]interface{}{"geo_list": allGeos, "years": 5, "end_year": nil, "force": false},
			Normalize:     normalizeSeriesParams,
			Run:           s.runWealthIndicators,
		},
		{
			ID:            JobWealthDisposable,
			Name:          "Disposable Income Latest",
			Description:   "Refresh latest disposable-income-like snapshot from WPR with WB fallback.",
			DefaultParams: map[string]interface{}{"force": false},
			Normalize:     normalizeForceParams,
			Run:           s.runWealthDisposable,
		},
		{
			ID:            JobWealthAge,
			Name:          "Age Structure Latest",
			Description:   "Refresh latest age-structure (% population) snapshot from World Bank WDI.",
			DefaultParams: map[string]interface{}{"geo_list": allGeos, "end_year": nil, "lookback_years": 20, "force": false},
			Normalize:     normalizeAgeStructureParams,
			Run:           s.runWealthAgeStructure,
		},
		{
			ID:            JobFinanceIndustry,
			Name:          "Finance M&A by Industry",
			Description:   "Refresh IMAA industry ranking snapshot.",
			DefaultParams: map[string]interface{}{"force": false},
			Normalize:     normalizeForceParams,
			Run:           s.runFinanceIndustry,
		},
		{
			ID:            JobFinanceCountry,
			Name:          "Finance M&A by Country",
			Description:   "Refresh IMAA country snapshot.",
			DefaultParams: map[string]interface{}{"force": false},
			Normalize:     normalizeForceParams,
			Run:           s.runFinanceCountry,
		},
		{
			ID:            JobGenerateInsights,
			Name:          "Generate Insights",
			Description:   "Generate insight text for dashboard cards/tabs and save to storage.",
			DefaultParams: map[string]interface{}{"force": false},
			Normalize:     normalizeForceParams,
			Run:           s.runGenerateInsights,
		},
		{
			ID:            JobCleanupSnapshots,
			Name:          "Cleanup Snapshots",
			Description:   "Delete snapshot and run rows older than configured retention days.",
			DefaultParams: map[string]interface{}{"keep_days": s.config.Jobs.RetentionDays},
			Normalize: func(raw map[string]interface{}) *models.JobParams {
				return normalizeCleanupParams(raw, s.config.Jobs.RetentionDays)
			},
			Run: s.runCleanupSnapshots,
		},
	}
}

// Spec returns one registered job by ID, nil when unknown
func (s *Service) Spec(jobID string) *Spec {
	for _, spec := range s.Specs() {
		if spec.ID == jobID {
			return spec
		}
	}
	return nil
}

// DataJobIDs lists the snapshot-producing jobs, used for startup warmup
func (s *Service) DataJobIDs() []string {
	return []string{
		JobTradeCorridors,
		JobTradeExim,
		JobWealthIndicators,
		JobWealthDisposable,
		JobWealthAge,
		JobFinanceIndustry,
		JobFinanceCountry,
	}
}

// SeedJobDefinitions inserts a definition for every registered job that
// has none, and re-enforces the configured cadence on existing rows so
// legacy schedules migrate on restart. Operator settings other than the
// schedule are preserved.
func (s *Service) SeedJobDefinitions(ctx context.Context, defs interfaces.JobDefinitionStorage) error {
	for _, spec := range s.Specs() {
		existing, err := defs.GetJobDefinition(ctx, spec.ID)
		if err == nil {
			if existing.Schedule != s.config.Jobs.DefaultSchedule {
				existing.Schedule = s.config.Jobs.DefaultSchedule
				if err := defs.SaveJobDefinition(ctx, existing); err != nil {
					return fmt.Errorf("failed to migrate schedule for %s: %w", spec.ID, err)
				}
			}
			continue
		}

		def := &models.JobDefinition{
			ID:            spec.ID,
			Name:          spec.Name,
			Description:   spec.Description,
			Schedule:      s.config.Jobs.DefaultSchedule,
			Timezone:      s.config.Jobs.Timezone,
			Enabled:       true,
			DefaultParams: spec.DefaultParams,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		if err := defs.SaveJobDefinition(ctx, def); err != nil {
			return fmt.Errorf("failed to seed job definition %s: %w", spec.ID, err)
		}
		s.logger.Info().Str("job_id", spec.ID).Msg("Seeded job definition")
	}
	return nil
}

func geoNames(geos []models.Geo) []interface{} {
	names := make([]interface{}, len(geos))
	for i, geo := range geos {
		names[i] = string(geo)
	}
	return names
}
