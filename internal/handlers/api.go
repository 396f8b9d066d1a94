package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
)

// API bundles the HTTP handlers over the scheduler and read storages.
// All data endpoints are pure reads; only the job admin surface mutates
// state, and it does so through the scheduler and definition storage.
type API struct {
	config    *common.Config
	logger    arbor.ILogger
	scheduler interfaces.SchedulerService
	defs      interfaces.JobDefinitionStorage
	runs      interfaces.JobRunStorage
	snapshots interfaces.SnapshotStorage
	insights  interfaces.InsightStorage
	catalog   interfaces.CatalogStorage
	validate  *validator.Validate
	startedAt time.Time
}

// NewAPI creates the handler set
func NewAPI(
	config *common.Config,
	scheduler interfaces.SchedulerService,
	defs interfaces.JobDefinitionStorage,
	runs interfaces.JobRunStorage,
	snapshots interfaces.SnapshotStorage,
	insights interfaces.InsightStorage,
	catalog interfaces.CatalogStorage,
	logger arbor.ILogger,
) *API {
	return &API{
		config:    config,
		logger:    logger,
		scheduler: scheduler,
		defs:      defs,
		runs:      runs,
		snapshots: snapshots,
		insights:  insights,
		catalog:   catalog,
		validate:  validator.New(),
		startedAt: time.Now(),
	}
}
