package interfaces

import (
	"context"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// JobDefinitionStorage persists scheduled job settings
type JobDefinitionStorage interface {
	SaveJobDefinition(ctx context.Context, def *models.JobDefinition) error
	GetJobDefinition(ctx context.Context, id string) (*models.JobDefinition, error)
	ListJobDefinitions(ctx context.Context) ([]*models.JobDefinition, error)
	GetEnabledJobDefinitions(ctx context.Context) ([]*models.JobDefinition, error)
	DeleteJobDefinition(ctx context.Context, id string) error
	SetJobEnabled(ctx context.Context, id string, enabled bool) error
	TouchLastScheduled(ctx context.Context, id string, at time.Time) error
	TouchLastSuccess(ctx context.Context, id string, at time.Time) error
}

// JobRunListOptions filters run history queries
type JobRunListOptions struct {
	JobID  string
	Status models.JobRunStatus
	Limit  int
	Offset int
}

// JobRunStorage persists job execution records
type JobRunStorage interface {
	CreateJobRun(ctx context.Context, run *models.JobRun) error
	CompleteJobRun(ctx context.Context, id string, status models.JobRunStatus, message, errMsg string) error
	HeartbeatJobRun(ctx context.Context, id string, at time.Time) error
	GetJobRun(ctx context.Context, id string) (*models.JobRun, error)
	ListJobRuns(ctx context.Context, opts *JobRunListOptions) ([]*models.JobRun, error)
	// FailOrphanedRuns marks all rows still in running state as failed.
	// Used at startup after an unclean shutdown. Returns the number of rows updated.
	FailOrphanedRuns(ctx context.Context, reason string) (int, error)
	// FailStaleRuns marks running rows whose heartbeat is older than the
	// cutoff as failed. Returns the number of rows updated.
	FailStaleRuns(ctx context.Context, heartbeatBefore time.Time, reason string) (int, error)
	DeleteTerminalRunsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SnapshotStorage persists the append-only widget snapshot table
type SnapshotStorage interface {
	AppendSnapshot(ctx context.Context, snap *models.WidgetSnapshot) error
	GetLatestSnapshot(ctx context.Context, widgetKey, scope string) (*models.WidgetSnapshot, error)
	GetLatestSnapshots(ctx context.Context, widgetKey string) ([]*models.WidgetSnapshot, error)
	ListSnapshots(ctx context.Context, widgetKey, scope string, limit int) ([]*models.WidgetSnapshot, error)
	CountSnapshots(ctx context.Context) (int, error)
	// DeleteSnapshotsBefore removes rows older than the cutoff while always
	// preserving the newest row per (widget_key, scope). Returns rows deleted.
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InsightStorage persists insights, generation logs and the batch cursor
type InsightStorage interface {
	AppendInsight(ctx context.Context, insight *models.WidgetInsight) error
	// GetLatestInsight serves the read API: the newest LLM row wins over
	// a newer template row for the same key tuple.
	GetLatestInsight(ctx context.Context, cardKey, tabKey, scope, lang string) (*models.WidgetInsight, error)
	// GetNewestInsight returns the most recently appended row regardless
	// of origin; digest dedup compares against this one.
	GetNewestInsight(ctx context.Context, cardKey, tabKey, scope, lang string) (*models.WidgetInsight, error)
	AppendGenerateLog(ctx context.Context, log *models.InsightGenerateLog) error
	CountGenerateLogs(ctx context.Context) (int, error)
	GetJobState(ctx context.Context, jobName string) (*models.InsightJobState, error)
	SaveJobState(ctx context.Context, state *models.InsightJobState) error
}

// CatalogStorage persists data source and widget definition records
type CatalogStorage interface {
	SaveDataSource(ctx context.Context, src *models.DataSource) error
	GetDataSource(ctx context.Context, id string) (*models.DataSource, error)
	ListDataSources(ctx context.Context) ([]*models.DataSource, error)
	SaveWidgetDefinition(ctx context.Context, def *models.WidgetDefinition) error
	GetWidgetDefinition(ctx context.Context, widgetKey string) (*models.WidgetDefinition, error)
	ListWidgetDefinitions(ctx context.Context) ([]*models.WidgetDefinition, error)
}

// KeyValuePair is one stored operational setting
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage stores operational settings and cached values (public
// context excerpts, API keys) with optional expiry.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, description string) error
	SetWithTTL(ctx context.Context, key, value, description string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]KeyValuePair, error)
}

// StorageManager bundles the per-entity storages over one database
type StorageManager interface {
	JobDefinitionStorage() JobDefinitionStorage
	JobRunStorage() JobRunStorage
	SnapshotStorage() SnapshotStorage
	InsightStorage() InsightStorage
	CatalogStorage() CatalogStorage
	KVStorage() KeyValueStorage
	Close() error
}
