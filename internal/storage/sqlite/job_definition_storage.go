package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
)

// ErrJobDefinitionNotFound is returned when a job definition is not found
var ErrJobDefinitionNotFound = errors.New("job definition not found")

// JobDefinitionStorage implements interfaces.JobDefinitionStorage for SQLite
type JobDefinitionStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobDefinitionStorage creates a new JobDefinitionStorage instance
func NewJobDefinitionStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobDefinitionStorage {
	return &JobDefinitionStorage{
		db:     db,
		logger: logger,
	}
}

// SaveJobDefinition creates or updates a job definition
func (s *JobDefinitionStorage) SaveJobDefinition(ctx context.Context, def *models.JobDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := def.Validate(); err != nil {
		return fmt.Errorf("job definition validation failed: %w", err)
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	def.UpdatedAt = time.Now()

	paramsJSON, err := def.MarshalDefaultParams()
	if err != nil {
		return err
	}

	enabled := 0
	if def.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO job_definitions (
			id, name, description, schedule, timezone, enabled, default_params,
			last_scheduled_at, last_success_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			schedule = excluded.schedule,
			timezone = excluded.timezone,
			enabled = excluded.enabled,
			default_params = excluded.default_params,
			updated_at = excluded.updated_at
	`

	_, err = s.db.DB().ExecContext(ctx, query,
		def.ID, def.Name, def.Description, def.Schedule, def.Timezone,
		enabled, paramsJSON,
		nullableUnix(def.LastScheduledAt), nullableUnix(def.LastSuccessAt),
		def.CreatedAt.Unix(), def.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save job definition: %w", err)
	}

	s.logger.Debug().
		Str("job_id", def.ID).
		Str("schedule", def.Schedule).
		Msg("Job definition saved")

	return nil
}

// GetJobDefinition retrieves a job definition by ID
func (s *JobDefinitionStorage) GetJobDefinition(ctx context.Context, id string) (*models.JobDefinition, error) {
	query := jobDefinitionSelect + ` WHERE id = ?`

	row := s.db.DB().QueryRowContext(ctx, query, id)
	def, err := scanJobDefinitionRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobDefinitionNotFound
		}
		return nil, fmt.Errorf("failed to get job definition: %w", err)
	}

	return def, nil
}

// ListJobDefinitions lists all job definitions ordered by id
func (s *JobDefinitionStorage) ListJobDefinitions(ctx context.Context) ([]*models.JobDefinition, error) {
	query := jobDefinitionSelect + ` ORDER BY id ASC`

	rows, err := s.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list job definitions: %w", err)
	}
	defer rows.Close()

	return s.scanJobDefinitions(rows)
}

// GetEnabledJobDefinitions retrieves all enabled job definitions
func (s *JobDefinitionStorage) GetEnabledJobDefinitions(ctx context.Context) ([]*models.JobDefinition, error) {
	query := jobDefinitionSelect + ` WHERE enabled = 1 ORDER BY id ASC`

	rows, err := s.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled job definitions: %w", err)
	}
	defer rows.Close()

	return s.scanJobDefinitions(rows)
}

// DeleteJobDefinition deletes a job definition by ID; runs cascade
func (s *JobDefinitionStorage) DeleteJobDefinition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM job_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobDefinitionNotFound
	}

	s.logger.Info().Str("job_id", id).Msg("Job definition deleted")
	return nil
}

// SetJobEnabled flips the enabled flag for a job definition
func (s *JobDefinitionStorage) SetJobEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabledInt := 0
	if enabled {
		enabledInt = 1
	}

	result, err := s.db.DB().ExecContext(ctx,
		`UPDATE job_definitions SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabledInt, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update enabled flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobDefinitionNotFound
	}

	return nil
}

// TouchLastScheduled records the time a run was admitted for the job
func (s *JobDefinitionStorage) TouchLastScheduled(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.DB().ExecContext(ctx,
		`UPDATE job_definitions SET last_scheduled_at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update last_scheduled_at: %w", err)
	}
	return nil
}

// TouchLastSuccess records the time a run finished successfully
func (s *JobDefinitionStorage) TouchLastSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.DB().ExecContext(ctx,
		`UPDATE job_definitions SET last_success_at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update last_success_at: %w", err)
	}
	return nil
}

const jobDefinitionSelect = `
	SELECT id, name, COALESCE(description, ''), schedule, timezone, enabled,
	       default_params, last_scheduled_at, last_success_at, created_at, updated_at
	FROM job_definitions`

// scanJobDefinitionRow scans one row via the provided scan function
func scanJobDefinitionRow(scan func(dest ...interface{}) error) (*models.JobDefinition, error) {
	var (
		def                           models.JobDefinition
		enabled                       int
		paramsJSON                    string
		lastScheduledAt, lastSuccessAt sql.NullInt64
		createdAt, updatedAt          int64
	)

	err := scan(
		&def.ID, &def.Name, &def.Description, &def.Schedule, &def.Timezone,
		&enabled, &paramsJSON, &lastScheduledAt, &lastSuccessAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.Enabled = enabled == 1
	def.CreatedAt = time.Unix(createdAt, 0)
	def.UpdatedAt = time.Unix(updatedAt, 0)
	def.LastScheduledAt = nullableTime(lastScheduledAt)
	def.LastSuccessAt = nullableTime(lastSuccessAt)

	if err := def.UnmarshalDefaultParams(paramsJSON); err != nil {
		def.DefaultParams = make(map[string]interface{})
	}

	return &def, nil
}

// scanJobDefinitions scans multiple rows into a JobDefinition slice
func (s *JobDefinitionStorage) scanJobDefinitions(rows *sql.Rows) ([]*models.JobDefinition, error) {
	var defs []*models.JobDefinition

	for rows.Next() {
		def, err := scanJobDefinitionRow(rows.Scan)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan job definition row, skipping")
			continue
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job definition rows: %w", err)
	}

	return defs, nil
}

// nullableUnix converts an optional time to a nullable Unix value
func nullableUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// nullableTime converts a nullable Unix value back to an optional time
func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
