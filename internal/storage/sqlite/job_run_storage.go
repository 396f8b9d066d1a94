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

// ErrJobRunNotFound is returned when a job run is not found
var ErrJobRunNotFound = errors.New("job run not found")

// JobRunStorage implements interfaces.JobRunStorage for SQLite
type JobRunStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobRunStorage creates a new JobRunStorage instance
func NewJobRunStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobRunStorage {
	return &JobRunStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJobRun inserts a new run with status running
func (s *JobRunStorage) CreateJobRun(ctx context.Context, run *models.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.HeartbeatAt.IsZero() {
		run.HeartbeatAt = run.StartedAt
	}
	if run.Status == "" {
		run.Status = models.JobRunStatusRunning
	}

	paramsJSON, err := run.MarshalParams()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_runs (id, job_id, status, triggered_by, params, message, error,
		                      started_at, finished_at, duration_ms, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, 0, ?)
	`

	_, err = s.db.DB().ExecContext(ctx, query,
		run.ID, run.JobID, string(run.Status), string(run.TriggeredBy),
		paramsJSON, run.Message, run.Error, run.StartedAt.Unix(), run.HeartbeatAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job run: %w", err)
	}

	return nil
}

// CompleteJobRun applies the single terminal update to a run
func (s *JobRunStorage) CompleteJobRun(ctx context.Context, id string, status models.JobRunStatus, message, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	now := time.Now()
	query := `
		UPDATE job_runs
		SET status = ?, message = ?, error = ?, finished_at = ?,
		    duration_ms = (? - started_at) * 1000
		WHERE id = ? AND status = ?
	`

	result, err := s.db.DB().ExecContext(ctx, query,
		string(status), message, errMsg, now.Unix(), now.Unix(),
		id, string(models.JobRunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to complete job run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobRunNotFound
	}

	return nil
}

// HeartbeatJobRun refreshes the liveness timestamp on a running row
func (s *JobRunStorage) HeartbeatJobRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.DB().ExecContext(ctx,
		`UPDATE job_runs SET heartbeat_at = ? WHERE id = ? AND status = ?`,
		at.Unix(), id, string(models.JobRunStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to heartbeat job run: %w", err)
	}
	return nil
}

// GetJobRun retrieves a run by ID
func (s *JobRunStorage) GetJobRun(ctx context.Context, id string) (*models.JobRun, error) {
	query := jobRunSelect + ` WHERE id = ?`

	row := s.db.DB().QueryRowContext(ctx, query, id)
	run, err := scanJobRunRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobRunNotFound
		}
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}

	return run, nil
}

// ListJobRuns lists runs newest first with optional filtering
func (s *JobRunStorage) ListJobRuns(ctx context.Context, opts *interfaces.JobRunListOptions) ([]*models.JobRun, error) {
	query := jobRunSelect + ` WHERE 1=1`
	args := []interface{}{}

	if opts != nil {
		if opts.JobID != "" {
			query += " AND job_id = ?"
			args = append(args, opts.JobID)
		}
		if opts.Status != "" {
			query += " AND status = ?"
			args = append(args, string(opts.Status))
		}
	}

	query += " ORDER BY started_at DESC"

	if opts != nil && opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.JobRun
	for rows.Next() {
		run, err := scanJobRunRow(rows.Scan)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan job run row, skipping")
			continue
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job run rows: %w", err)
	}

	if runs == nil {
		runs = []*models.JobRun{}
	}
	return runs, nil
}

// FailOrphanedRuns marks all rows still in running state as failed
func (s *JobRunStorage) FailOrphanedRuns(ctx context.Context, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	query := `
		UPDATE job_runs
		SET status = ?, error = ?, finished_at = ?,
		    duration_ms = (? - started_at) * 1000
		WHERE status = ?
	`

	result, err := s.db.DB().ExecContext(ctx, query,
		string(models.JobRunStatusFailed), reason, now.Unix(), now.Unix(),
		string(models.JobRunStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to fail orphaned runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Warn().Int64("count", rowsAffected).Msg("Marked orphaned running jobs as failed")
	}

	return int(rowsAffected), nil
}

// FailStaleRuns marks running rows with an old heartbeat as failed
func (s *JobRunStorage) FailStaleRuns(ctx context.Context, heartbeatBefore time.Time, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	query := `
		UPDATE job_runs
		SET status = ?, error = ?, finished_at = ?,
		    duration_ms = (? - started_at) * 1000
		WHERE status = ? AND heartbeat_at < ?
	`

	result, err := s.db.DB().ExecContext(ctx, query,
		string(models.JobRunStatusFailed), reason, now.Unix(), now.Unix(),
		string(models.JobRunStatusRunning), heartbeatBefore.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// DeleteTerminalRunsBefore removes finished runs older than the cutoff
func (s *JobRunStorage) DeleteTerminalRunsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		DELETE FROM job_runs
		WHERE started_at < ? AND status != ?
	`

	result, err := s.db.DB().ExecContext(ctx, query, cutoff.Unix(), string(models.JobRunStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old job runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

const jobRunSelect = `
	SELECT id, job_id, status, triggered_by, params, COALESCE(message, ''),
	       COALESCE(error, ''), started_at, finished_at, duration_ms, heartbeat_at
	FROM job_runs`

// scanJobRunRow scans one row via the provided scan function
func scanJobRunRow(scan func(dest ...interface{}) error) (*models.JobRun, error) {
	var (
		run                  models.JobRun
		status, triggeredBy  string
		paramsJSON           string
		startedAt, heartbeat int64
		finishedAt           sql.NullInt64
	)

	err := scan(
		&run.ID, &run.JobID, &status, &triggeredBy, &paramsJSON,
		&run.Message, &run.Error, &startedAt, &finishedAt, &run.DurationMs, &heartbeat,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.JobRunStatus(status)
	run.TriggeredBy = models.TriggerSource(triggeredBy)
	run.StartedAt = time.Unix(startedAt, 0)
	run.HeartbeatAt = time.Unix(heartbeat, 0)
	run.FinishedAt = nullableTime(finishedAt)

	if err := run.UnmarshalParams(paramsJSON); err != nil {
		run.Params = make(map[string]interface{})
	}

	return &run, nil
}
