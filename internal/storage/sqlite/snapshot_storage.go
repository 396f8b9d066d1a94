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

// ErrSnapshotNotFound is returned when no snapshot exists for a key/scope
var ErrSnapshotNotFound = errors.New("widget snapshot not found")

// SnapshotStorage implements interfaces.SnapshotStorage for SQLite.
// The table is append-only: writers only INSERT, readers resolve "latest"
// by fetched_at at query time.
type SnapshotStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

// AppendSnapshot inserts a new snapshot row; existing rows are never updated
func (s *SnapshotStorage) AppendSnapshot(ctx context.Context, snap *models.WidgetSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}

	payloadJSON, err := snap.MarshalPayload()
	if err != nil {
		return err
	}

	isStale := 0
	if snap.IsStale {
		isStale = 1
	}

	query := `
		INSERT INTO widget_snapshots (
			widget_key, scope, payload, source, is_stale, fetched_at,
			source_updated_at, source_updated_at_note, job_run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.DB().ExecContext(ctx, query,
		snap.WidgetKey, snap.Scope, payloadJSON, snap.Source, isStale,
		snap.FetchedAt.Unix(), nullableUnix(snap.SourceUpdatedAt),
		snap.SourceUpdatedAtNote, snap.JobRunID,
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		snap.ID = id
	}

	s.logger.Debug().
		Str("widget_key", snap.WidgetKey).
		Str("scope", snap.Scope).
		Bool("is_stale", snap.IsStale).
		Msg("Snapshot appended")

	return nil
}

// GetLatestSnapshot returns the newest row for a (widget_key, scope)
func (s *SnapshotStorage) GetLatestSnapshot(ctx context.Context, widgetKey, scope string) (*models.WidgetSnapshot, error) {
	query := snapshotSelect + `
		WHERE widget_key = ? AND scope = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1`

	row := s.db.DB().QueryRowContext(ctx, query, widgetKey, scope)
	snap, err := scanSnapshotRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return snap, nil
}

// GetLatestSnapshots returns the newest row per scope for a widget key
func (s *SnapshotStorage) GetLatestSnapshots(ctx context.Context, widgetKey string) ([]*models.WidgetSnapshot, error) {
	// Bare-column MAX() resolves to the row holding the maximum per group
	query := `
		SELECT id, widget_key, scope, payload, source, is_stale,
		       MAX(fetched_at) AS fetched_at, source_updated_at,
		       COALESCE(source_updated_at_note, ''), COALESCE(job_run_id, '')
		FROM widget_snapshots
		WHERE widget_key = ?
		GROUP BY scope
		ORDER BY scope ASC`

	rows, err := s.db.DB().QueryContext(ctx, query, widgetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshots: %w", err)
	}
	defer rows.Close()

	return s.scanSnapshots(rows)
}

// ListSnapshots returns history for a (widget_key, scope), newest first
func (s *SnapshotStorage) ListSnapshots(ctx context.Context, widgetKey, scope string, limit int) ([]*models.WidgetSnapshot, error) {
	query := snapshotSelect + `
		WHERE widget_key = ? AND scope = ?
		ORDER BY fetched_at DESC, id DESC`
	args := []interface{}{widgetKey, scope}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	return s.scanSnapshots(rows)
}

// CountSnapshots returns the total snapshot row count
func (s *SnapshotStorage) CountSnapshots(ctx context.Context) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM widget_snapshots`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// DeleteSnapshotsBefore removes rows older than the cutoff while always
// keeping the newest row per (widget_key, scope), so the dashboard never
// loses its only copy of a widget even with an aggressive retention window.
func (s *SnapshotStorage) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		DELETE FROM widget_snapshots
		WHERE fetched_at < ?
		  AND id NOT IN (
			SELECT id FROM widget_snapshots
			GROUP BY widget_key, scope
			HAVING MAX(fetched_at)
		  )
	`

	result, err := s.db.DB().ExecContext(ctx, query, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

const snapshotSelect = `
	SELECT id, widget_key, scope, payload, source, is_stale, fetched_at,
	       source_updated_at, COALESCE(source_updated_at_note, ''), COALESCE(job_run_id, '')
	FROM widget_snapshots`

// scanSnapshotRow scans one row via the provided scan function
func scanSnapshotRow(scan func(dest ...interface{}) error) (*models.WidgetSnapshot, error) {
	var (
		snap            models.WidgetSnapshot
		payloadJSON     string
		isStale         int
		fetchedAt       int64
		sourceUpdatedAt sql.NullInt64
	)

	err := scan(
		&snap.ID, &snap.WidgetKey, &snap.Scope, &payloadJSON, &snap.Source,
		&isStale, &fetchedAt, &sourceUpdatedAt, &snap.SourceUpdatedAtNote, &snap.JobRunID,
	)
	if err != nil {
		return nil, err
	}

	snap.IsStale = isStale == 1
	snap.FetchedAt = time.Unix(fetchedAt, 0)
	snap.SourceUpdatedAt = nullableTime(sourceUpdatedAt)

	if err := snap.UnmarshalPayload(payloadJSON); err != nil {
		snap.Payload = &models.Envelope{}
	}

	return &snap, nil
}

// scanSnapshots scans multiple rows into a snapshot slice
func (s *SnapshotStorage) scanSnapshots(rows *sql.Rows) ([]*models.WidgetSnapshot, error) {
	var snaps []*models.WidgetSnapshot

	for rows.Next() {
		snap, err := scanSnapshotRow(rows.Scan)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan snapshot row, skipping")
			continue
		}
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	if snaps == nil {
		snaps = []*models.WidgetSnapshot{}
	}
	return snaps, nil
}
