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

// ErrDataSourceNotFound is returned when a data source is not found
var ErrDataSourceNotFound = errors.New("data source not found")

// ErrWidgetDefinitionNotFound is returned when a widget definition is not found
var ErrWidgetDefinitionNotFound = errors.New("widget definition not found")

// CatalogStorage implements interfaces.CatalogStorage for SQLite
type CatalogStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewCatalogStorage creates a new CatalogStorage instance
func NewCatalogStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.CatalogStorage {
	return &CatalogStorage{
		db:     db,
		logger: logger,
	}
}

// SaveDataSource creates or updates a data source record
func (s *CatalogStorage) SaveDataSource(ctx context.Context, src *models.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	src.UpdatedAt = time.Now()

	query := `
		INSERT INTO data_sources (id, name, link, license_note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			link = excluded.link,
			license_note = excluded.license_note,
			updated_at = excluded.updated_at
	`

	_, err := s.db.DB().ExecContext(ctx, query,
		src.ID, src.Name, src.Link, src.LicenseNote,
		src.CreatedAt.Unix(), src.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save data source: %w", err)
	}

	return nil
}

// GetDataSource retrieves a data source by ID
func (s *CatalogStorage) GetDataSource(ctx context.Context, id string) (*models.DataSource, error) {
	query := `
		SELECT id, name, COALESCE(link, ''), COALESCE(license_note, ''), created_at, updated_at
		FROM data_sources WHERE id = ?`

	var (
		src                  models.DataSource
		createdAt, updatedAt int64
	)
	err := s.db.DB().QueryRowContext(ctx, query, id).Scan(
		&src.ID, &src.Name, &src.Link, &src.LicenseNote, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDataSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}

	src.CreatedAt = time.Unix(createdAt, 0)
	src.UpdatedAt = time.Unix(updatedAt, 0)
	return &src, nil
}

// ListDataSources lists all data sources ordered by id
func (s *CatalogStorage) ListDataSources(ctx context.Context) ([]*models.DataSource, error) {
	query := `
		SELECT id, name, COALESCE(link, ''), COALESCE(license_note, ''), created_at, updated_at
		FROM data_sources ORDER BY id ASC`

	rows, err := s.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.DataSource
	for rows.Next() {
		var (
			src                  models.DataSource
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&src.ID, &src.Name, &src.Link, &src.LicenseNote, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data source row: %w", err)
		}
		src.CreatedAt = time.Unix(createdAt, 0)
		src.UpdatedAt = time.Unix(updatedAt, 0)
		sources = append(sources, &src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data source rows: %w", err)
	}

	return sources, nil
}

// SaveWidgetDefinition creates or updates a widget catalog entry
func (s *CatalogStorage) SaveWidgetDefinition(ctx context.Context, def *models.WidgetDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	def.UpdatedAt = time.Now()

	caveatsJSON, err := def.MarshalCaveats()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO widget_definitions (widget_key, title, description, unit, frequency, source_id, caveats, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(widget_key) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			unit = excluded.unit,
			frequency = excluded.frequency,
			source_id = excluded.source_id,
			caveats = excluded.caveats,
			updated_at = excluded.updated_at
	`

	_, err = s.db.DB().ExecContext(ctx, query,
		def.WidgetKey, def.Title, def.Description, def.Unit, def.Frequency,
		def.SourceID, caveatsJSON, def.CreatedAt.Unix(), def.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save widget definition: %w", err)
	}

	return nil
}

// GetWidgetDefinition retrieves a widget catalog entry by key
func (s *CatalogStorage) GetWidgetDefinition(ctx context.Context, widgetKey string) (*models.WidgetDefinition, error) {
	query := widgetDefinitionSelect + ` WHERE widget_key = ?`

	row := s.db.DB().QueryRowContext(ctx, query, widgetKey)
	def, err := scanWidgetDefinitionRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrWidgetDefinitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get widget definition: %w", err)
	}

	return def, nil
}

// ListWidgetDefinitions lists all widget catalog entries
func (s *CatalogStorage) ListWidgetDefinitions(ctx context.Context) ([]*models.WidgetDefinition, error) {
	query := widgetDefinitionSelect + ` ORDER BY widget_key ASC`

	rows, err := s.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list widget definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.WidgetDefinition
	for rows.Next() {
		def, err := scanWidgetDefinitionRow(rows.Scan)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan widget definition row, skipping")
			continue
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating widget definition rows: %w", err)
	}

	return defs, nil
}

const widgetDefinitionSelect = `
	SELECT widget_key, title, COALESCE(description, ''), COALESCE(unit, ''),
	       COALESCE(frequency, ''), COALESCE(source_id, ''), caveats, created_at, updated_at
	FROM widget_definitions`

// scanWidgetDefinitionRow scans one row via the provided scan function
func scanWidgetDefinitionRow(scan func(dest ...interface{}) error) (*models.WidgetDefinition, error) {
	var (
		def                  models.WidgetDefinition
		caveatsJSON          string
		createdAt, updatedAt int64
	)

	err := scan(
		&def.WidgetKey, &def.Title, &def.Description, &def.Unit,
		&def.Frequency, &def.SourceID, &caveatsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.CreatedAt = time.Unix(createdAt, 0)
	def.UpdatedAt = time.Unix(updatedAt, 0)

	if err := def.UnmarshalCaveats(caveatsJSON); err != nil {
		def.Caveats = nil
	}

	return &def, nil
}
