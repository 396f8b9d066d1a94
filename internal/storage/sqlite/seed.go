package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/models"
)

// SeedJobDefinitions inserts registry job definitions that do not yet exist
// and re-enforces the product cron cadence on rows that do. Operator
// customizations to enabled, timezone and default params are preserved.
func SeedJobDefinitions(ctx context.Context, db *SQLiteDB, logger arbor.ILogger, defs []*models.JobDefinition) error {
	query := `
		INSERT INTO job_definitions (
			id, name, description, schedule, timezone, enabled, default_params,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			schedule = excluded.schedule,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("seed definition %s invalid: %w", def.ID, err)
		}

		paramsJSON, err := def.MarshalDefaultParams()
		if err != nil {
			return err
		}

		enabled := 0
		if def.Enabled {
			enabled = 1
		}

		_, err = db.DB().ExecContext(ctx, query,
			def.ID, def.Name, def.Description, def.Schedule, def.Timezone,
			enabled, paramsJSON, now.Unix(), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to seed job definition %s: %w", def.ID, err)
		}
	}

	logger.Info().Int("count", len(defs)).Msg("Job definitions seeded")
	return nil
}

// SeedCatalog upserts the data source and widget definition catalogs
func SeedCatalog(ctx context.Context, m *Manager, sources []*models.DataSource, widgets []*models.WidgetDefinition) error {
	for _, src := range sources {
		if err := m.CatalogStorage().SaveDataSource(ctx, src); err != nil {
			return err
		}
	}
	for _, def := range widgets {
		if err := m.CatalogStorage().SaveWidgetDefinition(ctx, def); err != nil {
			return err
		}
	}
	return nil
}
