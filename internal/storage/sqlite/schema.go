package sqlite

import (
	"context"
	"fmt"
)

const schemaSQL = `
-- Scheduled job settings, seeded from the registry at startup
CREATE TABLE IF NOT EXISTS job_definitions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	schedule TEXT NOT NULL,
	timezone TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 1,
	default_params TEXT NOT NULL DEFAULT '{}',
	last_scheduled_at INTEGER,
	last_success_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Execution records; one row per admitted run, never mutated after the
-- terminal update except by retention cleanup
CREATE TABLE IF NOT EXISTS job_runs (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	status TEXT NOT NULL,
	triggered_by TEXT NOT NULL,
	params TEXT NOT NULL DEFAULT '{}',
	message TEXT,
	error TEXT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	heartbeat_at INTEGER NOT NULL,
	FOREIGN KEY (job_id) REFERENCES job_definitions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_job_runs_status ON job_runs(status);

-- Append-only widget snapshots; latest row by fetched_at wins at read time.
-- job_run_id is intentionally not a foreign key so provenance survives run
-- deletion by retention cleanup.
CREATE TABLE IF NOT EXISTS widget_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	widget_key TEXT NOT NULL,
	scope TEXT NOT NULL,
	payload TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	is_stale INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL,
	source_updated_at INTEGER,
	source_updated_at_note TEXT,
	job_run_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_latest ON widget_snapshots(widget_key, scope, fetched_at DESC);

-- Generated commentary; appended only when the input digest changes
CREATE TABLE IF NOT EXISTS widget_insights (
	id TEXT PRIMARY KEY,
	card_key TEXT NOT NULL,
	tab_key TEXT NOT NULL,
	scope TEXT NOT NULL,
	lang TEXT NOT NULL,
	content TEXT NOT NULL,
	reference_list TEXT NOT NULL DEFAULT '[]',
	data_digest TEXT NOT NULL,
	input_keys TEXT NOT NULL DEFAULT '[]',
	source_updated_at INTEGER,
	generated_by TEXT NOT NULL,
	llm_provider TEXT,
	llm_model TEXT,
	job_run_id TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_insights_latest ON widget_insights(card_key, tab_key, scope, lang, created_at DESC);

-- One row per LLM attempt, success or failure; never written on a cache hit
CREATE TABLE IF NOT EXISTS insight_generate_logs (
	id TEXT PRIMARY KEY,
	card_key TEXT NOT NULL,
	tab_key TEXT NOT NULL,
	scope TEXT NOT NULL,
	lang TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	endpoint TEXT,
	request_payload TEXT,
	response_status INTEGER,
	response_raw TEXT,
	parsed_content TEXT,
	reference_list TEXT,
	ok INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generate_logs_created ON insight_generate_logs(created_at DESC);

-- Durable round-robin cursor for batched insight generation
CREATE TABLE IF NOT EXISTS widget_insight_job_state (
	job_name TEXT PRIMARY KEY,
	cursor INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

-- Upstream source catalog with attribution defaults
CREATE TABLE IF NOT EXISTS data_sources (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	link TEXT,
	license_note TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Widget catalog: titles, units and caveats merged into envelopes
CREATE TABLE IF NOT EXISTS widget_definitions (
	widget_key TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	unit TEXT,
	frequency TEXT,
	source_id TEXT,
	caveats TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Operational settings and cached values with optional expiry
CREATE TABLE IF NOT EXISTS kv_pairs (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	description TEXT,
	expires_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// migrate creates the schema and applies incremental column additions
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Incremental migrations for databases created before a column existed
	additions := []struct {
		table  string
		column string
		ddl    string
	}{
		{"job_runs", "heartbeat_at", "ALTER TABLE job_runs ADD COLUMN heartbeat_at INTEGER NOT NULL DEFAULT 0"},
		{"kv_pairs", "expires_at", "ALTER TABLE kv_pairs ADD COLUMN expires_at INTEGER"},
	}

	for _, a := range additions {
		exists, err := s.columnExists(ctx, a.table, a.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := s.db.ExecContext(ctx, a.ddl); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", a.table, a.column, err)
			}
			s.logger.Info().Str("table", a.table).Str("column", a.column).Msg("Applied column migration")
		}
	}

	return nil
}

// columnExists checks PRAGMA table_info for a column
func (s *SQLiteDB) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to read table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    interface{}
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
