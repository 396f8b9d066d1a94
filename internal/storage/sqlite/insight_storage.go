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

// ErrInsightNotFound is returned when no insight exists for the key tuple
var ErrInsightNotFound = errors.New("widget insight not found")

// InsightStorage implements interfaces.InsightStorage for SQLite
type InsightStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewInsightStorage creates a new InsightStorage instance
func NewInsightStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.InsightStorage {
	return &InsightStorage{
		db:     db,
		logger: logger,
	}
}

// AppendInsight inserts a new insight row
func (s *InsightStorage) AppendInsight(ctx context.Context, insight *models.WidgetInsight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now()
	}

	refsJSON, err := insight.MarshalReferences()
	if err != nil {
		return err
	}
	keysJSON, err := insight.MarshalInputKeys()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO widget_insights (
			id, card_key, tab_key, scope, lang, content, reference_list,
			data_digest, input_keys, source_updated_at, generated_by,
			llm_provider, llm_model, job_run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.DB().ExecContext(ctx, query,
		insight.ID, insight.CardKey, insight.TabKey, insight.Scope, insight.Lang,
		insight.Content, refsJSON, insight.DataDigest, keysJSON,
		nullableUnix(insight.SourceUpdatedAt), string(insight.GeneratedBy),
		insight.LLMProvider, insight.LLMModel, insight.JobRunID, insight.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append insight: %w", err)
	}

	s.logger.Debug().
		Str("card_key", insight.CardKey).
		Str("tab_key", insight.TabKey).
		Str("scope", insight.Scope).
		Str("generated_by", string(insight.GeneratedBy)).
		Msg("Insight appended")

	return nil
}

// GetLatestInsight returns the newest insight for (card, tab, scope, lang),
// preferring the latest LLM row over a newer template row.
func (s *InsightStorage) GetLatestInsight(ctx context.Context, cardKey, tabKey, scope, lang string) (*models.WidgetInsight, error) {
	query := insightSelect + `
		WHERE card_key = ? AND tab_key = ? AND scope = ? AND lang = ?
		ORDER BY (generated_by = 'llm') DESC, created_at DESC, rowid DESC
		LIMIT 1`

	row := s.db.DB().QueryRowContext(ctx, query, cardKey, tabKey, scope, lang)
	insight, err := scanInsightRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInsightNotFound
		}
		return nil, fmt.Errorf("failed to get latest insight: %w", err)
	}

	return insight, nil
}

// GetNewestInsight returns the most recently appended insight for
// (card, tab, scope, lang) regardless of how it was generated. Digest
// dedup must compare against this row: a template row written after an
// LLM failure carries the current digest, and letting an older LLM row
// shadow it would retry the provider on every unchanged run.
func (s *InsightStorage) GetNewestInsight(ctx context.Context, cardKey, tabKey, scope, lang string) (*models.WidgetInsight, error) {
	query := insightSelect + `
		WHERE card_key = ? AND tab_key = ? AND scope = ? AND lang = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	row := s.db.DB().QueryRowContext(ctx, query, cardKey, tabKey, scope, lang)
	insight, err := scanInsightRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInsightNotFound
		}
		return nil, fmt.Errorf("failed to get newest insight: %w", err)
	}

	return insight, nil
}

// AppendGenerateLog inserts one LLM attempt record
func (s *InsightStorage) AppendGenerateLog(ctx context.Context, log *models.InsightGenerateLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	ok := 0
	if log.OK {
		ok = 1
	}

	query := `
		INSERT INTO insight_generate_logs (
			id, card_key, tab_key, scope, lang, provider, model, endpoint,
			request_payload, response_status, response_raw, parsed_content,
			reference_list, ok, error, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.DB().ExecContext(ctx, query,
		log.ID, log.CardKey, log.TabKey, log.Scope, log.Lang,
		log.Provider, log.Model, log.Endpoint, log.RequestPayload,
		log.ResponseStatus, log.ResponseRaw, log.ParsedContent,
		log.References, ok, log.Error, log.DurationMs, log.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append generate log: %w", err)
	}

	return nil
}

// CountGenerateLogs returns the total LLM attempt count
func (s *InsightStorage) CountGenerateLogs(ctx context.Context) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM insight_generate_logs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count generate logs: %w", err)
	}
	return count, nil
}

// GetJobState returns the durable batch cursor for a job, zero when absent
func (s *InsightStorage) GetJobState(ctx context.Context, jobName string) (*models.InsightJobState, error) {
	var (
		state     models.InsightJobState
		updatedAt int64
	)

	query := `SELECT job_name, cursor, updated_at FROM widget_insight_job_state WHERE job_name = ?`
	err := s.db.DB().QueryRowContext(ctx, query, jobName).Scan(&state.JobName, &state.Cursor, &updatedAt)
	if err == sql.ErrNoRows {
		return &models.InsightJobState{JobName: jobName, Cursor: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight job state: %w", err)
	}

	state.UpdatedAt = time.Unix(updatedAt, 0)
	return &state, nil
}

// SaveJobState upserts the batch cursor
func (s *InsightStorage) SaveJobState(ctx context.Context, state *models.InsightJobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.UpdatedAt = time.Now()

	query := `
		INSERT INTO widget_insight_job_state (job_name, cursor, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(job_name) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at
	`

	_, err := s.db.DB().ExecContext(ctx, query, state.JobName, state.Cursor, state.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save insight job state: %w", err)
	}

	return nil
}

const insightSelect = `
	SELECT id, card_key, tab_key, scope, lang, content, reference_list,
	       data_digest, input_keys, source_updated_at, generated_by,
	       COALESCE(llm_provider, ''), COALESCE(llm_model, ''),
	       COALESCE(job_run_id, ''), created_at
	FROM widget_insights`

// scanInsightRow scans one row via the provided scan function
func scanInsightRow(scan func(dest ...interface{}) error) (*models.WidgetInsight, error) {
	var (
		insight         models.WidgetInsight
		refsJSON        string
		keysJSON        string
		generatedBy     string
		sourceUpdatedAt sql.NullInt64
		createdAt       int64
	)

	err := scan(
		&insight.ID, &insight.CardKey, &insight.TabKey, &insight.Scope, &insight.Lang,
		&insight.Content, &refsJSON, &insight.DataDigest, &keysJSON,
		&sourceUpdatedAt, &generatedBy, &insight.LLMProvider, &insight.LLMModel,
		&insight.JobRunID, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	insight.GeneratedBy = models.InsightOrigin(generatedBy)
	insight.SourceUpdatedAt = nullableTime(sourceUpdatedAt)
	insight.CreatedAt = time.Unix(createdAt, 0)

	if err := insight.UnmarshalReferences(refsJSON); err != nil {
		insight.References = nil
	}
	if err := insight.UnmarshalInputKeys(keysJSON); err != nil {
		insight.InputKeys = nil
	}

	return &insight, nil
}
