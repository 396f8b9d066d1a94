package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/models"
)

func TestInsightStorage_AppendAndLatest(t *testing.T) {
	db := setupTestDB(t)
	storage := NewInsightStorage(db, arbor.NewLogger())
	ctx := context.Background()

	older := &models.WidgetInsight{
		ID:          common.NewInsightID(),
		CardKey:     "trade",
		TabKey:      "exim",
		Scope:       "India",
		Lang:        "en",
		Content:     "Exports grew strongly.",
		DataDigest:  "digest-1",
		InputKeys:   []string{"trade_exim|India|1"},
		GeneratedBy: models.InsightOriginLLM,
		LLMProvider: "gemini",
		LLMModel:    "gemini-2.5-flash",
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, storage.AppendInsight(ctx, older))

	newer := &models.WidgetInsight{
		ID:          common.NewInsightID(),
		CardKey:     "trade",
		TabKey:      "exim",
		Scope:       "India",
		Lang:        "en",
		Content:     "Exports moderated.",
		References:  []models.Reference{{Title: "World Bank WDI", URL: "https://data.worldbank.org"}},
		DataDigest:  "digest-2",
		InputKeys:   []string{"trade_exim|India|2"},
		GeneratedBy: models.InsightOriginLLM,
		LLMProvider: "gemini",
		LLMModel:    "gemini-2.5-flash",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, storage.AppendInsight(ctx, newer))

	got, err := storage.GetLatestInsight(ctx, "trade", "exim", "India", "en")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, "digest-2", got.DataDigest)
	require.Len(t, got.References, 1)
	assert.Equal(t, "World Bank WDI", got.References[0].Title)
	assert.Equal(t, []string{"trade_exim|India|2"}, got.InputKeys)
}

func TestInsightStorage_LLMPreferredOverNewerTemplate(t *testing.T) {
	db := setupTestDB(t)
	storage := NewInsightStorage(db, arbor.NewLogger())
	ctx := context.Background()

	llm := &models.WidgetInsight{
		ID:          common.NewInsightID(),
		CardKey:     "wealth",
		TabKey:      "indicators",
		Scope:       "Mexico",
		Lang:        "en",
		Content:     "GDP per capita rose.",
		DataDigest:  "d1",
		GeneratedBy: models.InsightOriginLLM,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, storage.AppendInsight(ctx, llm))

	tmpl := &models.WidgetInsight{
		ID:          common.NewInsightID(),
		CardKey:     "wealth",
		TabKey:      "indicators",
		Scope:       "Mexico",
		Lang:        "en",
		Content:     "Latest data shown below.",
		DataDigest:  "d2",
		GeneratedBy: models.InsightOriginTemplate,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, storage.AppendInsight(ctx, tmpl))

	got, err := storage.GetLatestInsight(ctx, "wealth", "indicators", "Mexico", "en")
	require.NoError(t, err)
	assert.Equal(t, llm.ID, got.ID, "llm content wins over a newer template row")

	// The dedup lookup sees the strictly newest row instead
	newest, err := storage.GetNewestInsight(ctx, "wealth", "indicators", "Mexico", "en")
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, newest.ID)
	assert.Equal(t, "d2", newest.DataDigest)
}

func TestInsightStorage_NewestBreaksCreatedAtTiesByInsertOrder(t *testing.T) {
	db := setupTestDB(t)
	storage := NewInsightStorage(db, arbor.NewLogger())
	ctx := context.Background()

	at := time.Now()
	first := &models.WidgetInsight{
		ID: common.NewInsightID(), CardKey: "trade", TabKey: "wci", Scope: "global", Lang: "en",
		Content: "old", DataDigest: "d1", GeneratedBy: models.InsightOriginLLM, CreatedAt: at,
	}
	second := &models.WidgetInsight{
		ID: common.NewInsightID(), CardKey: "trade", TabKey: "wci", Scope: "global", Lang: "en",
		Content: "new", DataDigest: "d2", GeneratedBy: models.InsightOriginTemplate, CreatedAt: at,
	}
	require.NoError(t, storage.AppendInsight(ctx, first))
	require.NoError(t, storage.AppendInsight(ctx, second))

	newest, err := storage.GetNewestInsight(ctx, "trade", "wci", "global", "en")
	require.NoError(t, err)
	assert.Equal(t, second.ID, newest.ID, "same-second rows resolve by insertion order")
}

func TestInsightStorage_NotFound(t *testing.T) {
	db := setupTestDB(t)
	storage := NewInsightStorage(db, arbor.NewLogger())

	_, err := storage.GetLatestInsight(context.Background(), "trade", "exim", "Global", "en")
	assert.ErrorIs(t, err, ErrInsightNotFound)
}

func TestInsightStorage_GenerateLog(t *testing.T) {
	db := setupTestDB(t)
	storage := NewInsightStorage(db, arbor.NewLogger())
	ctx := context.Background()

	log := &models.InsightGenerateLog{
		ID:       common.NewInsightLogID(),
		CardKey:  "finance",
		TabKey:   "industry",
		Scope:    "Global",
		Lang:     "en",
		Provider: "claude",
		Model:    "claude-haiku-3-5-20241022",
		OK:       false,
		Error:    "rate limited",
	}
	require.NoError(t, storage.AppendGenerateLog(ctx, log))

	count, err := storage.CountGenerateLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsightStorage_JobStateCursor(t *testing.T) {
	db := setupTestDB(t)
	storage := NewInsightStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// Absent state reads as cursor zero
	state, err := storage.GetJobState(ctx, "generate_insights")
	require.NoError(t, err)
	assert.Zero(t, state.Cursor)

	state.Cursor = 12
	require.NoError(t, storage.SaveJobState(ctx, state))

	got, err := storage.GetJobState(ctx, "generate_insights")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Cursor)

	// Cursor survives wrap updates
	got.Cursor = 0
	require.NoError(t, storage.SaveJobState(ctx, got))

	got, err = storage.GetJobState(ctx, "generate_insights")
	require.NoError(t, err)
	assert.Zero(t, got.Cursor)
}
