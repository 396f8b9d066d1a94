package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
)

const systemPrompt = `You are an economic analyst writing one short dashboard insight.
Respond with a single JSON object: {"insight": "<2-3 sentences>", "references": [{"title": "...", "url": "..."}]}.
Ground every statement in the provided snapshot data and caveats; never invent numbers.
Mention staleness when the data is flagged stale. Write in the requested language.`

// ProviderSource resolves the active LLM provider for a model string
type ProviderSource interface {
	ActiveProvider(model string) (interfaces.LLMProvider, error)
}

// Generator produces widget insights from the latest snapshots: digest
// dedup first, LLM generation when configured, template fallback so the
// dashboard always has commentary to render.
type Generator struct {
	snapshots     interfaces.SnapshotStorage
	insights      interfaces.InsightStorage
	providers     ProviderSource
	publicContext *PublicContextService
	logger        arbor.ILogger
	config        *common.Config
}

// NewGenerator creates the insight generator. publicContext may be nil
// to skip prompt grounding with page excerpts.
func NewGenerator(
	snapshots interfaces.SnapshotStorage,
	insights interfaces.InsightStorage,
	providers ProviderSource,
	publicContext *PublicContextService,
	config *common.Config,
	logger arbor.ILogger,
) *Generator {
	return &Generator{
		snapshots:     snapshots,
		insights:      insights,
		providers:     providers,
		publicContext: publicContext,
		logger:        logger,
		config:        config,
	}
}

// BatchResult summarizes one generator invocation
type BatchResult struct {
	Processed int
	Generated int
	Templates int
	CacheHits int
	NoData    int
	Failed    int
}

// Message renders the run summary stored on the job run row
func (r *BatchResult) Message() string {
	return fmt.Sprintf("insights: generated=%d templates=%d cache_hits=%d no_data=%d failed=%d",
		r.Generated, r.Templates, r.CacheHits, r.NoData, r.Failed)
}

// GenerateBatch processes up to batch_size combinations starting at the
// durable cursor, then advances the cursor past the batch. The run
// fails only when every attempted combination failed.
func (g *Generator) GenerateBatch(ctx context.Context, jobName, jobRunID string, force bool) (*BatchResult, error) {
	combos := Combinations(g.config.Insights.Languages)
	if len(combos) == 0 {
		return &BatchResult{}, nil
	}

	batchSize := g.config.Insights.BatchSize
	if batchSize <= 0 {
		batchSize = 12
	}
	if batchSize > len(combos) {
		batchSize = len(combos)
	}

	state, err := g.insights.GetJobState(ctx, jobName)
	if err != nil {
		return nil, fmt.Errorf("failed to load insight job state: %w", err)
	}
	if state.Cursor < 0 || state.Cursor >= len(combos) {
		state.Cursor = 0
	}

	result := &BatchResult{}
	attempts := 0
	for i := 0; i < batchSize; i++ {
		combo := combos[(state.Cursor+i)%len(combos)]
		outcome := g.generateOne(ctx, combo, jobRunID, force)
		result.Processed++
		switch outcome {
		case outcomeGenerated:
			attempts++
			result.Generated++
		case outcomeFailed:
			attempts++
			result.Failed++
			result.Templates++
		case outcomeTemplate:
			result.Templates++
		case outcomeCacheHit:
			result.CacheHits++
		case outcomeNoData:
			result.NoData++
		}
	}

	state.Cursor = (state.Cursor + batchSize) % len(combos)
	if err := g.insights.SaveJobState(ctx, state); err != nil {
		return result, fmt.Errorf("failed to save insight cursor: %w", err)
	}

	if attempts > 0 && result.Generated == 0 {
		return result, fmt.Errorf("all %d generation attempts failed", attempts)
	}
	return result, nil
}

type outcome int

const (
	outcomeGenerated outcome = iota
	outcomeTemplate
	outcomeCacheHit
	outcomeNoData
	outcomeFailed
)

func (g *Generator) generateOne(ctx context.Context, combo Combination, jobRunID string, force bool) outcome {
	snapshots := make(map[SnapshotRef]*models.WidgetSnapshot, len(combo.Inputs))
	identities := make([]InputIdentity, 0, len(combo.Inputs))
	for _, ref := range combo.Inputs {
		snap, err := g.snapshots.GetLatestSnapshot(ctx, ref.WidgetKey, ref.Scope)
		if err != nil {
			continue
		}
		snapshots[ref] = snap
		identities = append(identities, IdentityOf(snap))
	}
	if len(identities) == 0 {
		return outcomeNoData
	}

	digest := Digest(identities)

	latest, err := g.insights.GetNewestInsight(ctx, combo.CardKey, combo.TabKey, combo.Scope, combo.Lang)
	if err == nil && latest.DataDigest == digest && !force {
		return outcomeCacheHit
	}

	provider, err := g.providers.ActiveProvider("")
	if err != nil {
		g.logger.Warn().Err(err).Msg("LLM provider unavailable; storing template insight")
	}
	if provider == nil || err != nil {
		g.appendInsight(ctx, combo, digest, identities, snapshots, jobRunID, TemplateContent(combo, snapshots), nil, models.InsightOriginTemplate, "", "")
		return outcomeTemplate
	}

	parsed, llmErr := g.attemptLLM(ctx, combo, snapshots, provider, jobRunID)
	if llmErr != nil {
		// Template row carries the same digest, so the next unchanged
		// run is a cache hit instead of hammering a failing provider
		g.appendInsight(ctx, combo, digest, identities, snapshots, jobRunID, TemplateContent(combo, snapshots), nil, models.InsightOriginTemplate, "", "")
		return outcomeFailed
	}

	g.appendInsight(ctx, combo, digest, identities, snapshots, jobRunID, parsed.Insight, parsed.References, models.InsightOriginLLM, provider.Name(), provider.Model())
	return outcomeGenerated
}

// attemptLLM runs one provider call and always writes a generate log row
func (g *Generator) attemptLLM(ctx context.Context, combo Combination, snapshots map[SnapshotRef]*models.WidgetSnapshot, provider interfaces.LLMProvider, jobRunID string) (*ParsedInsight, error) {
	userPrompt := g.buildUserPrompt(ctx, combo, snapshots)
	req := &interfaces.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	}

	logRow := &models.InsightGenerateLog{
		ID:             common.NewInsightLogID(),
		CardKey:        combo.CardKey,
		TabKey:         combo.TabKey,
		Scope:          combo.Scope,
		Lang:           combo.Lang,
		Provider:       provider.Name(),
		Model:          provider.Model(),
		RequestPayload: userPrompt,
		CreatedAt:      time.Now(),
	}

	started := time.Now()
	resp, err := provider.Complete(ctx, req)
	logRow.DurationMs = time.Since(started).Milliseconds()

	if err != nil {
		logRow.Error = err.Error()
		g.appendLog(ctx, logRow)
		g.logger.Warn().
			Str("card", combo.CardKey).
			Str("tab", combo.TabKey).
			Str("scope", combo.Scope).
			Err(err).
			Msg("LLM generation failed")
		return nil, err
	}

	logRow.ResponseRaw = resp.Text
	parsed, ok := ParseInsightResponse(resp.Text)
	if !ok {
		logRow.Error = "no insight found in response"
		g.appendLog(ctx, logRow)
		return nil, fmt.Errorf("no insight found in response")
	}

	logRow.OK = true
	logRow.ParsedContent = parsed.Insight
	if refs, err := json.Marshal(parsed.References); err == nil {
		logRow.References = string(refs)
	}
	g.appendLog(ctx, logRow)
	return parsed, nil
}

func (g *Generator) appendLog(ctx context.Context, logRow *models.InsightGenerateLog) {
	if err := g.insights.AppendGenerateLog(ctx, logRow); err != nil {
		g.logger.Error().Err(err).Msg("Failed to write insight generate log")
	}
}

func (g *Generator) appendInsight(
	ctx context.Context,
	combo Combination,
	digest string,
	identities []InputIdentity,
	snapshots map[SnapshotRef]*models.WidgetSnapshot,
	jobRunID, content string,
	references []models.Reference,
	origin models.InsightOrigin,
	providerName, model string,
) {
	insight := &models.WidgetInsight{
		ID:              common.NewInsightID(),
		CardKey:         combo.CardKey,
		TabKey:          combo.TabKey,
		Scope:           combo.Scope,
		Lang:            combo.Lang,
		Content:         content,
		References:      references,
		DataDigest:      digest,
		InputKeys:       InputKeys(identities),
		SourceUpdatedAt: newestSourceUpdatedAt(snapshots),
		GeneratedBy:     origin,
		LLMProvider:     providerName,
		LLMModel:        model,
		JobRunID:        jobRunID,
		CreatedAt:       time.Now(),
	}
	if err := g.insights.AppendInsight(ctx, insight); err != nil {
		g.logger.Error().
			Str("card", combo.CardKey).
			Str("tab", combo.TabKey).
			Err(err).
			Msg("Failed to append insight")
	}
}

func newestSourceUpdatedAt(snapshots map[SnapshotRef]*models.WidgetSnapshot) *time.Time {
	var newest *time.Time
	for _, snap := range snapshots {
		if snap.SourceUpdatedAt == nil {
			continue
		}
		if newest == nil || snap.SourceUpdatedAt.After(*newest) {
			newest = snap.SourceUpdatedAt
		}
	}
	return newest
}

// promptEnvelope is the snapshot summary embedded in the user prompt
type promptEnvelope struct {
	WidgetKey       string           `json:"widget_key"`
	Scope           string           `json:"scope"`
	IsStale         bool             `json:"is_stale"`
	FetchedAt       string           `json:"fetched_at"`
	SourceUpdatedAt string           `json:"source_updated_at,omitempty"`
	Payload         *models.Envelope `json:"payload"`
}

func (g *Generator) buildUserPrompt(ctx context.Context, combo Combination, snapshots map[SnapshotRef]*models.WidgetSnapshot) string {
	envelopes := make([]promptEnvelope, 0, len(combo.Inputs))
	contextURL := ""
	for _, ref := range combo.Inputs {
		snap := snapshots[ref]
		if snap == nil {
			continue
		}
		envelope := promptEnvelope{
			WidgetKey: snap.WidgetKey,
			Scope:     snap.Scope,
			IsStale:   snap.IsStale,
			FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339),
			Payload:   snap.Payload,
		}
		if snap.SourceUpdatedAt != nil {
			envelope.SourceUpdatedAt = snap.SourceUpdatedAt.UTC().Format(time.RFC3339)
		}
		envelopes = append(envelopes, envelope)

		if contextURL == "" && snap.Payload != nil && snap.Payload.Source.Link != "" {
			contextURL = snap.Payload.Source.Link
		}
	}

	prompt := map[string]interface{}{
		"card":      combo.CardKey,
		"tab":       combo.TabKey,
		"scope":     combo.Scope,
		"language":  combo.Lang,
		"snapshots": envelopes,
	}
	if g.publicContext != nil && contextURL != "" {
		if excerpt := g.publicContext.Excerpt(ctx, contextURL); excerpt != "" {
			prompt["source_page_excerpt"] = excerpt
		}
	}

	raw, _ := json.Marshal(prompt)
	return string(raw)
}
