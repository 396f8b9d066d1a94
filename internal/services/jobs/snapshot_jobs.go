package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/services/insights"
	"github.com/tradewatch/tradewatch/internal/services/sources"
)

// recordSnapshot converts a fetch result into an append-only snapshot
// row. Failed fetches are stored too (is_stale=true with an explanatory
// payload), so "no data" stays distinguishable from "never tried".
func (s *Service) recordSnapshot(ctx context.Context, widgetKey, scope, runID string, result *interfaces.FetchResult) error {
	source := models.SourceInfo{
		Name: result.Meta.SourceName,
		Link: result.Meta.Link,
	}

	var payload *models.Envelope
	if len(result.Data) > 0 {
		payload = &models.Envelope{
			Source:     source,
			Period:     result.Meta.Period,
			Unit:       result.Meta.Unit,
			Frequency:  result.Meta.Frequency,
			Caveats:    result.Meta.Caveats,
			References: result.Meta.References,
			Data:       result.Data,
		}
	} else {
		payload = models.StaleEnvelope(source, result.Error)
	}

	snap := &models.WidgetSnapshot{
		WidgetKey:           widgetKey,
		Scope:               scope,
		Payload:             payload,
		Source:              result.Meta.SourceName,
		IsStale:             !result.OK,
		FetchedAt:           time.Now(),
		SourceUpdatedAt:     result.Meta.SourceUpdatedAt,
		SourceUpdatedAtNote: result.Meta.SourceUpdatedAtNote,
		JobRunID:            runID,
	}
	if err := s.snapshots.AppendSnapshot(ctx, snap); err != nil {
		return err
	}

	s.logger.Debug().
		Str("widget_key", widgetKey).
		Str("scope", scope).
		Bool("stale", snap.IsStale).
		Msg("Snapshot recorded")
	return nil
}

// heartbeat marks the run alive between per-scope fetches, so the
// stale-run detector can tell a slow job from a dead one.
func (s *Service) heartbeat(ctx context.Context, runID string) {
	if runID == "" {
		return
	}
	if err := s.jobRuns.HeartbeatJobRun(ctx, runID, time.Now()); err != nil {
		s.logger.Debug().Str("run_id", runID).Err(err).Msg("Heartbeat failed")
	}
}

// runPerGeo fetches and records one widget for every requested geo.
// Individual failures become stale snapshots, not job errors.
func (s *Service) runPerGeo(ctx context.Context, runID, widgetKey string, geos []models.Geo, params *models.JobParams, adapter interfaces.SourceAdapter) (int, int, error) {
	count := 0
	stale := 0
	for _, geo := range geos {
		if err := ctx.Err(); err != nil {
			return count, stale, err
		}

		result := adapter.Fetch(ctx, geo, params)
		if !result.OK {
			stale++
		}
		if err := s.recordSnapshot(ctx, widgetKey, string(geo), runID, result); err != nil {
			return count, stale, err
		}
		count++
		s.heartbeat(ctx, runID)
	}
	return count, stale, nil
}

func (s *Service) runTradeCorridors(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	adapter := sources.NewTradeCorridorsAdapter(s.client, sources.NewRunCache())
	result := adapter.Fetch(ctx, models.GeoGlobal, params)
	if err := s.recordSnapshot(ctx, models.WidgetKeyTradeCorridors, insights.ScopeGlobal, runID, result); err != nil {
		return "", err
	}
	return "trade corridors snapshot saved", nil
}

func (s *Service) runTradeExim(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	adapter := sources.NewTradeEximAdapter(s.client, sources.NewRunCache())
	count, stale, err := s.runPerGeo(ctx, runID, models.WidgetKeyTradeExim, params.GeoList, params, adapter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("trade exim snapshots saved: %d, stale: %d", count, stale), nil
}

func (s *Service) runWealthIndicators(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	adapter := sources.NewWealthIndicatorsAdapter(s.client, sources.NewRunCache())
	count, stale, err := s.runPerGeo(ctx, runID, models.WidgetKeyWealthIndicators, params.GeoList, params, adapter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wealth indicator snapshots saved: %d, stale: %d", count, stale), nil
}

func (s *Service) runWealthDisposable(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	adapter := sources.NewDisposableIncomeAdapter(s.client, sources.NewRunCache())
	result := adapter.Fetch(ctx, models.GeoGlobal, params)
	if err := s.recordSnapshot(ctx, models.WidgetKeyWealthDisposable, insights.ScopeGlobal, runID, result); err != nil {
		return "", err
	}
	return "wealth disposable snapshot saved", nil
}

func (s *Service) runWealthAgeStructure(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	adapter := sources.NewAgeStructureAdapter(s.client, sources.NewRunCache())
	count, stale, err := s.runPerGeo(ctx, runID, models.WidgetKeyWealthAge, params.GeoList, params, adapter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wealth age-structure snapshots saved: %d, stale: %d", count, stale), nil
}

func (s *Service) runFinanceIndustry(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	adapter := sources.NewMAIndustryAdapter(s.client)
	result := adapter.Fetch(ctx, models.GeoGlobal, params)
	if err := s.recordSnapshot(ctx, models.WidgetKeyFinanceIndustry, insights.ScopeGlobal, runID, result); err != nil {
		return "", err
	}
	return "finance industry snapshot saved", nil
}

func (s *Service) runFinanceCountry(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	adapter := sources.NewMACountryAdapter(s.client)
	result := adapter.Fetch(ctx, models.GeoGlobal, params)
	if err := s.recordSnapshot(ctx, models.WidgetKeyFinanceCountry, insights.ScopeGlobal, runID, result); err != nil {
		return "", err
	}
	return "finance country snapshot saved", nil
}
