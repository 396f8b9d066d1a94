package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/storage/sqlite"
)

// Stored scope spellings differ by widget: per-geo widgets use canonical
// geo names ("Global", "India"), while global-only widgets and insights
// use the literal "global". scopeCandidates lists the spellings a request
// scope may be stored under so callers can use either casing.
func scopeCandidates(scope string) []string {
	candidates := []string{scope}
	if geo, ok := models.CanonicalGeo(scope); ok && string(geo) != scope {
		candidates = append(candidates, string(geo))
	}
	if lower := strings.ToLower(scope); !slices.Contains(candidates, lower) {
		candidates = append(candidates, lower)
	}
	return candidates
}

// GetWidget handles GET /api/widgets/{key}: the latest snapshot for
// every scope of one widget.
func (a *API) GetWidget(w http.ResponseWriter, r *http.Request) {
	widgetKey := r.PathValue("key")

	snaps, err := a.snapshots.GetLatestSnapshots(r.Context(), widgetKey)
	if err != nil {
		a.logger.Error().Str("widget_key", widgetKey).Err(err).Msg("Failed to load snapshots")
		WriteError(w, http.StatusInternalServerError, "failed to load snapshots")
		return
	}
	if len(snaps) == 0 {
		WriteError(w, http.StatusNotFound, "no snapshots for widget")
		return
	}
	for _, snap := range snaps {
		a.applyCatalogDefaults(r.Context(), snap)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"widget_key": widgetKey,
		"snapshots":  snaps,
	})
}

// GetWidgetScope handles GET /api/widgets/{key}/{scope}: the latest
// snapshot envelope with its staleness flags.
func (a *API) GetWidgetScope(w http.ResponseWriter, r *http.Request) {
	widgetKey := r.PathValue("key")
	scope := r.PathValue("scope")

	var (
		snap *models.WidgetSnapshot
		err  error
	)
	for _, candidate := range scopeCandidates(scope) {
		snap, err = a.snapshots.GetLatestSnapshot(r.Context(), widgetKey, candidate)
		if err == nil || !errors.Is(err, sqlite.ErrSnapshotNotFound) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, sqlite.ErrSnapshotNotFound) {
			WriteError(w, http.StatusNotFound, "no snapshot for widget/scope")
			return
		}
		a.logger.Error().
			Str("widget_key", widgetKey).
			Str("scope", scope).
			Err(err).
			Msg("Failed to load snapshot")
		WriteError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	a.applyCatalogDefaults(r.Context(), snap)
	WriteJSON(w, http.StatusOK, snap)
}

// applyCatalogDefaults fills envelope fields the adapter left blank from
// the widget catalog entry and appends catalog caveats.
func (a *API) applyCatalogDefaults(ctx context.Context, snap *models.WidgetSnapshot) {
	if snap == nil || snap.Payload == nil {
		return
	}
	def, err := a.catalog.GetWidgetDefinition(ctx, snap.WidgetKey)
	if err != nil {
		if !errors.Is(err, sqlite.ErrWidgetDefinitionNotFound) {
			a.logger.Warn().Str("widget_key", snap.WidgetKey).Err(err).Msg("Failed to load widget catalog entry")
		}
		return
	}
	env := snap.Payload
	if env.Unit == "" {
		env.Unit = def.Unit
	}
	if env.Frequency == "" {
		env.Frequency = def.Frequency
	}
	for _, caveat := range def.Caveats {
		if !slices.Contains(env.Caveats, caveat) {
			env.Caveats = append(env.Caveats, caveat)
		}
	}
}

// GetCatalog handles GET /api/catalog: widget definitions plus the data
// source attribution records behind them.
func (a *API) GetCatalog(w http.ResponseWriter, r *http.Request) {
	widgets, err := a.catalog.ListWidgetDefinitions(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list widget definitions")
		WriteError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	dataSources, err := a.catalog.ListDataSources(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list data sources")
		WriteError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"widgets": widgets,
		"sources": dataSources,
	})
}

// GetInsight handles GET /api/insights?card=&tab=&scope=&lang=
func (a *API) GetInsight(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	card := query.Get("card")
	tab := query.Get("tab")
	scope := query.Get("scope")
	lang := query.Get("lang")
	if card == "" || tab == "" {
		WriteError(w, http.StatusBadRequest, "card and tab are required")
		return
	}
	if scope == "" {
		scope = "global"
	}
	if lang == "" {
		lang = "en"
	}

	var (
		insight *models.WidgetInsight
		err     error
	)
	for _, candidate := range scopeCandidates(scope) {
		insight, err = a.insights.GetLatestInsight(r.Context(), card, tab, candidate, lang)
		if err == nil || !errors.Is(err, sqlite.ErrInsightNotFound) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, sqlite.ErrInsightNotFound) {
			WriteError(w, http.StatusNotFound, "no insight for combination")
			return
		}
		a.logger.Error().
			Str("card", card).
			Str("tab", tab).
			Err(err).
			Msg("Failed to load insight")
		WriteError(w, http.StatusInternalServerError, "failed to load insight")
		return
	}
	WriteJSON(w, http.StatusOK, insight)
}
