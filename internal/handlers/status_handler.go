package handlers

import (
	"net/http"
	"time"

	"github.com/tradewatch/tradewatch/internal/common"
)

// Health handles GET /api/health
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version handles GET /api/version
func (a *API) Version(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// Status handles GET /api/status: a small operational summary
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	snapshotCount, err := a.snapshots.CountSnapshots(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to count snapshots")
		WriteError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"version":          common.GetVersion(),
		"environment":      a.config.Environment,
		"uptime_seconds":   int(time.Since(a.startedAt).Seconds()),
		"snapshot_count":   snapshotCount,
		"globally_enabled": a.scheduler.IsGloballyEnabled(),
	})
}
