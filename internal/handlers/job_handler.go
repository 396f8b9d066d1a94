package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/storage/sqlite"
)

// ListJobs handles GET /api/jobs
func (a *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := a.scheduler.JobStatuses(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list job statuses")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":             statuses,
		"globally_enabled": a.scheduler.IsGloballyEnabled(),
	})
}

// TriggerJob handles POST /api/jobs/{id}/trigger. The optional JSON
// body is a params override shallow-merged over the definition
// defaults. The run itself executes asynchronously.
func (a *API) TriggerJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	// An empty or malformed body means no override
	var override map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
		override = nil
	}

	result := a.scheduler.TriggerAsync(r.Context(), jobID, override, models.TriggerSourceAPI)
	switch result.Status {
	case interfaces.TriggerStatusStarted:
		WriteJSON(w, http.StatusOK, result)
	case interfaces.TriggerStatusRejectedRunning:
		WriteJSON(w, http.StatusConflict, result)
	case interfaces.TriggerStatusRejectedDisabled:
		WriteJSON(w, http.StatusForbidden, result)
	default:
		WriteJSON(w, http.StatusNotFound, result)
	}
}

// jobUpdateRequest is the PUT /api/jobs/{id} body; nil fields are
// left unchanged.
type jobUpdateRequest struct {
	Schedule      *string                `json:"schedule" validate:"omitempty,min=9,max=64"`
	Timezone      *string                `json:"timezone" validate:"omitempty,max=64"`
	Enabled       *bool                  `json:"enabled"`
	DefaultParams map[string]interface{} `json:"default_params"`
}

// UpdateJob handles PUT /api/jobs/{id}
func (a *API) UpdateJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req jobUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	def, err := a.defs.GetJobDefinition(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, sqlite.ErrJobDefinitionNotFound) {
			WriteError(w, http.StatusNotFound, "unknown job")
			return
		}
		a.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to load job definition")
		WriteError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	if req.Schedule != nil {
		def.Schedule = *req.Schedule
	}
	if req.Timezone != nil {
		def.Timezone = *req.Timezone
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}
	if req.DefaultParams != nil {
		def.DefaultParams = req.DefaultParams
	}

	// Full-definition validation covers cron syntax and timezone names
	if err := def.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.defs.SaveJobDefinition(r.Context(), def); err != nil {
		a.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to save job definition")
		WriteError(w, http.StatusInternalServerError, "failed to save job")
		return
	}
	if err := a.scheduler.Reload(r.Context(), jobID); err != nil {
		a.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to reschedule job after update")
	}

	WriteJSON(w, http.StatusOK, def)
}

// EnableJob handles POST /api/jobs/{id}/enable
func (a *API) EnableJob(w http.ResponseWriter, r *http.Request) {
	a.setJobEnabled(w, r, true)
}

// DisableJob handles POST /api/jobs/{id}/disable
func (a *API) DisableJob(w http.ResponseWriter, r *http.Request) {
	a.setJobEnabled(w, r, false)
}

func (a *API) setJobEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	jobID := r.PathValue("id")

	if err := a.defs.SetJobEnabled(r.Context(), jobID, enabled); err != nil {
		if errors.Is(err, sqlite.ErrJobDefinitionNotFound) {
			WriteError(w, http.StatusNotFound, "unknown job")
			return
		}
		a.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to update enabled flag")
		WriteError(w, http.StatusInternalServerError, "failed to update job")
		return
	}
	if err := a.scheduler.Reload(r.Context(), jobID); err != nil {
		a.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to reschedule job after enable change")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"enabled": enabled,
	})
}

// ListRuns handles GET /api/jobs/runs
func (a *API) ListRuns(w http.ResponseWriter, r *http.Request) {
	opts := &interfaces.JobRunListOptions{
		JobID:  r.URL.Query().Get("job_id"),
		Status: models.JobRunStatus(r.URL.Query().Get("status")),
		Limit:  QueryInt(r, "limit", 50, 500),
		Offset: QueryInt(r, "offset", 0, 100000),
	}

	runs, err := a.runs.ListJobRuns(r.Context(), opts)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list job runs")
		WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
