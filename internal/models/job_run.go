package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobRunStatus represents the lifecycle state of a job run
type JobRunStatus string

// JobRunStatus constants
const (
	JobRunStatusRunning JobRunStatus = "running"
	JobRunStatusSuccess JobRunStatus = "success"
	JobRunStatusFailed  JobRunStatus = "failed"
	JobRunStatusSkipped JobRunStatus = "skipped"
)

// IsTerminal returns true when the status is a final state
func (s JobRunStatus) IsTerminal() bool {
	switch s {
	case JobRunStatusSuccess, JobRunStatusFailed, JobRunStatusSkipped:
		return true
	default:
		return false
	}
}

// TriggerSource identifies what started a job run
type TriggerSource string

// TriggerSource constants
const (
	TriggerSourceScheduler TriggerSource = "scheduler"
	TriggerSourceManual    TriggerSource = "manual"
	TriggerSourceStartup   TriggerSource = "startup"
	TriggerSourceAPI       TriggerSource = "api"
)

// JobRun is the execution record for one job invocation. A run is created
// with status running, receives exactly one terminal update, and is never
// mutated afterwards except by retention cleanup.
type JobRun struct {
	ID          string                 `json:"id"`     // run_<uuid>
	JobID       string                 `json:"job_id"` // JobDefinition.ID
	Status      JobRunStatus           `json:"status"`
	TriggeredBy TriggerSource          `json:"triggered_by"`
	Params      map[string]interface{} `json:"params"` // Effective merged params for this run
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	DurationMs  int64                  `json:"duration_ms"`
	HeartbeatAt time.Time              `json:"heartbeat_at"`
}

// MarshalParams serializes the effective params map to JSON string for database storage
func (r *JobRun) MarshalParams() (string, error) {
	if r.Params == nil {
		return "{}", nil
	}
	data, err := json.Marshal(r.Params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run params: %w", err)
	}
	return string(data), nil
}

// UnmarshalParams deserializes the params JSON string from database
func (r *JobRun) UnmarshalParams(data string) error {
	if data == "" || data == "{}" {
		r.Params = make(map[string]interface{})
		return nil
	}
	if err := json.Unmarshal([]byte(data), &r.Params); err != nil {
		return fmt.Errorf("failed to unmarshal run params: %w", err)
	}
	return nil
}
