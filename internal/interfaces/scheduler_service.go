package interfaces

import (
	"context"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// TriggerStatus is the synchronous outcome of a trigger request
type TriggerStatus string

// TriggerStatus constants
const (
	TriggerStatusStarted          TriggerStatus = "started"
	TriggerStatusRejectedRunning  TriggerStatus = "rejected_running"
	TriggerStatusRejectedDisabled TriggerStatus = "rejected_disabled"
	TriggerStatusNotFound         TriggerStatus = "not_found"
)

// TriggerResult reports what a trigger request did
type TriggerResult struct {
	Status TriggerStatus `json:"status"`
	RunID  string        `json:"run_id,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// JobStatus is the scheduler's live view of one registered job
type JobStatus struct {
	Definition *models.JobDefinition `json:"definition"`
	IsRunning  bool                  `json:"is_running"`
	NextRun    *time.Time            `json:"next_run,omitempty"`
	LastRun    *time.Time            `json:"last_run,omitempty"`
	LastError  string                `json:"last_error,omitempty"`
}

// SchedulerService drives cron dispatch and owns the job run lifecycle
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
	// Trigger starts a job if allowed. The job body runs on the caller's
	// goroutine; scheduled ticks dispatch through a goroutine per tick.
	Trigger(ctx context.Context, jobID string, paramsOverride map[string]interface{}, triggeredBy models.TriggerSource) *TriggerResult
	// TriggerAsync starts the job body on its own goroutine and returns
	// the synchronous admission decision.
	TriggerAsync(ctx context.Context, jobID string, paramsOverride map[string]interface{}, triggeredBy models.TriggerSource) *TriggerResult
	JobStatuses(ctx context.Context) ([]*JobStatus, error)
	// Reload re-reads a definition from storage and reschedules it
	Reload(ctx context.Context, jobID string) error
	IsGloballyEnabled() bool
}
