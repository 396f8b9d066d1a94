package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// JobDefinition represents a scheduled job and its persisted settings.
// Definitions are seeded at startup from the job registry; operators may
// change schedule, timezone, enabled flag and default params through the API.
type JobDefinition struct {
	ID              string                 `json:"id"`             // Registry job name, e.g. "trade_exim_5y"
	Name            string                 `json:"name"`           // Human-readable job name
	Description     string                 `json:"description"`    // Job description
	Schedule        string                 `json:"schedule"`       // 5-field cron expression
	Timezone        string                 `json:"timezone"`       // IANA timezone for the schedule (empty = scheduler default)
	Enabled         bool                   `json:"enabled"`        // Whether the job is enabled
	DefaultParams   map[string]interface{} `json:"default_params"` // Params merged under trigger overrides
	LastScheduledAt *time.Time             `json:"last_scheduled_at,omitempty"`
	LastSuccessAt   *time.Time             `json:"last_success_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Validate validates the job definition.
// Schedule is always required regardless of Enabled status so disabled
// jobs keep a valid configuration.
func (j *JobDefinition) Validate() error {
	if j.ID == "" {
		return errors.New("job definition ID is required")
	}
	if j.Name == "" {
		return errors.New("job definition name is required")
	}
	if j.Schedule == "" {
		return errors.New("job definition schedule is required")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(j.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", j.Schedule, err)
	}

	if j.Timezone != "" {
		if _, err := time.LoadLocation(j.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", j.Timezone, err)
		}
	}

	return nil
}

// CronSpec returns the schedule in robfig/cron form, carrying the
// per-job timezone via the CRON_TZ prefix when one is set.
func (j *JobDefinition) CronSpec() string {
	if j.Timezone == "" {
		return j.Schedule
	}
	return "CRON_TZ=" + j.Timezone + " " + j.Schedule
}

// MarshalDefaultParams serializes the default params map to JSON string for database storage
func (j *JobDefinition) MarshalDefaultParams() (string, error) {
	if j.DefaultParams == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("failed to marshal default params: %w", err)
	}
	return string(data), nil
}

// UnmarshalDefaultParams deserializes the default params JSON string from database
func (j *JobDefinition) UnmarshalDefaultParams(data string) error {
	if data == "" || data == "{}" {
		j.DefaultParams = make(map[string]interface{})
		return nil
	}
	if err := json.Unmarshal([]byte(data), &j.DefaultParams); err != nil {
		return fmt.Errorf("failed to unmarshal default params: %w", err)
	}
	return nil
}
