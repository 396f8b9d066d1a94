package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WidgetSnapshot is one materialized fetch result for a (widget_key, scope)
// pair. The table is append-only: the latest row by fetched_at wins at read
// time, and history stays queryable until retention cleanup.
type WidgetSnapshot struct {
	ID                  int64      `json:"id"`
	WidgetKey           string     `json:"widget_key"`
	Scope               string     `json:"scope"` // Geo scope, e.g. "India", or "global"
	Payload             *Envelope  `json:"payload"`
	Source              string     `json:"source"` // Upstream source name, denormalized for listing
	IsStale             bool       `json:"is_stale"`
	FetchedAt           time.Time  `json:"fetched_at"`
	SourceUpdatedAt     *time.Time `json:"source_updated_at,omitempty"`
	SourceUpdatedAtNote string     `json:"source_updated_at_note,omitempty"`
	JobRunID            string     `json:"job_run_id,omitempty"` // Kept after run deletion for provenance
}

// MarshalPayload serializes the envelope to JSON string for database storage
func (s *WidgetSnapshot) MarshalPayload() (string, error) {
	if s.Payload == nil {
		return "{}", nil
	}
	data, err := json.Marshal(s.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}
	return string(data), nil
}

// UnmarshalPayload deserializes the envelope JSON string from database
func (s *WidgetSnapshot) UnmarshalPayload(data string) error {
	if data == "" || data == "{}" {
		s.Payload = &Envelope{}
		return nil
	}
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}
	s.Payload = &env
	return nil
}

// Widget keys materialized by the data jobs
const (
	WidgetKeyTradeCorridors   = "trade_corridors"
	WidgetKeyTradeExim        = "trade_exim"
	WidgetKeyWealthIndicators = "wealth_indicators"
	WidgetKeyWealthDisposable = "wealth_disposable_income"
	WidgetKeyWealthAge        = "wealth_age_structure"
	WidgetKeyFinanceIndustry  = "finance_ma_industry"
	WidgetKeyFinanceCountry   = "finance_ma_country"
)
