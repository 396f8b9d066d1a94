package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DataSource describes an upstream provider with its attribution defaults
type DataSource struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Link        string    `json:"link,omitempty"`
	LicenseNote string    `json:"license_note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SourceInfo converts the catalog entry to the envelope source block
func (d *DataSource) SourceInfo() SourceInfo {
	return SourceInfo{
		Name:        d.Name,
		Link:        d.Link,
		LicenseNote: d.LicenseNote,
	}
}

// WidgetDefinition is the catalog entry for one widget key: titles, units
// and caveats merged into envelopes as defaults.
type WidgetDefinition struct {
	WidgetKey    string    `json:"widget_key"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Frequency    string    `json:"frequency,omitempty"`
	SourceID     string    `json:"source_id,omitempty"`
	Caveats      []string  `json:"caveats,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MarshalCaveats serializes the caveat list to JSON string for database storage
func (w *WidgetDefinition) MarshalCaveats() (string, error) {
	if w.Caveats == nil {
		return "[]", nil
	}
	data, err := json.Marshal(w.Caveats)
	if err != nil {
		return "", fmt.Errorf("failed to marshal caveats: %w", err)
	}
	return string(data), nil
}

// UnmarshalCaveats deserializes the caveats JSON string from database
func (w *WidgetDefinition) UnmarshalCaveats(data string) error {
	if data == "" || data == "[]" {
		w.Caveats = nil
		return nil
	}
	if err := json.Unmarshal([]byte(data), &w.Caveats); err != nil {
		return fmt.Errorf("failed to unmarshal caveats: %w", err)
	}
	return nil
}
