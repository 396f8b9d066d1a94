package models

import "encoding/json"

// SourceInfo describes the upstream provider of a payload
type SourceInfo struct {
	Name        string `json:"name"`
	Link        string `json:"link,omitempty"`
	LicenseNote string `json:"license_note,omitempty"`
}

// Reference is a citation attached to a payload or insight
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Envelope is the explainable-metric contract carried by every widget
// snapshot payload: data never ships without its source, period, unit,
// definitions and caveats. Data is shaped per widget key and left opaque.
type Envelope struct {
	Source      SourceInfo        `json:"source"`
	Period      string            `json:"period,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Frequency   string            `json:"frequency,omitempty"`
	Definitions map[string]string `json:"definitions,omitempty"`
	Caveats     []string          `json:"caveats,omitempty"`
	References  []Reference       `json:"references,omitempty"`
	Data        json.RawMessage   `json:"data"`
}

// StaleEnvelope builds the explanatory payload stored when a fetch fails,
// so "no data" is distinguishable from "never tried".
func StaleEnvelope(source SourceInfo, reason string) *Envelope {
	data, _ := json.Marshal(map[string]string{"error": reason})
	return &Envelope{
		Source:  source,
		Caveats: []string{"Upstream fetch failed; showing failure marker, not data."},
		Data:    data,
	}
}
