package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// FetchMeta carries the provenance attached to fetched data
type FetchMeta struct {
	SourceName          string
	Link                string
	Unit                string
	Frequency           string
	Period              string
	SourceUpdatedAt     *time.Time
	SourceUpdatedAtNote string
	Caveats             []string
	References          []models.Reference
}

// FetchResult is the uniform outcome of a source fetch. Expected upstream
// faults (HTTP errors, timeouts, parse failures, empty results) surface as
// OK=false with Error set; adapters never panic and never return Go errors
// for upstream faults.
type FetchResult struct {
	OK    bool
	Data  json.RawMessage
	Meta  FetchMeta
	Error string
}

// SourceAdapter fetches one widget's data for a scope
type SourceAdapter interface {
	Fetch(ctx context.Context, scope models.Geo, params *models.JobParams) *FetchResult
}
