package sources

import (
	"context"
	"encoding/json"

	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
)

// TradeCorridorsAdapter builds the corridors overview: a static
// top-corridors summary merged with the live Drewry WCI freight
// reading. Corridor figures are placeholders until a bilateral trade
// source (UN Comtrade or IMF DOTS) is wired in; a failed WCI extraction
// marks the whole snapshot stale.
type TradeCorridorsAdapter struct {
	client *Client
	cache  *RunCache
}

// NewTradeCorridorsAdapter creates the corridors adapter for one job run
func NewTradeCorridorsAdapter(client *Client, cache *RunCache) *TradeCorridorsAdapter {
	return &TradeCorridorsAdapter{client: client, cache: cache}
}

type corridorEntry struct {
	Rank   int    `json:"rank"`
	Origin string `json:"origin"`
	Dest   string `json:"dest"`
	// One of the two is set depending on the list
	ValueUSD int64 `json:"value_usd,omitempty"`
	VolumeKg int64 `json:"volume_kg,omitempty"`
}

type corridorsPayload struct {
	ValueTop  []corridorEntry `json:"value_usd_top"`
	VolumeTop []corridorEntry `json:"volume_top"`
	WCI       *wciReading     `json:"wci"`
}

func (a *TradeCorridorsAdapter) Fetch(ctx context.Context, _ models.Geo, _ *models.JobParams) *interfaces.FetchResult {
	wci := a.client.fetchWCI(ctx, a.cache)

	payload := &corridorsPayload{
		ValueTop: []corridorEntry{
			{Rank: 1, Origin: "CN", Dest: "US", ValueUSD: 575_000_000_000},
			{Rank: 2, Origin: "DE", Dest: "US", ValueUSD: 160_000_000_000},
			{Rank: 3, Origin: "MX", Dest: "US", ValueUSD: 155_000_000_000},
		},
		VolumeTop: []corridorEntry{
			{Rank: 1, Origin: "CN", Dest: "US", VolumeKg: 92_000_000_000},
			{Rank: 2, Origin: "CN", Dest: "VN", VolumeKg: 45_000_000_000},
			{Rank: 3, Origin: "US", Dest: "CA", VolumeKg: 40_000_000_000},
		},
		WCI: wci,
	}
	data, _ := json.Marshal(payload)

	result := &interfaces.FetchResult{
		OK:   wci.OK,
		Data: data,
		Meta: interfaces.FetchMeta{
			SourceName:          "Corridor placeholder + Drewry World Container Index",
			Link:                drewryWCIURL,
			SourceUpdatedAtNote: "placeholder corridors carry no source time; WCI page declares none",
			Caveats: []string{
				"Corridor rankings are placeholders pending a bilateral trade source (UN Comtrade / IMF DOTS).",
				"WCI is a shipping-cost signal, not customs trade value.",
			},
			References: []models.Reference{{Title: "Drewry World Container Index", URL: drewryWCIURL}},
		},
	}
	if !wci.OK {
		result.Error = "wci: " + wci.Error
	}
	return result
}
