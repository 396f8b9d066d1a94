package insights

import (
	"encoding/json"
	"fmt"

	"github.com/tradewatch/tradewatch/internal/models"
)

// Template commentary rendered when no LLM provider is configured or a
// generation attempt fails. Data-derived where the payload allows it,
// canned otherwise, so the dashboard never shows an empty insight cell.

type eximSeriesData struct {
	Series []struct {
		Period     string   `json:"period"`
		ExportUSD  *float64 `json:"export_usd"`
		ImportUSD  *float64 `json:"import_usd"`
		BalanceUSD *float64 `json:"balance_usd"`
	} `json:"series"`
}

type ageRowsData struct {
	Rows []struct {
		Label string  `json:"label"`
		Pct   float64 `json:"pct"`
	} `json:"rows"`
}

type wciData struct {
	WCI struct {
		ValueUSDPer40f *int `json:"value_usd_per_40ft"`
	} `json:"wci"`
}

// TemplateContent renders the fallback text for one combination from
// its latest snapshots.
func TemplateContent(combo Combination, snapshots map[SnapshotRef]*models.WidgetSnapshot) string {
	switch combo.TabKey {
	case TabCorridors:
		return "Top corridors are a directional signal; compare value vs volume leaders to spot reroutes or mix changes."
	case TabWCI:
		return wciTemplate(firstSnapshot(combo, snapshots))
	case TabExim:
		return eximTemplate(firstSnapshot(combo, snapshots))
	case TabBalance:
		return "Trade balance is computed as export minus import; treat it as an identity check and watch for large year-over-year moves."
	case TabGDPPerCapita:
		return "GDP per capita (nominal USD) can be noisy due to FX; interpret trends with caveats."
	case TabConsumption:
		return "Household consumption helps cross-check domestic-demand momentum; combine with trade indicators for a fuller picture."
	case TabAge:
		return ageTemplate(firstSnapshot(combo, snapshots))
	case TabDispPC:
		return "Disposable income is best-effort: primary scrape plus a World Bank proxy fallback; treat it as an indicative latest point."
	case TabDispHH:
		return "Per-household disposable values may be missing for many geos; household-level coverage varies by source."
	case TabIndustry:
		return "Industry rankings reflect disclosed-deal reporting; treat them as a directional view of deal-activity concentration."
	case TabCountry:
		return "Country narratives may mix currencies (USD/EUR); convert before strict cross-country value comparisons."
	default:
		return "Latest data shown; generated commentary is unavailable for this view."
	}
}

func firstSnapshot(combo Combination, snapshots map[SnapshotRef]*models.WidgetSnapshot) *models.WidgetSnapshot {
	for _, ref := range combo.Inputs {
		if snap := snapshots[ref]; snap != nil {
			return snap
		}
	}
	return nil
}

func eximTemplate(snap *models.WidgetSnapshot) string {
	fallback := "Not enough data points to compute a meaningful export/import insight yet."
	if snap == nil || snap.Payload == nil {
		return fallback
	}

	var data eximSeriesData
	if err := json.Unmarshal(snap.Payload.Data, &data); err != nil {
		return fallback
	}

	// Last year with both sides reported
	for i := len(data.Series) - 1; i >= 0; i-- {
		row := data.Series[i]
		if row.ExportUSD == nil || row.ImportUSD == nil {
			continue
		}
		if row.BalanceUSD == nil {
			return "Latest export/import values are present but balance could not be computed (missing data)."
		}
		direction := "surplus"
		if *row.BalanceUSD < 0 {
			direction = "deficit"
		}
		return fmt.Sprintf("Latest year (%s) shows a trade %s; monitor whether exports and imports diverge as a macro signal.", row.Period, direction)
	}
	return fallback
}

func ageTemplate(snap *models.WidgetSnapshot) string {
	fallback := "Age structure snapshot is present; use it as demographic context (not income by age)."
	if snap == nil || snap.Payload == nil {
		return fallback
	}

	var data ageRowsData
	if err := json.Unmarshal(snap.Payload.Data, &data); err != nil {
		return fallback
	}
	for _, row := range data.Rows {
		if row.Label == "15-64" {
			return fmt.Sprintf("Working-age share (15-64) is %.1f%% in the latest year; demographic structure shapes labor supply and demand composition.", row.Pct)
		}
	}
	return fallback
}

func wciTemplate(snap *models.WidgetSnapshot) string {
	fallback := "Freight (WCI) is unavailable in the latest run; check the Drewry page structure and scraping caveats."
	if snap == nil || snap.Payload == nil {
		return fallback
	}

	var data wciData
	if err := json.Unmarshal(snap.Payload.Data, &data); err != nil || data.WCI.ValueUSDPer40f == nil {
		return fallback
	}
	return fmt.Sprintf("Freight costs (WCI) are %d USD/40ft in the latest reading; interpret as shipping-cost pressure rather than customs trade value.", *data.WCI.ValueUSDPer40f)
}
