package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
)

const wprDisposableIncomeURL = "https://worldpopulationreview.com/country-rankings/disposable-income-by-country"

var dollarAmountRegex = regexp.MustCompile(`\$\s*([0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)`)

// DisposableIncomeAdapter scrapes the WorldPopulationReview disposable
// income ranking table and fills missing geos from a World Bank
// consumption-per-capita proxy. Latest point only, no history.
type DisposableIncomeAdapter struct {
	client *Client
	cache  *RunCache
}

// NewDisposableIncomeAdapter creates the disposable-income adapter for one job run
func NewDisposableIncomeAdapter(client *Client, cache *RunCache) *DisposableIncomeAdapter {
	return &DisposableIncomeAdapter{client: client, cache: cache}
}

type incomeRow struct {
	PerCapitaUSD    *float64 `json:"per_capita_usd"`
	PerHouseholdUSD *float64 `json:"per_household_usd"`
}

type disposablePayload struct {
	Rows     map[string]incomeRow `json:"rows"`
	Fallback *fallbackInfo        `json:"fallback,omitempty"`
	Errors   []string             `json:"errors,omitempty"`
}

type fallbackInfo struct {
	Source string        `json:"source"`
	Link   string        `json:"link"`
	Geos   []models.Geo  `json:"geos"`
	Error  string        `json:"error,omitempty"`
}

// Fetch scrapes the ranking table, then backfills any geo the table did
// not cover using the World Bank proxy indicator.
func (a *DisposableIncomeAdapter) Fetch(ctx context.Context, _ models.Geo, params *models.JobParams) *interfaces.FetchResult {
	geos := params.GeoList
	if len(geos) == 0 {
		geos = models.AllGeos()
	}

	meta := interfaces.FetchMeta{
		SourceName: "worldpopulationreview.com (scrape) + World Bank WDI (fallback)",
		Link:       wprDisposableIncomeURL,
		Unit:       "USD",
		Frequency:  "latest point",
		SourceUpdatedAtNote: "source update time not declared by the WPR page",
		Caveats: []string{
			"Best-effort scrape; page structure may change without notice.",
			"Missing geos are filled with a World Bank consumption-per-capita proxy (NE.CON.PRVT.PC.KD), not strictly disposable income.",
			"Latest point only; no history guarantee.",
		},
		References: []models.Reference{
			{Title: "WorldPopulationReview disposable income ranking", URL: wprDisposableIncomeURL},
			{Title: worldBankSourceName, URL: "https://data.worldbank.org"},
		},
	}

	body, err := a.client.get(ctx, wprDisposableIncomeURL)
	if err != nil {
		a.client.logger.Warn().Err(err).Msg("WorldPopulationReview fetch failed")
		data, _ := json.Marshal(&disposablePayload{Rows: map[string]incomeRow{}, Errors: []string{err.Error()}})
		return &interfaces.FetchResult{OK: false, Data: data, Meta: meta, Error: err.Error()}
	}

	rows := parseDisposableIncomeTable(body, geos)

	// Backfill geos the table did not cover
	var missing []models.Geo
	for _, geo := range geos {
		if _, ok := rows[string(geo)]; !ok {
			missing = append(missing, geo)
		}
	}

	payload := &disposablePayload{Rows: rows}
	if len(missing) > 0 {
		latest, link, fbErr := a.client.fetchLatestConsumptionPerCapita(ctx, a.cache, missing)
		fallback := &fallbackInfo{Source: worldBankSourceName, Link: link, Geos: missing}
		if fbErr != nil {
			fallback.Error = fbErr.Error()
			payload.Errors = append(payload.Errors, "fallback: "+fbErr.Error())
		}
		for geo, value := range latest {
			v := value
			rows[string(geo)] = incomeRow{PerCapitaUSD: &v}
		}
		payload.Fallback = fallback
	}

	data, _ := json.Marshal(payload)
	return &interfaces.FetchResult{OK: true, Data: data, Meta: meta}
}

// parseDisposableIncomeTable walks every table row, canonicalizes the
// country cell and takes the first two dollar amounts as per-capita and
// per-household values.
func parseDisposableIncomeTable(body []byte, geos []models.Geo) map[string]incomeRow {
	rows := make(map[string]incomeRow)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rows
	}

	wanted := make(map[models.Geo]bool, len(geos))
	for _, geo := range geos {
		wanted[geo] = true
	}

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var geo models.Geo
		found := false
		tr.Find("td, th").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			name := strings.TrimSpace(cell.Text())
			if canonical, ok := models.CanonicalGeo(name); ok {
				geo = canonical
				found = true
				return false
			}
			return true
		})
		if !found || !wanted[geo] {
			return
		}
		if _, seen := rows[string(geo)]; seen {
			return
		}

		html, err := tr.Html()
		if err != nil {
			return
		}
		amounts := dollarAmountRegex.FindAllStringSubmatch(html, 2)
		if len(amounts) == 0 {
			return
		}

		row := incomeRow{}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(amounts[0][1], ",", ""), 64); err == nil {
			row.PerCapitaUSD = &v
		}
		if len(amounts) > 1 {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(amounts[1][1], ",", ""), 64); err == nil {
				row.PerHouseholdUSD = &v
			}
		}
		if row.PerCapitaUSD != nil || row.PerHouseholdUSD != nil {
			rows[string(geo)] = row
		}
	})

	return rows
}
