package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
)

// World Bank WDI indicator codes used by the snapshot jobs
const (
	IndicatorExports              = "NE.EXP.GNFS.CD"     // Exports of goods and services (current US$)
	IndicatorImports              = "NE.IMP.GNFS.CD"     // Imports of goods and services (current US$)
	IndicatorGDPPerCapita         = "NY.GDP.PCAP.CD"     // GDP per capita (current US$)
	IndicatorConsumption          = "NE.CON.PRVT.CD"     // Households and NPISHs final consumption expenditure (current US$)
	IndicatorConsumptionPerCapita = "NE.CON.PRVT.PC.KD"  // HH+NPISH consumption per capita (constant 2015 US$)
	IndicatorPopShare0014         = "SP.POP.0014.TO.ZS"  // Population ages 0-14 (% of total)
	IndicatorPopShare1564         = "SP.POP.1564.TO.ZS"  // Population ages 15-64 (% of total)
	IndicatorPopShare65Up         = "SP.POP.65UP.TO.ZS"  // Population ages 65 and above (% of total)
)

const worldBankSourceName = "World Bank WDI"

// seriesPoint is one observation of a WDI indicator. Nulls are kept so
// consumers can see gaps instead of silently shortened series.
type seriesPoint struct {
	Period string   `json:"period"`
	Value  *float64 `json:"value"`
}

type indicatorSeries struct {
	ok     bool
	points []seriesPoint
	url    string
	err    string
}

type wdiEntry struct {
	Date    string   `json:"date"`
	Value   *float64 `json:"value"`
	ISO3    string   `json:"countryiso3code"`
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
}

// fetchIndicator retrieves one indicator series for one economy over a
// year range. Upstream faults come back as ok=false, never as a panic.
func (c *Client) fetchIndicator(ctx context.Context, cache *RunCache, wdiCode, indicator string, startYear, endYear int) *indicatorSeries {
	url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&per_page=200&date=%d:%d",
		c.worldBankURL, wdiCode, indicator, startYear, endYear)

	cached := cache.GetOrFetch(url, func() *interfaces.FetchResult {
		body, err := c.get(ctx, url)
		if err != nil {
			c.logger.Warn().Str("indicator", indicator).Str("country", wdiCode).Err(err).Msg("World Bank fetch failed")
			return &interfaces.FetchResult{OK: false, Error: err.Error()}
		}
		return &interfaces.FetchResult{OK: true, Data: body}
	})

	if !cached.OK {
		return &indicatorSeries{ok: false, url: url, err: cached.Error}
	}

	points, err := parseWDISeries(cached.Data)
	if err != nil {
		return &indicatorSeries{ok: false, url: url, err: err.Error()}
	}
	return &indicatorSeries{ok: true, points: points, url: url}
}

// parseWDISeries decodes the WDI two-element response [meta, data] into
// an ascending series, keeping null observations.
func parseWDISeries(body []byte) ([]seriesPoint, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse World Bank response: %w", err)
	}
	if len(envelope) < 2 {
		// Single-element responses carry an error message object
		return nil, fmt.Errorf("World Bank response has no data element")
	}

	var entries []wdiEntry
	if err := json.Unmarshal(envelope[1], &entries); err != nil {
		return nil, fmt.Errorf("failed to parse World Bank data rows: %w", err)
	}

	points := make([]seriesPoint, 0, len(entries))
	for _, entry := range entries {
		points = append(points, seriesPoint{Period: entry.Date, Value: entry.Value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points, nil
}

// yearRange resolves the [start, end] window from normalized params
func yearRange(params *models.JobParams) (int, int) {
	endYear := params.EndYear
	if endYear == 0 {
		endYear = time.Now().UTC().Year() - 1
	}
	years := params.Years
	if years <= 0 {
		years = 5
	}
	return endYear - years + 1, endYear
}

// inferAnnualSourceUpdatedAt maps an annual period like "2024" to a
// year-end timestamp, since WDI does not declare a publication time.
func inferAnnualSourceUpdatedAt(period string) (*time.Time, string) {
	if period == "" {
		return nil, "source does not declare an as-of date"
	}
	year, err := strconv.Atoi(period)
	if err != nil {
		return nil, fmt.Sprintf("unrecognized period format: %s", period)
	}
	if year < 1900 || year > 2200 {
		return nil, fmt.Sprintf("out-of-range year: %d", year)
	}
	t := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	return &t, "inferred from annual period year-end"
}

// TradeEximAdapter fetches export and import series and merges them into
// one exim series with a computed balance.
type TradeEximAdapter struct {
	client *Client
	cache  *RunCache
}

// NewTradeEximAdapter creates the exim adapter for one job run
func NewTradeEximAdapter(client *Client, cache *RunCache) *TradeEximAdapter {
	return &TradeEximAdapter{client: client, cache: cache}
}

type eximRow struct {
	Period     string   `json:"period"`
	ExportUSD  *float64 `json:"export_usd"`
	ImportUSD  *float64 `json:"import_usd"`
	BalanceUSD *float64 `json:"balance_usd"`
}

type eximPayload struct {
	Series []eximRow `json:"series"`
	Errors []string  `json:"errors,omitempty"`
}

// Fetch merges exports and imports over the union of their periods.
// Balance is computed only when both sides are present for a year.
func (a *TradeEximAdapter) Fetch(ctx context.Context, scope models.Geo, params *models.JobParams) *interfaces.FetchResult {
	startYear, endYear := yearRange(params)
	code := scope.WDICode()

	exports := a.client.fetchIndicator(ctx, a.cache, code, IndicatorExports, startYear, endYear)
	imports := a.client.fetchIndicator(ctx, a.cache, code, IndicatorImports, startYear, endYear)

	var errors []string
	if exports.err != "" {
		errors = append(errors, fmt.Sprintf("exports: %s", exports.err))
	}
	if imports.err != "" {
		errors = append(errors, fmt.Sprintf("imports: %s", imports.err))
	}

	exportByPeriod := indexByPeriod(exports.points)
	importByPeriod := indexByPeriod(imports.points)

	periods := unionPeriods(exports.points, imports.points)
	series := make([]eximRow, 0, len(periods))
	for _, period := range periods {
		row := eximRow{
			Period:    period,
			ExportUSD: exportByPeriod[period],
			ImportUSD: importByPeriod[period],
		}
		if row.ExportUSD != nil && row.ImportUSD != nil {
			balance := *row.ExportUSD - *row.ImportUSD
			row.BalanceUSD = &balance
		}
		series = append(series, row)
	}

	data, _ := json.Marshal(&eximPayload{Series: series, Errors: errors})

	latest := ""
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].ExportUSD != nil || series[i].ImportUSD != nil {
			latest = series[i].Period
			break
		}
	}
	sourceUpdatedAt, note := inferAnnualSourceUpdatedAt(latest)

	ok := exports.ok && imports.ok
	result := &interfaces.FetchResult{
		OK:   ok,
		Data: data,
		Meta: interfaces.FetchMeta{
			SourceName:          worldBankSourceName,
			Link:                exports.url,
			Unit:                "current US$",
			Frequency:           "annual",
			Period:              fmt.Sprintf("%d-%d", startYear, endYear),
			SourceUpdatedAt:     sourceUpdatedAt,
			SourceUpdatedAtNote: note,
			Caveats:             []string{"Balance is export minus import; computed only when both sides are reported."},
			References:          []models.Reference{{Title: worldBankSourceName, URL: "https://data.worldbank.org"}},
		},
	}
	if !ok {
		result.Error = joinErrors(errors)
	}
	return result
}

// WealthIndicatorsAdapter fetches GDP per capita and household
// consumption series as a two-column wealth view.
type WealthIndicatorsAdapter struct {
	client *Client
	cache  *RunCache
}

// NewWealthIndicatorsAdapter creates the wealth indicators adapter for one job run
func NewWealthIndicatorsAdapter(client *Client, cache *RunCache) *WealthIndicatorsAdapter {
	return &WealthIndicatorsAdapter{client: client, cache: cache}
}

type wealthRow struct {
	Period                    string   `json:"period"`
	GDPPerCapitaUSD           *float64 `json:"gdp_per_capita_usd"`
	ConsumptionExpenditureUSD *float64 `json:"consumption_expenditure_usd"`
}

type wealthPayload struct {
	Series []wealthRow `json:"series"`
	Errors []string    `json:"errors,omitempty"`
}

func (a *WealthIndicatorsAdapter) Fetch(ctx context.Context, scope models.Geo, params *models.JobParams) *interfaces.FetchResult {
	startYear, endYear := yearRange(params)
	code := scope.WDICode()

	gdp := a.client.fetchIndicator(ctx, a.cache, code, IndicatorGDPPerCapita, startYear, endYear)
	consumption := a.client.fetchIndicator(ctx, a.cache, code, IndicatorConsumption, startYear, endYear)

	var errors []string
	if gdp.err != "" {
		errors = append(errors, fmt.Sprintf("gdp_per_capita: %s", gdp.err))
	}
	if consumption.err != "" {
		errors = append(errors, fmt.Sprintf("consumption: %s", consumption.err))
	}

	gdpByPeriod := indexByPeriod(gdp.points)
	consByPeriod := indexByPeriod(consumption.points)

	periods := unionPeriods(gdp.points, consumption.points)
	series := make([]wealthRow, 0, len(periods))
	for _, period := range periods {
		series = append(series, wealthRow{
			Period:                    period,
			GDPPerCapitaUSD:           gdpByPeriod[period],
			ConsumptionExpenditureUSD: consByPeriod[period],
		})
	}

	data, _ := json.Marshal(&wealthPayload{Series: series, Errors: errors})

	latest := ""
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].GDPPerCapitaUSD != nil || series[i].ConsumptionExpenditureUSD != nil {
			latest = series[i].Period
			break
		}
	}
	sourceUpdatedAt, note := inferAnnualSourceUpdatedAt(latest)

	ok := gdp.ok && consumption.ok
	result := &interfaces.FetchResult{
		OK:   ok,
		Data: data,
		Meta: interfaces.FetchMeta{
			SourceName:          worldBankSourceName,
			Link:                gdp.url,
			Unit:                "current US$",
			Frequency:           "annual",
			Period:              fmt.Sprintf("%d-%d", startYear, endYear),
			SourceUpdatedAt:     sourceUpdatedAt,
			SourceUpdatedAtNote: note,
			Caveats:             []string{"GDP per capita in nominal USD is FX-sensitive; interpret trends with care."},
			References:          []models.Reference{{Title: worldBankSourceName, URL: "https://data.worldbank.org"}},
		},
	}
	if !ok {
		result.Error = joinErrors(errors)
	}
	return result
}

// AgeStructureAdapter fetches the three population-share buckets and
// keeps the latest year where all buckets are reported.
type AgeStructureAdapter struct {
	client *Client
	cache  *RunCache
}

// NewAgeStructureAdapter creates the age-structure adapter for one job run
func NewAgeStructureAdapter(client *Client, cache *RunCache) *AgeStructureAdapter {
	return &AgeStructureAdapter{client: client, cache: cache}
}

type ageBucketRow struct {
	Label string  `json:"label"`
	Pct   float64 `json:"pct"`
}

type agePayload struct {
	Period string         `json:"period,omitempty"`
	Rows   []ageBucketRow `json:"rows"`
	Errors []string       `json:"errors,omitempty"`
}

func (a *AgeStructureAdapter) Fetch(ctx context.Context, scope models.Geo, params *models.JobParams) *interfaces.FetchResult {
	endYear := params.EndYear
	if endYear == 0 {
		endYear = time.Now().UTC().Year() - 1
	}
	lookback := params.LookbackYears
	if lookback <= 0 {
		lookback = 20
	}
	startYear := endYear - lookback + 1
	code := scope.WDICode()

	buckets := []struct {
		indicator string
		label     string
	}{
		{IndicatorPopShare0014, "0-14"},
		{IndicatorPopShare1564, "15-64"},
		{IndicatorPopShare65Up, "65+"},
	}

	var errors []string
	link := ""
	allOK := true
	byLabel := make(map[string]map[string]*float64, len(buckets))
	for _, bucket := range buckets {
		series := a.client.fetchIndicator(ctx, a.cache, code, bucket.indicator, startYear, endYear)
		if link == "" {
			link = series.url
		}
		if !series.ok {
			allOK = false
			errors = append(errors, fmt.Sprintf("%s: %s", bucket.label, series.err))
			continue
		}
		byLabel[bucket.label] = indexByPeriod(series.points)
	}

	// Walk back from end_year to the newest year with all three buckets
	period := ""
	var rows []ageBucketRow
	for year := endYear; year >= startYear; year-- {
		p := strconv.Itoa(year)
		candidate := make([]ageBucketRow, 0, len(buckets))
		for _, bucket := range buckets {
			value, ok := byLabel[bucket.label][p]
			if !ok || value == nil {
				candidate = nil
				break
			}
			candidate = append(candidate, ageBucketRow{Label: bucket.label, Pct: *value})
		}
		if candidate != nil {
			period = p
			rows = candidate
			break
		}
	}

	ok := allOK && len(rows) > 0
	if allOK && len(rows) == 0 {
		errors = append(errors, "no year with all age buckets reported in the lookback window")
	}

	data, _ := json.Marshal(&agePayload{Period: period, Rows: rows, Errors: errors})
	sourceUpdatedAt, note := inferAnnualSourceUpdatedAt(period)

	result := &interfaces.FetchResult{
		OK:   ok,
		Data: data,
		Meta: interfaces.FetchMeta{
			SourceName:          worldBankSourceName,
			Link:                link,
			Unit:                "% of total population",
			Frequency:           "annual",
			Period:              period,
			SourceUpdatedAt:     sourceUpdatedAt,
			SourceUpdatedAtNote: note,
			Caveats:             []string{"Age structure is demographic context, not income by age."},
			References:          []models.Reference{{Title: worldBankSourceName, URL: "https://data.worldbank.org"}},
		},
	}
	if !ok {
		result.Error = joinErrors(errors)
	}
	return result
}

// fetchLatestConsumptionPerCapita returns the latest non-null
// consumption-per-capita point per requested economy. Used as the
// disposable-income fallback when the primary scrape misses a geo.
func (c *Client) fetchLatestConsumptionPerCapita(ctx context.Context, cache *RunCache, geos []models.Geo) (map[models.Geo]float64, string, error) {
	if len(geos) == 0 {
		return map[models.Geo]float64{}, "", nil
	}

	codes := make([]string, 0, len(geos))
	codeToGeo := make(map[string]models.Geo, len(geos)*2)
	for _, geo := range geos {
		codes = append(codes, geo.ShortCode())
		// Responses key countries by ISO2 id but aggregates like the
		// world total by other ids; match the 3-letter code as well.
		codeToGeo[geo.ShortCode()] = geo
		codeToGeo[geo.WDICode()] = geo
	}

	url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&per_page=200",
		c.worldBankURL, strings.Join(codes, ";"), IndicatorConsumptionPerCapita)

	cached := cache.GetOrFetch(url, func() *interfaces.FetchResult {
		body, err := c.get(ctx, url)
		if err != nil {
			return &interfaces.FetchResult{OK: false, Error: err.Error()}
		}
		return &interfaces.FetchResult{OK: true, Data: body}
	})
	if !cached.OK {
		return nil, url, fmt.Errorf("%s", cached.Error)
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(cached.Data, &envelope); err != nil || len(envelope) < 2 {
		return nil, url, fmt.Errorf("failed to parse World Bank response")
	}
	var entries []wdiEntry
	if err := json.Unmarshal(envelope[1], &entries); err != nil {
		return nil, url, fmt.Errorf("failed to parse World Bank data rows: %w", err)
	}

	// WDI returns newest-first per country; keep the first non-null
	latest := make(map[models.Geo]float64)
	for _, entry := range entries {
		geo, ok := codeToGeo[entry.Country.ID]
		if !ok {
			geo, ok = codeToGeo[entry.ISO3]
		}
		if !ok || entry.Value == nil {
			continue
		}
		if _, seen := latest[geo]; !seen {
			latest[geo] = *entry.Value
		}
	}
	return latest, url, nil
}

func indexByPeriod(points []seriesPoint) map[string]*float64 {
	byPeriod := make(map[string]*float64, len(points))
	for _, point := range points {
		byPeriod[point.Period] = point.Value
	}
	return byPeriod
}

func unionPeriods(a, b []seriesPoint) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, point := range a {
		seen[point.Period] = true
	}
	for _, point := range b {
		seen[point.Period] = true
	}
	periods := make([]string, 0, len(seen))
	for period := range seen {
		periods = append(periods, period)
	}
	sort.Strings(periods)
	return periods
}

func joinErrors(errors []string) string {
	return strings.Join(errors, "; ")
}
