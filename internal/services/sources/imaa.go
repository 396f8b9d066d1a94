package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
)

// IMAA (Institute for Mergers, Acquisitions and Alliances) public statistics pages
const (
	imaaIndustryURL = "https://imaa-institute.org/mergers-and-acquisitions-statistics/ma-statistics-by-industries/"
	imaaCountryURL  = "https://imaa-institute.org/mergers-and-acquisitions-statistics/ma-statistics-by-countries/"
)

// Country sections are one narrative paragraph each, in two shapes:
// "Since 1989, a total of approximately 53,972 M&A deals have been
// announced in Australia, reflecting a cumulative value exceeding
// 3.5 trillion USD." and "Since 1985, Austria has witnessed over 9,164
// announced M&A deals, amounting to a total value of more than 299.3
// billion EUR." Each paragraph is matched in isolation so a partial
// match can never pair one country's deal count with another's value.
var (
	imaaSinceYearRegex = regexp.MustCompile(`(?i)since\s+(\d{4})`)
	// deals-before-country: "N [announced] [M&A] deals ... in/for Country"
	imaaDealsInCountryRegex = regexp.MustCompile(
		`([0-9][0-9,'’]*)\s+(?:(?:announced|M&A)\s+){0,2}deals?[^.]*?\b(?:in|for)\s+([A-Z][A-Za-z .&()-]+?)[,.]`)
	// country-before-deals: "Country has witnessed N [announced] [M&A] deals"
	imaaCountryDealsRegex = regexp.MustCompile(
		`([A-Z][A-Za-z .&()-]+?)\s+has\s+(?:witnessed|recorded|seen)\s+(?:over\s+|more\s+than\s+|approximately\s+|some\s+|about\s+)?([0-9][0-9,'’]*)\s+(?:(?:announced|M&A)\s+){0,2}deals?`)
	imaaValueRegex = regexp.MustCompile(
		`(?i)([0-9]+(?:\.[0-9]+)?)\s*(trillion|billion|bil\.|million)\s*(USD|EUR)`)
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// MAIndustryAdapter parses the IMAA industry ranking table
// (rank, industry, deal count, value in USD billions).
type MAIndustryAdapter struct {
	client *Client
}

// NewMAIndustryAdapter creates the industry-ranking adapter
func NewMAIndustryAdapter(client *Client) *MAIndustryAdapter {
	return &MAIndustryAdapter{client: client}
}

type industryRow struct {
	Rank        int      `json:"rank"`
	Industry    string   `json:"industry"`
	Deals       *int     `json:"deals"`
	ValueUSDBil *float64 `json:"value_usd_bil"`
}

type industryPayload struct {
	Rows []industryRow `json:"rows"`
}

func (a *MAIndustryAdapter) Fetch(ctx context.Context, _ models.Geo, _ *models.JobParams) *interfaces.FetchResult {
	meta := interfaces.FetchMeta{
		SourceName:          "IMAA (industry ranking)",
		Link:                imaaIndustryURL,
		Unit:                "USD bil.",
		SourceUpdatedAtNote: "source update time not declared by the IMAA page",
		Caveats:             []string{"Parsed from the public IMAA table; best-effort."},
		References:          []models.Reference{{Title: "IMAA M&A statistics by industry", URL: imaaIndustryURL}},
	}

	body, err := a.client.get(ctx, imaaIndustryURL)
	if err != nil {
		a.client.logger.Warn().Err(err).Msg("IMAA industry fetch failed")
		data, _ := json.Marshal(&industryPayload{Rows: []industryRow{}})
		return &interfaces.FetchResult{OK: false, Data: data, Meta: meta, Error: err.Error()}
	}

	rows := parseIndustryTable(body)
	if len(rows) == 0 {
		data, _ := json.Marshal(&industryPayload{Rows: []industryRow{}})
		return &interfaces.FetchResult{OK: false, Data: data, Meta: meta, Error: "no industry rows parsed from page"}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
	data, _ := json.Marshal(&industryPayload{Rows: rows})
	return &interfaces.FetchResult{OK: true, Data: data, Meta: meta}
}

// parseIndustryTable extracts ranked rows shaped
// <td>rank</td><td>industry</td><td>deals</td><td>value</td>
func parseIndustryTable(body []byte) []industryRow {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var rows []industryRow
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return
		}

		rank, err := strconv.Atoi(strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil {
			return
		}
		industry := normalizeSpace(cells.Eq(1).Text())
		if industry == "" {
			return
		}

		row := industryRow{Rank: rank, Industry: industry}
		if deals, err := strconv.Atoi(cleanDealCount(cells.Eq(2).Text())); err == nil {
			row.Deals = &deals
		}
		if value, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(cells.Eq(3).Text()), ",", ""), 64); err == nil {
			row.ValueUSDBil = &value
		}
		rows = append(rows, row)
	})
	return rows
}

// MACountryAdapter derives a per-country ranking from the IMAA country
// narrative paragraphs, normalized to billions of the stated currency.
type MACountryAdapter struct {
	client *Client
}

// NewMACountryAdapter creates the country-narrative adapter
func NewMACountryAdapter(client *Client) *MACountryAdapter {
	return &MACountryAdapter{client: client}
}

type countryRow struct {
	Country   string  `json:"country"`
	SinceYear int     `json:"since_year"`
	Deals     int     `json:"deals"`
	ValueBil  float64 `json:"value_bil"`
	Currency  string  `json:"currency"`
	ValueUnit string  `json:"value_unit"`
}

type countryPayload struct {
	Rows []countryRow `json:"rows"`
}

func (a *MACountryAdapter) Fetch(ctx context.Context, _ models.Geo, _ *models.JobParams) *interfaces.FetchResult {
	meta := interfaces.FetchMeta{
		SourceName:          "IMAA (country narratives)",
		Link:                imaaCountryURL,
		Unit:                "bil. (USD/EUR)",
		SourceUpdatedAtNote: "source update time not declared by the IMAA page",
		Caveats: []string{
			"Derived by parsing narrative text; may miss countries.",
			"Values are normalized to billions of the stated currency; some sections use EUR, so cross-country comparisons are indicative only.",
		},
		References: []models.Reference{{Title: "IMAA M&A statistics by country", URL: imaaCountryURL}},
	}

	body, err := a.client.get(ctx, imaaCountryURL)
	if err != nil {
		a.client.logger.Warn().Err(err).Msg("IMAA country fetch failed")
		data, _ := json.Marshal(&countryPayload{Rows: []countryRow{}})
		return &interfaces.FetchResult{OK: false, Data: data, Meta: meta, Error: err.Error()}
	}

	rows := parseCountryNarratives(body)
	if len(rows) == 0 {
		data, _ := json.Marshal(&countryPayload{Rows: []countryRow{}})
		return &interfaces.FetchResult{OK: false, Data: data, Meta: meta, Error: "no country narratives parsed from page"}
	}

	data, _ := json.Marshal(&countryPayload{Rows: rows})
	return &interfaces.FetchResult{OK: true, Data: data, Meta: meta}
}

// parseCountryNarratives extracts the "Since YEAR ... deals ... value"
// narrative blocks, deduplicates by country keeping the max deal count,
// and ranks by deals descending. Matching runs per paragraph, never
// across blocks.
func parseCountryNarratives(body []byte) []countryRow {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	byCountry := make(map[string]countryRow)
	doc.Find("p, li").Each(func(_ int, sel *goquery.Selection) {
		row, ok := parseNarrativeBlock(normalizeSpace(sel.Text()))
		if !ok {
			return
		}
		key := strings.ToLower(row.Country)
		if existing, found := byCountry[key]; !found || row.Deals > existing.Deals {
			byCountry[key] = row
		}
	})

	rows := make([]countryRow, 0, len(byCountry))
	for _, row := range byCountry {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Deals > rows[j].Deals })
	return rows
}

// parseNarrativeBlock extracts one country row from a single narrative
// paragraph; all three parts (year, deals+country, value) must be present.
func parseNarrativeBlock(text string) (countryRow, bool) {
	year := imaaSinceYearRegex.FindStringSubmatch(text)
	if year == nil {
		return countryRow{}, false
	}
	sinceYear, err := strconv.Atoi(year[1])
	if err != nil {
		return countryRow{}, false
	}

	var country, dealsRaw string
	if m := imaaDealsInCountryRegex.FindStringSubmatch(text); m != nil {
		dealsRaw, country = m[1], m[2]
	} else if m := imaaCountryDealsRegex.FindStringSubmatch(text); m != nil {
		country, dealsRaw = m[1], m[2]
	} else {
		return countryRow{}, false
	}
	deals, err := strconv.Atoi(cleanDealCount(dealsRaw))
	if err != nil {
		return countryRow{}, false
	}

	value := imaaValueRegex.FindStringSubmatch(text)
	if value == nil {
		return countryRow{}, false
	}
	amount, err := strconv.ParseFloat(value[1], 64)
	if err != nil {
		return countryRow{}, false
	}
	switch scale := strings.ToLower(value[2]); {
	case strings.Contains(scale, "trillion"):
		amount *= 1000
	case strings.Contains(scale, "million"):
		amount /= 1000
	}

	return countryRow{
		Country:   strings.TrimSpace(country),
		SinceYear: sinceYear,
		Deals:     deals,
		ValueBil:  amount,
		Currency:  strings.ToUpper(value[3]),
		ValueUnit: "bil.",
	}, true
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// cleanDealCount strips the thousands separators IMAA uses (comma and
// apostrophe variants)
func cleanDealCount(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{",", "'", "’"} {
		s = strings.ReplaceAll(s, sep, "")
	}
	return s
}
