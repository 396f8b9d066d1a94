package models

// Data source IDs referenced by widget definitions
const (
	SourceWorldBank = "worldbank_wdi"
	SourceWPR       = "worldpopulationreview"
	SourceIMAA      = "imaa"
	SourceDrewry    = "drewry_wci"
)

// DefaultDataSources is the attribution catalog seeded at startup
func DefaultDataSources() []*DataSource {
	return []*DataSource{
		{
			ID:          SourceWorldBank,
			Name:        "World Bank WDI",
			Link:        "https://data.worldbank.org",
			LicenseNote: "CC BY-4.0",
		},
		{
			ID:          SourceWPR,
			Name:        "worldpopulationreview.com",
			Link:        "https://worldpopulationreview.com",
			LicenseNote: "Scraped public page; verify before redistribution.",
		},
		{
			ID:          SourceIMAA,
			Name:        "IMAA Institute",
			Link:        "https://imaa-institute.org",
			LicenseNote: "Scraped public statistics pages.",
		},
		{
			ID:          SourceDrewry,
			Name:        "Drewry World Container Index",
			Link:        "https://www.drewry.co.uk",
			LicenseNote: "Headline index only; full data is subscription-gated.",
		},
	}
}

// DefaultWidgetDefinitions seeds the widget catalog: titles, units and
// caveats merged into envelopes when the adapter leaves them blank.
func DefaultWidgetDefinitions() []*WidgetDefinition {
	return []*WidgetDefinition{
		{
			WidgetKey:   WidgetKeyTradeCorridors,
			Title:       "Major trade corridors",
			Description: "Headline container freight rates on major shipping corridors.",
			Unit:        "USD/40ft container",
			Frequency:   "weekly",
			SourceID:    SourceDrewry,
			Caveats:     []string{"Corridor volumes are placeholders pending a licensed feed."},
		},
		{
			WidgetKey:   WidgetKeyTradeExim,
			Title:       "Exports and imports",
			Description: "Goods and services trade, current US$, last N complete years.",
			Unit:        "current US$",
			Frequency:   "annual",
			SourceID:    SourceWorldBank,
		},
		{
			WidgetKey:   WidgetKeyWealthIndicators,
			Title:       "Wealth indicators",
			Description: "GDP, GDP per capita and GNI per capita over the last N years.",
			Unit:        "current US$",
			Frequency:   "annual",
			SourceID:    SourceWorldBank,
		},
		{
			WidgetKey:   WidgetKeyWealthDisposable,
			Title:       "Disposable income",
			Description: "Latest per-country disposable income ranking.",
			Unit:        "US$/year",
			Frequency:   "irregular",
			SourceID:    SourceWPR,
			Caveats:     []string{"Falls back to World Bank adjusted net national income when the scrape misses a country."},
		},
		{
			WidgetKey:   WidgetKeyWealthAge,
			Title:       "Age structure",
			Description: "Working-age population share and dependency trend.",
			Unit:        "% of total population",
			Frequency:   "annual",
			SourceID:    SourceWorldBank,
		},
		{
			WidgetKey:   WidgetKeyFinanceIndustry,
			Title:       "M&A by industry",
			Description: "Merger and acquisition activity ranked by industry.",
			Frequency:   "irregular",
			SourceID:    SourceIMAA,
		},
		{
			WidgetKey:   WidgetKeyFinanceCountry,
			Title:       "M&A by country",
			Description: "Merger and acquisition narratives by country.",
			Frequency:   "irregular",
			SourceID:    SourceIMAA,
		},
	}
}
