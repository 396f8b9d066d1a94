package models

// JobParams is the normalized parameter set handed to a job runner.
// Raw trigger params are shallow-merged over the definition defaults,
// then clamped into these bounds before execution.
type JobParams struct {
	GeoList       []Geo `json:"geo_list"`
	Years         int   `json:"years"`          // Series length, clamped [2,20]
	EndYear       int   `json:"end_year"`       // Clamped [1960, current year], default last year
	LookbackYears int   `json:"lookback_years"` // Cumulative window, clamped [5,60]
	Force         bool  `json:"force"`          // Bypass insight digest cache
	KeepDays      int   `json:"keep_days"`      // Retention window, clamped [1,365]
}
