package models

import "strings"

// Geo is a canonical dashboard scope name
type Geo string

// Canonical geo scopes covered by the dashboard
const (
	GeoGlobal    Geo = "Global"
	GeoIndia     Geo = "India"
	GeoMexico    Geo = "Mexico"
	GeoSingapore Geo = "Singapore"
	GeoHongKong  Geo = "Hong Kong"
)

// AllGeos returns the canonical scope list in display order
func AllGeos() []Geo {
	return []Geo{GeoGlobal, GeoIndia, GeoMexico, GeoSingapore, GeoHongKong}
}

// World Bank 3-letter codes per geo
var geoWDICodes = map[Geo]string{
	GeoGlobal:    "WLD",
	GeoIndia:     "IND",
	GeoMexico:    "MEX",
	GeoSingapore: "SGP",
	GeoHongKong:  "HKG",
}

// 2-letter codes used by the ranking-table fallback lookups
var geoShortCodes = map[Geo]string{
	GeoGlobal:    "WLD",
	GeoIndia:     "IN",
	GeoMexico:    "MX",
	GeoSingapore: "SG",
	GeoHongKong:  "HK",
}

// Upstream spellings that should resolve to a canonical geo
var geoAliases = map[string]Geo{
	"global":                GeoGlobal,
	"world":                 GeoGlobal,
	"wld":                   GeoGlobal,
	"india":                 GeoIndia,
	"ind":                   GeoIndia,
	"mexico":                GeoMexico,
	"mex":                   GeoMexico,
	"singapore":             GeoSingapore,
	"sgp":                   GeoSingapore,
	"hong kong":             GeoHongKong,
	"hongkong":              GeoHongKong,
	"hkg":                   GeoHongKong,
	"hong kong sar":         GeoHongKong,
	"hong kong sar, china":  GeoHongKong,
	"china, hong kong sar":  GeoHongKong,
	"hong kong, china":      GeoHongKong,
}

// CanonicalGeo resolves an upstream name or code to a canonical scope.
// The second return is false when the name is outside the allow-list.
func CanonicalGeo(name string) (Geo, bool) {
	geo, ok := geoAliases[strings.ToLower(strings.TrimSpace(name))]
	return geo, ok
}

// WDICode returns the World Bank 3-letter code for a geo
func (g Geo) WDICode() string {
	return geoWDICodes[g]
}

// ShortCode returns the 2-letter code used by ranking-table lookups
func (g Geo) ShortCode() string {
	return geoShortCodes[g]
}

// IsValid reports whether the geo is one of the canonical scopes
func (g Geo) IsValid() bool {
	_, ok := geoWDICodes[g]
	return ok
}
