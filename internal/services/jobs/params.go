package jobs

import (
	"strconv"
	"strings"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// Raw trigger params arrive as JSON maps. They are shallow-merged over
// the definition defaults, then normalized into models.JobParams with
// out-of-range values clamped rather than rejected, so a bad override
// degrades to a sane run instead of a failed one.

// MergeParams overlays override onto defaults key by key. Values are not
// merged recursively: an override key fully replaces the default value.
func MergeParams(defaults, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(override))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func asBool(value interface{}, def bool) bool {
	switch v := value.(type) {
	case nil:
		return def
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return def
}

func asInt(value interface{}, def, min, max int) int {
	var iv int
	switch v := value.(type) {
	case nil:
		return def
	case int:
		iv = v
	case int64:
		iv = int(v)
	case float64:
		iv = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		iv = parsed
	default:
		return def
	}
	if iv < min {
		return min
	}
	if iv > max {
		return max
	}
	return iv
}

// asGeoList canonicalizes a geo list against the allow-list. Unknown
// names are dropped; nil or an empty result means all geos.
func asGeoList(value interface{}) []models.Geo {
	if value == nil {
		return models.AllGeos()
	}

	var items []string
	switch v := value.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			items = append(items, part)
		}
	case []string:
		items = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	default:
		return models.AllGeos()
	}

	var geos []models.Geo
	seen := make(map[models.Geo]bool)
	for _, item := range items {
		geo, ok := models.CanonicalGeo(item)
		if !ok || seen[geo] {
			continue
		}
		seen[geo] = true
		geos = append(geos, geo)
	}
	if len(geos) == 0 {
		return models.AllGeos()
	}
	return geos
}

// asEndYear clamps into [1960, current year], defaulting to last year
// because annual WDI data for the current year is not published yet.
func asEndYear(value interface{}) int {
	now := time.Now().UTC().Year()
	if value == nil {
		return now - 1
	}
	return asInt(value, now-1, 1960, now)
}

func normalizeSeriesParams(raw map[string]interface{}) *models.JobParams {
	return &models.JobParams{
		GeoList: asGeoList(raw["geo_list"]),
		Years:   asInt(raw["years"], 5, 2, 20),
		EndYear: asEndYear(raw["end_year"]),
		Force:   asBool(raw["force"], false),
	}
}

func normalizeAgeStructureParams(raw map[string]interface{}) *models.JobParams {
	return &models.JobParams{
		GeoList:       asGeoList(raw["geo_list"]),
		EndYear:       asEndYear(raw["end_year"]),
		LookbackYears: asInt(raw["lookback_years"], 20, 5, 60),
		Force:         asBool(raw["force"], false),
	}
}

func normalizeForceParams(raw map[string]interface{}) *models.JobParams {
	return &models.JobParams{
		Force: asBool(raw["force"], false),
	}
}

func normalizeCleanupParams(raw map[string]interface{}, defaultKeepDays int) *models.JobParams {
	return &models.JobParams{
		KeepDays: asInt(raw["keep_days"], defaultKeepDays, 1, 365),
	}
}
