package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradewatch/tradewatch/internal/models"
)

func TestMergeParamsOverrideWinsPerKey(t *testing.T) {
	defaults := map[string]interface{}{"force": false, "geo_list": []interface{}{"India", "Mexico"}, "years": 5}
	override := map[string]interface{}{"force": true}

	merged := MergeParams(defaults, override)
	assert.Equal(t, true, merged["force"])
	assert.Equal(t, []interface{}{"India", "Mexico"}, merged["geo_list"])
	assert.Equal(t, 5, merged["years"])
}

func TestMergeParamsDoesNotMutateDefaults(t *testing.T) {
	defaults := map[string]interface{}{"force": false}
	MergeParams(defaults, map[string]interface{}{"force": true})
	assert.Equal(t, false, defaults["force"])
}

func TestNormalizeSeriesParamsClamps(t *testing.T) {
	now := time.Now().UTC().Year()

	params := normalizeSeriesParams(map[string]interface{}{
		"years":    float64(100), // JSON numbers decode as float64
		"end_year": float64(1800),
		"force":    "yes",
	})
	assert.Equal(t, 20, params.Years)
	assert.Equal(t, 1960, params.EndYear)
	assert.True(t, params.Force)
	assert.Equal(t, models.AllGeos(), params.GeoList)

	params = normalizeSeriesParams(map[string]interface{}{})
	assert.Equal(t, 5, params.Years)
	assert.Equal(t, now-1, params.EndYear)
	assert.False(t, params.Force)

	params = normalizeSeriesParams(map[string]interface{}{"end_year": float64(now + 50)})
	assert.Equal(t, now, params.EndYear)
}

func TestNormalizeSeriesParamsBadValuesFallBack(t *testing.T) {
	params := normalizeSeriesParams(map[string]interface{}{
		"years":    "not a number",
		"end_year": "also bad",
		"force":    "maybe",
	})
	assert.Equal(t, 5, params.Years)
	assert.Equal(t, time.Now().UTC().Year()-1, params.EndYear)
	assert.False(t, params.Force)
}

func TestNormalizeAgeStructureParams(t *testing.T) {
	params := normalizeAgeStructureParams(map[string]interface{}{"lookback_years": float64(2)})
	assert.Equal(t, 5, params.LookbackYears)

	params = normalizeAgeStructureParams(map[string]interface{}{})
	assert.Equal(t, 20, params.LookbackYears)

	params = normalizeAgeStructureParams(map[string]interface{}{"lookback_years": float64(200)})
	assert.Equal(t, 60, params.LookbackYears)
}

func TestNormalizeCleanupParams(t *testing.T) {
	params := normalizeCleanupParams(map[string]interface{}{}, 30)
	assert.Equal(t, 30, params.KeepDays)

	params = normalizeCleanupParams(map[string]interface{}{"keep_days": float64(0)}, 30)
	assert.Equal(t, 1, params.KeepDays)

	params = normalizeCleanupParams(map[string]interface{}{"keep_days": float64(1000)}, 30)
	assert.Equal(t, 365, params.KeepDays)
}

func TestAsGeoListCanonicalizes(t *testing.T) {
	geos := asGeoList([]interface{}{"india", "HONG KONG", "Atlantis", "India"})
	assert.Equal(t, []models.Geo{models.GeoIndia, models.GeoHongKong}, geos)

	// Comma-separated string form
	geos = asGeoList("Singapore, Mexico")
	assert.Equal(t, []models.Geo{models.GeoSingapore, models.GeoMexico}, geos)

	// Nothing recognizable means all geos, not an empty run
	assert.Equal(t, models.AllGeos(), asGeoList(nil))
	assert.Equal(t, models.AllGeos(), asGeoList([]interface{}{"Atlantis"}))
}

func TestAsBool(t *testing.T) {
	assert.True(t, asBool(true, false))
	assert.True(t, asBool("1", false))
	assert.True(t, asBool("On", false))
	assert.False(t, asBool("off", true))
	assert.False(t, asBool(float64(0), true))
	assert.True(t, asBool(nil, true))
	assert.False(t, asBool("garbage", false))
}
