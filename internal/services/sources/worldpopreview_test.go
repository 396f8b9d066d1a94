package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradewatch/tradewatch/internal/models"
)

const rankingTableHTML = `
<html><body><table>
<tr><th>Rank</th><th>Country</th><th>Disposable Income (per capita)</th><th>Per Household</th></tr>
<tr><td>1</td><td><a href="/countries/singapore">Singapore</a></td><td>$40,100</td><td>$98,500</td></tr>
<tr><td>2</td><td>Hong Kong SAR, China</td><td>$35,900</td><td></td></tr>
<tr><td>3</td><td>France</td><td>$31,200</td><td>$70,000</td></tr>
<tr><td>4</td><td>Mexico</td><td>no data</td><td>also no data</td></tr>
</table></body></html>`

func TestParseDisposableIncomeTable(t *testing.T) {
	rows := parseDisposableIncomeTable([]byte(rankingTableHTML), models.AllGeos())

	require.Contains(t, rows, "Singapore")
	singapore := rows["Singapore"]
	require.NotNil(t, singapore.PerCapitaUSD)
	assert.InDelta(t, 40100.0, *singapore.PerCapitaUSD, 0.001)
	require.NotNil(t, singapore.PerHouseholdUSD)
	assert.InDelta(t, 98500.0, *singapore.PerHouseholdUSD, 0.001)

	require.Contains(t, rows, "Hong Kong", "SAR alias resolves to the canonical scope")
	hongKong := rows["Hong Kong"]
	require.NotNil(t, hongKong.PerCapitaUSD)
	assert.InDelta(t, 35900.0, *hongKong.PerCapitaUSD, 0.001)
	assert.Nil(t, hongKong.PerHouseholdUSD)

	assert.NotContains(t, rows, "France", "non-dashboard countries skipped")
	assert.NotContains(t, rows, "Mexico", "rows without dollar values skipped")
	assert.NotContains(t, rows, "India", "missing geos left for the fallback")
}

func TestParseDisposableIncomeTable_RespectsGeoFilter(t *testing.T) {
	rows := parseDisposableIncomeTable([]byte(rankingTableHTML), []models.Geo{models.GeoSingapore})
	assert.Contains(t, rows, "Singapore")
	assert.NotContains(t, rows, "Hong Kong")
}

func TestParseDisposableIncomeTable_MalformedHTML(t *testing.T) {
	rows := parseDisposableIncomeTable([]byte("<<<not html"), models.AllGeos())
	assert.Empty(t, rows)
}
