package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const industryTableHTML = `
<html><body><table>
<tr><th>#</th><th>Industry</th><th>Number of deals</th><th>Value (bil. USD)</th></tr>
<tr><td>2</td><td><strong>Energy &amp; Power</strong></td><td>51,540</td><td>7,218.4</td></tr>
<tr><td>1</td><td>High Technology</td><td>112'345</td><td>8,955.2</td></tr>
<tr><td>3</td><td>Financials</td><td>n/a</td><td>6,100.0</td></tr>
<tr><td>x</td><td>not a rank row</td><td>1</td><td>1</td></tr>
</table></body></html>`

func TestParseIndustryTable(t *testing.T) {
	rows := parseIndustryTable([]byte(industryTableHTML))
	require.Len(t, rows, 3)

	// Adapter sorts; the parser preserves document order
	byRank := make(map[int]industryRow, len(rows))
	for _, row := range rows {
		byRank[row.Rank] = row
	}

	top := byRank[1]
	assert.Equal(t, "High Technology", top.Industry)
	require.NotNil(t, top.Deals)
	assert.Equal(t, 112345, *top.Deals, "apostrophe thousands separator stripped")
	require.NotNil(t, top.ValueUSDBil)
	assert.InDelta(t, 8955.2, *top.ValueUSDBil, 0.001)

	energy := byRank[2]
	assert.Equal(t, "Energy & Power", energy.Industry, "nested markup stripped")
	require.NotNil(t, energy.Deals)
	assert.Equal(t, 51540, *energy.Deals)

	financials := byRank[3]
	assert.Nil(t, financials.Deals, "unparseable deal count kept as null")
	require.NotNil(t, financials.ValueUSDBil)
}

const countryNarrativeHTML = `
<html><body>
<h2>M&amp;A Australia</h2>
<p>Since 1989, a total of approximately 53,972 M&amp;A deals have been announced in
Australia, reflecting a cumulative value exceeding 3.5 trillion USD.</p>
<h2>M&amp;A Austria</h2>
<p>Since 1985, Austria has witnessed over 9,164 announced M&amp;A deals, amounting to
a total value of more than 299.3 billion EUR.</p>
<p>Since 1990, a further 120 deals were announced in Austria, valued at 500 million EUR.</p>
</body></html>`

func TestParseCountryNarratives(t *testing.T) {
	rows := parseCountryNarratives([]byte(countryNarrativeHTML))
	require.Len(t, rows, 2)

	// Sorted by deals descending
	australia := rows[0]
	assert.Equal(t, "Australia", australia.Country)
	assert.Equal(t, 1989, australia.SinceYear)
	assert.Equal(t, 53972, australia.Deals)
	assert.InDelta(t, 3500.0, australia.ValueBil, 0.001, "trillion normalized to billions")
	assert.Equal(t, "USD", australia.Currency)

	austria := rows[1]
	assert.Equal(t, "Austria", austria.Country)
	assert.Equal(t, 9164, austria.Deals, "dedup keeps the max-deals entry per country")
	assert.InDelta(t, 299.3, austria.ValueBil, 0.001)
	assert.Equal(t, "EUR", austria.Currency)
}

func TestParseCountryNarratives_MillionScale(t *testing.T) {
	html := `<p>Since 2001, a total of 1,500 M&A deals have been announced in Estonia,
with a combined value of 750 million EUR.</p>`
	rows := parseCountryNarratives([]byte(html))
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.75, rows[0].ValueBil, 0.001)
}

func TestParseCountryNarratives_EmptyPage(t *testing.T) {
	rows := parseCountryNarratives([]byte("<html><body><p>Maintenance.</p></body></html>"))
	assert.Empty(t, rows)
}

// A narrative missing its value must be dropped, not completed with
// numbers from an adjacent paragraph.
func TestParseCountryNarratives_NoCrossParagraphPairing(t *testing.T) {
	html := `
<p>Since 1985, Austria has witnessed over 9,164 announced M&amp;A deals.</p>
<p>Since 1990, a further 120 deals were announced in Austria, valued at 500 million EUR.</p>`
	rows := parseCountryNarratives([]byte(html))
	require.Len(t, rows, 1)
	assert.Equal(t, "Austria", rows[0].Country)
	assert.Equal(t, 120, rows[0].Deals, "only the complete narrative counts")
	assert.InDelta(t, 0.5, rows[0].ValueBil, 0.001)
}

func TestParseNarrativeBlock_Forms(t *testing.T) {
	witnessed, ok := parseNarrativeBlock("Since 1985, Austria has witnessed over 9,164 announced M&A deals, amounting to a total value of more than 299.3 billion EUR.")
	require.True(t, ok)
	assert.Equal(t, "Austria", witnessed.Country)
	assert.Equal(t, 9164, witnessed.Deals)
	assert.InDelta(t, 299.3, witnessed.ValueBil, 0.001)

	announced, ok := parseNarrativeBlock("Since 1989, a total of approximately 53,972 M&A deals have been announced in Australia, reflecting a cumulative value exceeding 3.5 trillion USD.")
	require.True(t, ok)
	assert.Equal(t, "Australia", announced.Country)
	assert.Equal(t, 53972, announced.Deals)
	assert.InDelta(t, 3500.0, announced.ValueBil, 0.001)

	_, ok = parseNarrativeBlock("Since 2010, deal activity has been volatile.")
	assert.False(t, ok, "narrative without deals and value yields no row")
}
