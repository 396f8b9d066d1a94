package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wciPageHTML = `
<html><body>
<h1>World Container Index - 05 Feb</h1>
<p>Drewry's World Container Index decreased 7% to $1,959 per 40ft container this week.</p>
<div>Our detailed assessment of the market follows. The Drewry WCI composite index
fell for the third consecutive week on softer transpacific demand.</div>
</body></html>`

func TestParseWCIPage(t *testing.T) {
	reading := &wciReading{Link: drewryWCIURL}
	parseWCIPage(wciPageHTML, reading)

	assert.True(t, reading.OK)
	require.NotNil(t, reading.Period)
	assert.Equal(t, "05 Feb", *reading.Period)
	require.NotNil(t, reading.ValueUSDPer40f)
	assert.Equal(t, 1959, *reading.ValueUSDPer40f)
	assert.Contains(t, reading.Commentary, "The Drewry WCI composite index")
	assert.NotContains(t, reading.Commentary, "\n", "commentary collapsed to one line")
}

func TestParseWCIPage_MissingHeadlineValue(t *testing.T) {
	reading := &wciReading{Link: drewryWCIURL}
	parseWCIPage("<html><body><p>Page under maintenance.</p></body></html>", reading)

	assert.False(t, reading.OK)
	assert.Nil(t, reading.ValueUSDPer40f)
	assert.Contains(t, reading.Error, "not found")
	assert.NotEmpty(t, reading.Commentary)
}
