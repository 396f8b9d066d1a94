package sources

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/tradewatch/tradewatch/internal/interfaces"
)

const drewryWCIURL = "https://www.drewry.co.uk/supply-chain-advisors/supply-chain-expertise/world-container-index-assessed-by-drewry"

var (
	// "World Container Index - 05 Feb"
	wciPeriodRegex = regexp.MustCompile(`(?i)World\s+Container\s+Index\s*-\s*(\d{1,2}\s+[A-Za-z]{3})`)
	// "decreased 7% to $1,959 per 40ft container"
	wciValueRegex = regexp.MustCompile(`(?i)to\s*\$\s*([0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)\s*per\s*40ft`)
	// First commentary sentence after the chart section
	wciCommentaryRegex = regexp.MustCompile(`(?is)Our detailed assessment.*?(The\s+Drewry.*?\.)`)
)

// wciReading is the headline extracted from the public Drewry page
type wciReading struct {
	OK             bool    `json:"ok"`
	Link           string  `json:"link"`
	Period         *string `json:"period"`
	ValueUSDPer40f *int    `json:"value_usd_per_40ft"`
	Commentary     string  `json:"commentary"`
	Error          string  `json:"error,omitempty"`
}

// fetchWCI extracts the World Container Index headline (period, $/40ft
// value, commentary) from the public Drewry page. Best-effort: the page
// structure changes without notice, so a miss is a normal outcome.
func (c *Client) fetchWCI(ctx context.Context, cache *RunCache) *wciReading {
	reading := &wciReading{Link: drewryWCIURL}

	cached := cache.GetOrFetch(drewryWCIURL, func() *interfaces.FetchResult {
		body, err := c.get(ctx, drewryWCIURL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Drewry WCI fetch failed")
			return &interfaces.FetchResult{OK: false, Error: err.Error()}
		}
		return &interfaces.FetchResult{OK: true, Data: body}
	})

	if !cached.OK {
		reading.Error = cached.Error
		reading.Commentary = "Fetch failed; freight reading unavailable."
		return reading
	}

	parseWCIPage(string(cached.Data), reading)
	return reading
}

// parseWCIPage fills a reading from the page HTML
func parseWCIPage(html string, reading *wciReading) {
	if match := wciPeriodRegex.FindStringSubmatch(html); match != nil {
		period := match[1]
		reading.Period = &period
	}
	if match := wciValueRegex.FindStringSubmatch(html); match != nil {
		if value, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", "")); err == nil {
			reading.ValueUSDPer40f = &value
		}
	}
	if match := wciCommentaryRegex.FindStringSubmatch(html); match != nil {
		reading.Commentary = normalizeSpace(match[1])
	} else {
		reading.Commentary = "Auto-extracted from the public Drewry WCI page."
	}

	if reading.ValueUSDPer40f == nil {
		reading.Error = "headline $/40ft value not found on page"
		return
	}
	reading.OK = true
}
