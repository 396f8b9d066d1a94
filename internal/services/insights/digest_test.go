package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradewatch/tradewatch/internal/models"
)

func TestDigestIsOrderIndependent(t *testing.T) {
	a := InputIdentity{WidgetKey: "trade_exim", Scope: "India", SnapshotID: 7, FetchedAt: 1700000000}
	b := InputIdentity{WidgetKey: "trade_corridors", Scope: "global", SnapshotID: 3, FetchedAt: 1700000100}

	assert.Equal(t, Digest([]InputIdentity{a, b}), Digest([]InputIdentity{b, a}))
}

func TestDigestChangesWithSnapshotID(t *testing.T) {
	a := InputIdentity{WidgetKey: "trade_exim", Scope: "India", SnapshotID: 7, FetchedAt: 1700000000}
	newer := a
	newer.SnapshotID = 8

	assert.NotEqual(t, Digest([]InputIdentity{a}), Digest([]InputIdentity{newer}))
}

func TestDigestDoesNotMutateInput(t *testing.T) {
	inputs := []InputIdentity{
		{WidgetKey: "z", Scope: "z"},
		{WidgetKey: "a", Scope: "a"},
	}
	Digest(inputs)
	assert.Equal(t, "z", inputs[0].WidgetKey)
}

func TestIdentityOf(t *testing.T) {
	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &models.WidgetSnapshot{
		ID:        42,
		WidgetKey: models.WidgetKeyWealthIndicators,
		Scope:     "China",
		FetchedAt: fetched,
	}

	identity := IdentityOf(snap)
	assert.Equal(t, int64(42), identity.SnapshotID)
	assert.Equal(t, fetched.Unix(), identity.FetchedAt)
}

func TestInputKeysSortedStable(t *testing.T) {
	keys := InputKeys([]InputIdentity{
		{WidgetKey: "wealth_indicators", Scope: "India", SnapshotID: 9},
		{WidgetKey: "trade_exim", Scope: "India", SnapshotID: 4},
	})
	assert.Equal(t, []string{"trade_exim|India|4", "wealth_indicators|India|9"}, keys)
}
