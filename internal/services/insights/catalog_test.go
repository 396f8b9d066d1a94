package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradewatch/tradewatch/internal/models"
)

func TestCombinationsCoversEveryCell(t *testing.T) {
	combos := Combinations([]string{"en"})

	// 2 global trade tabs + 5 per-geo tabs x 5 geos + 2 disposable + 2 finance
	assert.Len(t, combos, 31)

	// Batch cursor indexes into this list, so the head must stay put
	require.NotEmpty(t, combos)
	assert.Equal(t, CardTradeFlow, combos[0].CardKey)
	assert.Equal(t, TabCorridors, combos[0].TabKey)
	assert.Equal(t, ScopeGlobal, combos[0].Scope)

	seen := make(map[string]bool)
	for _, combo := range combos {
		key := combo.CardKey + "/" + combo.TabKey + "/" + combo.Scope + "/" + combo.Lang
		assert.False(t, seen[key], "duplicate combination %s", key)
		seen[key] = true
		assert.NotEmpty(t, combo.Inputs, "combination %s has no inputs", key)
	}
}

func TestCombinationsMultipliesByLanguage(t *testing.T) {
	combos := Combinations([]string{"en", "es"})
	assert.Len(t, combos, 62)

	langs := make(map[string]int)
	for _, combo := range combos {
		langs[combo.Lang]++
	}
	assert.Equal(t, 31, langs["en"])
	assert.Equal(t, 31, langs["es"])
}

func TestCombinationsDefaultsToEnglish(t *testing.T) {
	combos := Combinations(nil)
	require.NotEmpty(t, combos)
	for _, combo := range combos {
		assert.Equal(t, "en", combo.Lang)
	}
}

func TestCombinationsPerGeoTabsUseGeoScope(t *testing.T) {
	combos := Combinations([]string{"en"})
	for _, combo := range combos {
		if combo.TabKey != TabExim {
			continue
		}
		_, ok := models.CanonicalGeo(combo.Scope)
		assert.True(t, ok, "exim scope %q is not a canonical geo", combo.Scope)
		require.Len(t, combo.Inputs, 1)
		assert.Equal(t, models.WidgetKeyTradeExim, combo.Inputs[0].WidgetKey)
		assert.Equal(t, combo.Scope, combo.Inputs[0].Scope)
	}
}
