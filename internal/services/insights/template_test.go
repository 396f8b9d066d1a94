package insights

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradewatch/tradewatch/internal/models"
)

func templateSnapshot(widgetKey, scope, data string) (SnapshotRef, *models.WidgetSnapshot) {
	ref := SnapshotRef{WidgetKey: widgetKey, Scope: scope}
	return ref, &models.WidgetSnapshot{
		WidgetKey: widgetKey,
		Scope:     scope,
		Payload:   &models.Envelope{Data: json.RawMessage(data)},
	}
}

func TestTemplateContentEximSurplus(t *testing.T) {
	ref, snap := templateSnapshot(models.WidgetKeyTradeExim, "India",
		`{"series": [
			{"period": "2022", "export_usd": 770.0, "import_usd": 900.0, "balance_usd": -130.0},
			{"period": "2023", "export_usd": 900.0, "import_usd": 850.0, "balance_usd": 50.0},
			{"period": "2024", "export_usd": 950.0, "import_usd": null, "balance_usd": null}
		]}`)
	combo := Combination{CardKey: CardTradeFlow, TabKey: TabExim, Scope: "India", Lang: "en", Inputs: []SnapshotRef{ref}}

	content := TemplateContent(combo, map[SnapshotRef]*models.WidgetSnapshot{ref: snap})
	assert.Contains(t, content, "2023")
	assert.Contains(t, content, "surplus")
}

func TestTemplateContentEximNoCompleteYear(t *testing.T) {
	ref, snap := templateSnapshot(models.WidgetKeyTradeExim, "India",
		`{"series": [{"period": "2023", "export_usd": 900.0, "import_usd": null, "balance_usd": null}]}`)
	combo := Combination{CardKey: CardTradeFlow, TabKey: TabExim, Scope: "India", Lang: "en", Inputs: []SnapshotRef{ref}}

	content := TemplateContent(combo, map[SnapshotRef]*models.WidgetSnapshot{ref: snap})
	assert.Contains(t, content, "Not enough data")
}

func TestTemplateContentAgeWorkingShare(t *testing.T) {
	ref, snap := templateSnapshot(models.WidgetKeyWealthAge, "Singapore",
		`{"rows": [{"label": "0-14", "pct": 12.1}, {"label": "15-64", "pct": 70.3}, {"label": "65+", "pct": 17.6}]}`)
	combo := Combination{CardKey: CardWealth, TabKey: TabAge, Scope: "Singapore", Lang: "en", Inputs: []SnapshotRef{ref}}

	content := TemplateContent(combo, map[SnapshotRef]*models.WidgetSnapshot{ref: snap})
	assert.Contains(t, content, "70.3%")
}

func TestTemplateContentWCIReading(t *testing.T) {
	ref, snap := templateSnapshot(models.WidgetKeyTradeCorridors, ScopeGlobal,
		`{"wci": {"value_usd_per_40ft": 1959}}`)
	combo := Combination{CardKey: CardTradeFlow, TabKey: TabWCI, Scope: ScopeGlobal, Lang: "en", Inputs: []SnapshotRef{ref}}

	content := TemplateContent(combo, map[SnapshotRef]*models.WidgetSnapshot{ref: snap})
	assert.Contains(t, content, "1959 USD/40ft")
}

func TestTemplateContentMissingSnapshotFallsBack(t *testing.T) {
	ref := SnapshotRef{WidgetKey: models.WidgetKeyTradeCorridors, Scope: ScopeGlobal}
	combo := Combination{CardKey: CardTradeFlow, TabKey: TabWCI, Scope: ScopeGlobal, Lang: "en", Inputs: []SnapshotRef{ref}}

	content := TemplateContent(combo, map[SnapshotRef]*models.WidgetSnapshot{})
	assert.NotEmpty(t, content)
}

func TestTemplateContentEveryTabHasText(t *testing.T) {
	for _, combo := range Combinations([]string{"en"}) {
		content := TemplateContent(combo, map[SnapshotRef]*models.WidgetSnapshot{})
		assert.NotEmpty(t, content, "tab %s has no template text", combo.TabKey)
	}
}
