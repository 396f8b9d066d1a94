package insights

import (
	"github.com/tradewatch/tradewatch/internal/models"
)

// ScopeGlobal is the scope used by widgets that have no per-geo split
const ScopeGlobal = "global"

// SnapshotRef names one snapshot an insight consults
type SnapshotRef struct {
	WidgetKey string
	Scope     string
}

// Combination is one (card, tab, scope, lang) cell of the dashboard
// plus the snapshots its commentary is generated from.
type Combination struct {
	CardKey string
	TabKey  string
	Scope   string
	Lang    string
	Inputs  []SnapshotRef
}

// Dashboard card and tab keys
const (
	CardTradeFlow = "trade_flow"
	CardWealth    = "wealth"
	CardFinance   = "finance"

	TabCorridors = "corridors"
	TabWCI       = "wci"
	TabExim      = "exim"
	TabBalance   = "balance"

	TabGDPPerCapita = "gdp_pc"
	TabConsumption  = "cons"
	TabAge          = "age"
	TabDispPC       = "disp_pc"
	TabDispHH       = "disp_hh"

	TabIndustry = "industry"
	TabCountry  = "country"
)

// Combinations enumerates every insight cell in a stable order; the
// batch cursor indexes into this list, so ordering must not change
// between runs with the same config.
func Combinations(languages []string) []Combination {
	if len(languages) == 0 {
		languages = []string{"en"}
	}

	var combos []Combination
	add := func(card, tab, scope string, inputs ...SnapshotRef) {
		for _, lang := range languages {
			combos = append(combos, Combination{
				CardKey: card,
				TabKey:  tab,
				Scope:   scope,
				Lang:    lang,
				Inputs:  inputs,
			})
		}
	}

	corridors := SnapshotRef{WidgetKey: models.WidgetKeyTradeCorridors, Scope: ScopeGlobal}
	add(CardTradeFlow, TabCorridors, ScopeGlobal, corridors)
	add(CardTradeFlow, TabWCI, ScopeGlobal, corridors)

	for _, geo := range models.AllGeos() {
		exim := SnapshotRef{WidgetKey: models.WidgetKeyTradeExim, Scope: string(geo)}
		add(CardTradeFlow, TabExim, string(geo), exim)
		add(CardTradeFlow, TabBalance, string(geo), exim)

		wealth := SnapshotRef{WidgetKey: models.WidgetKeyWealthIndicators, Scope: string(geo)}
		add(CardWealth, TabGDPPerCapita, string(geo), wealth)
		add(CardWealth, TabConsumption, string(geo), wealth)

		age := SnapshotRef{WidgetKey: models.WidgetKeyWealthAge, Scope: string(geo)}
		add(CardWealth, TabAge, string(geo), age)
	}

	disposable := SnapshotRef{WidgetKey: models.WidgetKeyWealthDisposable, Scope: ScopeGlobal}
	add(CardWealth, TabDispPC, ScopeGlobal, disposable)
	add(CardWealth, TabDispHH, ScopeGlobal, disposable)

	add(CardFinance, TabIndustry, ScopeGlobal, SnapshotRef{WidgetKey: models.WidgetKeyFinanceIndustry, Scope: ScopeGlobal})
	add(CardFinance, TabCountry, ScopeGlobal, SnapshotRef{WidgetKey: models.WidgetKeyFinanceCountry, Scope: ScopeGlobal})

	return combos
}
