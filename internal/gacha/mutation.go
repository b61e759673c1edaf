package gacha

import (
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/rng"
)

// MutationResolver rolls each configured mutation independently.
type MutationResolver struct {
	table *grade.Table
}

// NewMutationResolver returns a MutationResolver over table.
func NewMutationResolver(table *grade.Table) *MutationResolver {
	return &MutationResolver{table: table}
}

// Resolve rolls the mutations of a freshly drawn item of grade g. Kinds gated
// by an event are not rolled unless the event is active at mods.Now.
func (m *MutationResolver) Resolve(g grade.Grade, mods Modifiers, state *economy.PlayerState, src rng.Source) economy.MutationSet {
	var set economy.MutationSet
	for _, mut := range m.table.Mutations {
		if mut.Event != "" && !mods.eventActive(mut.Event) {
			continue
		}
		p := mut.Probability
		if override, ok := state.CustomMutationProbabilities[mut.Kind]; ok {
			p = override
		}
		if rng.Percent(src) < p {
			set = set.With(mut.Kind)
		}
	}
	return set
}

// Multipliers returns the value multipliers of every mutation in set.
func (m *MutationResolver) Multipliers(set economy.MutationSet) []float64 {
	return multipliers(m.table, set)
}

func multipliers(t *grade.Table, set economy.MutationSet) []float64 {
	var out []float64
	for _, k := range set.Kinds() {
		if mut, ok := t.Mutation(k); ok {
			out = append(out, mut.Multiplier)
		}
	}
	return out
}

// Payout is floor(coinValue × coinBoost × Π multipliers), with the coin
// boost factor applied only when boosted.
func Payout(t *grade.Table, g grade.Grade, set economy.MutationSet, boosted bool) int64 {
	factors := multipliers(t, set)
	if boosted {
		factors = append(factors, t.CoinBoostFactor)
	}
	return economy.ScaleValue(g.CoinValue, factors...)
}
