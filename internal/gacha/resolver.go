// Package gacha resolves draws: which grade is produced, which mutations it
// carries and what it pays out.
package gacha

import (
	"log/slog"
	"math"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/rng"
)

// EventChecker reports whether a named event is running.
type EventChecker interface {
	EventActive(name string, now time.Time) bool
}

// Modifiers carry the global, non-player inputs of a draw.
type Modifiers struct {
	// EventLuckMultiplier scales recipient mass like a luck boost. Values
	// <= 0 are treated as 1.
	EventLuckMultiplier float64
	Now                 time.Time
	Events              EventChecker
}

func (m Modifiers) luckMultiplier() float64 {
	if m.EventLuckMultiplier <= 0 || math.IsNaN(m.EventLuckMultiplier) || math.IsInf(m.EventLuckMultiplier, 0) {
		return 1
	}
	return m.EventLuckMultiplier
}

func (m Modifiers) eventActive(name string) bool {
	return m.Events != nil && m.Events.EventActive(name, m.Now)
}

// Stage names the pipeline step that decided a draw.
type Stage int

const (
	StageWeighted Stage = iota
	StageGuarantee
	StageUltimate
)

func (s Stage) String() string {
	switch s {
	case StageGuarantee:
		return "guarantee"
	case StageUltimate:
		return "ultimate"
	default:
		return "weighted"
	}
}

// Resolution is the outcome of grade resolution.
type Resolution struct {
	Grade    grade.Grade
	Stage    Stage
	Consumed []economy.EffectKind
}

// Resolver maps a player's state and the global modifiers to a grade.
type Resolver struct {
	table  *grade.Table
	logger *slog.Logger
}

// NewResolver returns a Resolver over table.
func NewResolver(table *grade.Table, logger *slog.Logger) *Resolver {
	return &Resolver{table: table, logger: logger}
}

// Resolve picks a grade for one draw, consuming the effects it used.
func (r *Resolver) Resolve(state *economy.PlayerState, mods Modifiers, src rng.Source) Resolution {
	if kind, floor, ok := r.guarantee(state.Effects); ok {
		state.Effects.Consume(kind)
		idx := sample(guaranteed(r.table.Probabilities(), floor), src, floor)
		return Resolution{
			Grade:    r.table.Grades[idx],
			Stage:    StageGuarantee,
			Consumed: []economy.EffectKind{kind},
		}
	}

	var consumed []economy.EffectKind
	if state.Effects.Consume(economy.EffectUltimateBoost) {
		consumed = append(consumed, economy.EffectUltimateBoost)
		top := r.table.Top()
		chance := math.Min(100, top.Probability*r.table.Ultimate.Factor)
		if rng.Percent(src) < chance {
			return Resolution{Grade: top, Stage: StageUltimate, Consumed: consumed}
		}
	}

	probs, boosted := r.weighted(state, mods, true)
	if boosted && state.Effects.Consume(economy.EffectLuckBoost) {
		consumed = append(consumed, economy.EffectLuckBoost)
	}
	return Resolution{
		Grade:    r.table.Grades[sample(probs, src, 0)],
		Stage:    StageWeighted,
		Consumed: consumed,
	}
}

// Distribution returns the probabilities, in table order, that the next draw
// samples from. It never consumes effects. The ultimate boost is a separate
// roll and is not reflected.
func (r *Resolver) Distribution(state *economy.PlayerState, mods Modifiers) []float64 {
	if _, floor, ok := r.guarantee(state.Effects); ok {
		return guaranteed(r.table.Probabilities(), floor)
	}
	probs, _ := r.weighted(state, mods, false)
	return probs
}

func (r *Resolver) guarantee(e economy.Effects) (economy.EffectKind, int, bool) {
	if e.Active(economy.EffectGuaranteeEpic) {
		i, _ := r.table.Index(r.table.Guarantees.Epic)
		return economy.EffectGuaranteeEpic, i, true
	}
	if e.Active(economy.EffectGuaranteeRare) {
		i, _ := r.table.Index(r.table.Guarantees.Rare)
		return economy.EffectGuaranteeRare, i, true
	}
	return 0, 0, false
}

// weighted runs the base, permanent luck, temporary factor and normalisation
// stages. It reports whether the luck boost effect changed the distribution.
func (r *Resolver) weighted(state *economy.PlayerState, mods Modifiers, log bool) ([]float64, bool) {
	probs := r.base(state, log)
	donors, recipients := r.groups()

	luck := r.table.Luck
	level := min(max(state.PermanentLuck, 0), luck.MaxLevel)
	if level > 0 && luck.PerLevel > 0 {
		shift := math.Min(float64(level)*luck.PerLevel, 0.5*mass(probs, donors))
		move(probs, donors, recipients, shift)
	}

	factor := mods.luckMultiplier()
	boosted := state.Effects.Active(economy.EffectLuckBoost) && luck.BoostFactor != 1
	if boosted {
		factor *= luck.BoostFactor
	}
	if factor != 1 {
		h := mass(probs, recipients)
		delta := h*factor - h
		if delta > 0 {
			move(probs, donors, recipients, math.Min(delta, mass(probs, donors)))
		} else if delta < 0 {
			move(probs, recipients, donors, math.Min(-delta, h))
		}
	}

	return normalise(probs), boosted
}

func (r *Resolver) base(state *economy.PlayerState, log bool) []float64 {
	custom := state.CustomProbabilities
	if custom == nil {
		return r.table.Probabilities()
	}
	if err := r.table.CheckDistribution(custom); err != nil {
		if log && r.logger != nil {
			r.logger.Warn("ignoring invalid custom probabilities",
				slog.String("player_id", state.ID),
				slog.String("error", err.Error()),
			)
		}
		return r.table.Probabilities()
	}
	probs := make([]float64, r.table.Len())
	for key, p := range custom {
		i, _ := r.table.Index(key)
		probs[i] = p
	}
	return probs
}

func (r *Resolver) groups() (donors, recipients []int) {
	for _, k := range r.table.Luck.Donors {
		if i, ok := r.table.Index(k); ok {
			donors = append(donors, i)
		}
	}
	for _, k := range r.table.Luck.Recipients {
		if i, ok := r.table.Index(k); ok {
			recipients = append(recipients, i)
		}
	}
	return donors, recipients
}

func mass(probs []float64, idx []int) float64 {
	var m float64
	for _, i := range idx {
		m += probs[i]
	}
	return m
}

// move transfers amount from the from group to the to group. Each side
// changes in proportion to its members' current share; a side with no mass
// shares evenly.
func move(probs []float64, from, to []int, amount float64) {
	if amount <= 0 || len(from) == 0 || len(to) == 0 {
		return
	}
	spread(probs, from, -amount)
	spread(probs, to, amount)
}

func spread(probs []float64, idx []int, amount float64) {
	m := mass(probs, idx)
	for _, i := range idx {
		share := 1 / float64(len(idx))
		if m > 0 {
			share = probs[i] / m
		}
		probs[i] = clamp(probs[i] + amount*share)
	}
}

// guaranteed keeps the grades at or above floor and rescales them to 100.
func guaranteed(probs []float64, floor int) []float64 {
	out := make([]float64, len(probs))
	var m float64
	for i := floor; i < len(probs); i++ {
		m += probs[i]
	}
	for i := floor; i < len(probs); i++ {
		if m > 0 {
			out[i] = probs[i] / m * 100
		} else {
			out[i] = 100 / float64(len(probs)-floor)
		}
	}
	return out
}

func normalise(probs []float64) []float64 {
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if sum <= 0 {
		return probs
	}
	for i := range probs {
		probs[i] = clamp(probs[i] * 100 / sum)
	}
	return probs
}

// sample walks probs in order and returns the first index whose cumulative
// mass exceeds the roll, or fallback when rounding leaves the roll uncovered.
func sample(probs []float64, src rng.Source, fallback int) int {
	r := rng.Percent(src)
	var cum float64
	for i, p := range probs {
		cum += p
		if r < cum {
			return i
		}
	}
	return fallback
}

func clamp(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}
