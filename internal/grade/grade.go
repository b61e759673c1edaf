// Package grade loads the immutable grade table: grades with their base
// probabilities, item pools and coin values, the fusion ladder, luck groups,
// guarantee tiers and mutation settings.
package grade

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/rng"
)

// SumTolerance is the allowed drift of a probability sum from 100.
const SumTolerance = 1e-3

// ErrInvalidTable is returned when a grade table fails validation.
var ErrInvalidTable = errors.New("invalid grade table")

// PoolItem is one collectible a grade can produce.
type PoolItem struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
}

// Grade is one rarity tier.
type Grade struct {
	Key         string     `yaml:"key"`
	Name        string     `yaml:"name"`
	Probability float64    `yaml:"probability"`
	CoinValue   int64      `yaml:"coin_value"`
	Items       []PoolItem `yaml:"items"`
}

// Luck configures the donor/recipient split used by both luck stages.
type Luck struct {
	Donors      []string `yaml:"donors"`
	Recipients  []string `yaml:"recipients"`
	PerLevel    float64  `yaml:"per_level"`
	MaxLevel    int      `yaml:"max_level"`
	BoostFactor float64  `yaml:"boost_factor"`
}

// Guarantees maps each guarantee ticket to its minimum grade.
type Guarantees struct {
	Rare string `yaml:"guarantee_rare"`
	Epic string `yaml:"guarantee_epic"`
}

// Ultimate configures the ultimate boost roll.
type Ultimate struct {
	Factor float64 `yaml:"factor"`
}

// Mutation configures one mutation kind.
type Mutation struct {
	Kind        economy.MutationKind `yaml:"kind"`
	Probability float64              `yaml:"probability"`
	Multiplier  float64              `yaml:"multiplier"`
	// Event, when set, gates the roll on the named event being active.
	Event string `yaml:"event"`
}

// Table is the validated, read-only grade configuration. Grades are ordered
// from lowest to highest.
type Table struct {
	Grades          []Grade    `yaml:"grades"`
	FusionLadder    []string   `yaml:"fusion_ladder"`
	Luck            Luck       `yaml:"luck"`
	Guarantees      Guarantees `yaml:"guarantees"`
	Ultimate        Ultimate   `yaml:"ultimate"`
	Mutations       []Mutation `yaml:"mutations"`
	CoinBoostFactor float64    `yaml:"coin_boost_factor"`

	index map[string]int
}

// Load reads and validates a grade table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grade table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a grade table.
func Parse(data []byte) (*Table, error) {
	t := &Table{
		Ultimate:        Ultimate{Factor: 10},
		CoinBoostFactor: 2,
		Luck:            Luck{BoostFactor: 2},
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing grade table: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	var errs []string
	if len(t.Grades) == 0 {
		return fmt.Errorf("%w: no grades", ErrInvalidTable)
	}

	t.index = make(map[string]int, len(t.Grades))
	var sum float64
	for i, g := range t.Grades {
		switch {
		case g.Key == "":
			errs = append(errs, fmt.Sprintf("grades[%d]: empty key", i))
		case t.has(g.Key):
			errs = append(errs, fmt.Sprintf("grades[%d]: duplicate key %q", i, g.Key))
		default:
			t.index[g.Key] = i
		}
		if g.Probability < 0 || g.Probability > 100 || math.IsNaN(g.Probability) {
			errs = append(errs, fmt.Sprintf("grade %q: probability %v outside [0,100]", g.Key, g.Probability))
		}
		if g.CoinValue < 0 {
			errs = append(errs, fmt.Sprintf("grade %q: negative coin value", g.Key))
		}
		if len(g.Items) == 0 {
			errs = append(errs, fmt.Sprintf("grade %q: empty item pool", g.Key))
		}
		sum += g.Probability
	}
	if math.Abs(sum-100) > SumTolerance {
		errs = append(errs, fmt.Sprintf("probabilities sum to %v, want 100", sum))
	}

	if len(t.FusionLadder) < 2 {
		errs = append(errs, "fusion_ladder needs at least two grades")
	}
	last := -1
	for _, k := range t.FusionLadder {
		i, ok := t.index[k]
		if !ok {
			errs = append(errs, fmt.Sprintf("fusion_ladder: unknown grade %q", k))
			continue
		}
		if i <= last {
			errs = append(errs, fmt.Sprintf("fusion_ladder: %q out of order", k))
		}
		last = i
	}

	errs = append(errs, t.validateLuck()...)

	for name, k := range map[string]string{"guarantee_rare": t.Guarantees.Rare, "guarantee_epic": t.Guarantees.Epic} {
		if !t.has(k) {
			errs = append(errs, fmt.Sprintf("guarantees.%s: unknown grade %q", name, k))
		}
	}
	if t.has(t.Guarantees.Rare) && t.has(t.Guarantees.Epic) && t.index[t.Guarantees.Epic] < t.index[t.Guarantees.Rare] {
		errs = append(errs, "guarantees: epic tier below rare tier")
	}

	if t.Ultimate.Factor <= 0 {
		errs = append(errs, "ultimate.factor must be positive")
	}
	if t.CoinBoostFactor < 1 {
		errs = append(errs, "coin_boost_factor must be at least 1")
	}

	seen := map[economy.MutationKind]bool{}
	for _, m := range t.Mutations {
		if seen[m.Kind] {
			errs = append(errs, fmt.Sprintf("mutations: duplicate kind %s", m.Kind))
		}
		seen[m.Kind] = true
		if m.Probability < 0 || m.Probability > 100 || math.IsNaN(m.Probability) {
			errs = append(errs, fmt.Sprintf("mutation %s: probability %v outside [0,100]", m.Kind, m.Probability))
		}
		if m.Multiplier <= 0 {
			errs = append(errs, fmt.Sprintf("mutation %s: multiplier must be positive", m.Kind))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(errs, "; "))
	}
	return nil
}

func (t *Table) validateLuck() []string {
	var errs []string
	l := t.Luck
	if len(l.Donors) == 0 || len(l.Recipients) == 0 {
		errs = append(errs, "luck: donors and recipients must be non-empty")
	}
	donors := map[string]bool{}
	for _, k := range l.Donors {
		if !t.has(k) {
			errs = append(errs, fmt.Sprintf("luck.donors: unknown grade %q", k))
		}
		donors[k] = true
	}
	for _, k := range l.Recipients {
		if !t.has(k) {
			errs = append(errs, fmt.Sprintf("luck.recipients: unknown grade %q", k))
		}
		if donors[k] {
			errs = append(errs, fmt.Sprintf("luck: grade %q is both donor and recipient", k))
		}
	}
	if l.PerLevel < 0 {
		errs = append(errs, "luck.per_level must not be negative")
	}
	if l.MaxLevel < 0 {
		errs = append(errs, "luck.max_level must not be negative")
	}
	if l.BoostFactor < 1 {
		errs = append(errs, "luck.boost_factor must be at least 1")
	}
	return errs
}

func (t *Table) has(key string) bool {
	_, ok := t.index[key]
	return ok
}

// Len is the number of grades.
func (t *Table) Len() int { return len(t.Grades) }

// Index returns the position of key in table order.
func (t *Table) Index(key string) (int, bool) {
	i, ok := t.index[key]
	return i, ok
}

// Lookup returns the grade named key.
func (t *Table) Lookup(key string) (Grade, bool) {
	i, ok := t.index[key]
	if !ok {
		return Grade{}, false
	}
	return t.Grades[i], true
}

// Lowest is the first grade in table order.
func (t *Table) Lowest() Grade { return t.Grades[0] }

// Top is the last grade in table order.
func (t *Table) Top() Grade { return t.Grades[len(t.Grades)-1] }

// Probabilities returns the base probabilities in table order.
func (t *Table) Probabilities() []float64 {
	out := make([]float64, len(t.Grades))
	for i, g := range t.Grades {
		out[i] = g.Probability
	}
	return out
}

// CheckDistribution validates a per-player probability override: every key
// a known grade, every value in [0,100] and the sum 100 within
// SumTolerance. It is never renormalised.
func (t *Table) CheckDistribution(probs map[string]float64) error {
	if len(probs) == 0 {
		return fmt.Errorf("empty distribution: %w", economy.ErrInvalidProbabilities)
	}
	var sum float64
	for key, p := range probs {
		if !t.has(key) {
			return fmt.Errorf("unknown grade %q: %w", key, economy.ErrInvalidProbabilities)
		}
		if p < 0 || p > 100 || math.IsNaN(p) {
			return fmt.Errorf("grade %q: %v outside [0,100]: %w", key, p, economy.ErrInvalidProbabilities)
		}
		sum += p
	}
	if math.Abs(sum-100) > SumTolerance {
		return fmt.Errorf("sum is %v: %w", sum, economy.ErrInvalidProbabilities)
	}
	return nil
}

// NextFusion returns the grade one rung above key on the fusion ladder.
func (t *Table) NextFusion(key string) (string, bool) {
	for i, k := range t.FusionLadder {
		if k == key && i+1 < len(t.FusionLadder) {
			return t.FusionLadder[i+1], true
		}
	}
	return "", false
}

// Mutation returns the settings for kind.
func (t *Table) Mutation(kind economy.MutationKind) (Mutation, bool) {
	for _, m := range t.Mutations {
		if m.Kind == kind {
			return m, true
		}
	}
	return Mutation{}, false
}

// PickItem draws an item uniformly from the pool of key.
func (t *Table) PickItem(key string, src rng.Source) (PoolItem, error) {
	g, ok := t.Lookup(key)
	if !ok {
		return PoolItem{}, fmt.Errorf("unknown grade %q", key)
	}
	return g.Items[rng.Index(src, len(g.Items))], nil
}

// ItemName returns the display name of itemID in grade key, or the id itself.
func (t *Table) ItemName(key, itemID string) string {
	g, ok := t.Lookup(key)
	if !ok {
		return itemID
	}
	for _, it := range g.Items {
		if it.ID == itemID {
			return it.Name
		}
	}
	return itemID
}
