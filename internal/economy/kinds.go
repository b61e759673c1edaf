package economy

import (
	"encoding/json"
	"fmt"
	"math/bits"
)

// EffectKind is a consumable, counter-based modifier applied to draws.
type EffectKind uint8

const (
	EffectSpeedBoost EffectKind = iota + 1
	EffectCoinBoost
	EffectGuaranteeRare
	EffectGuaranteeEpic
	EffectUltimateBoost
	EffectLuckBoost
)

// AllEffects lists every EffectKind in declaration order.
func AllEffects() []EffectKind {
	return []EffectKind{
		EffectSpeedBoost,
		EffectCoinBoost,
		EffectGuaranteeRare,
		EffectGuaranteeEpic,
		EffectUltimateBoost,
		EffectLuckBoost,
	}
}

func (k EffectKind) String() string {
	switch k {
	case EffectSpeedBoost:
		return "speedBoost"
	case EffectCoinBoost:
		return "coinBoost"
	case EffectGuaranteeRare:
		return "guaranteeRare"
	case EffectGuaranteeEpic:
		return "guaranteeEpic"
	case EffectUltimateBoost:
		return "ultimateBoost"
	case EffectLuckBoost:
		return "luckBoost"
	default:
		return fmt.Sprintf("EffectKind(%d)", uint8(k))
	}
}

// ParseEffectKind resolves the persisted name of an effect.
func ParseEffectKind(s string) (EffectKind, error) {
	for _, k := range AllEffects() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEffect, s)
}

// MarshalText encodes the kind by name so it can key JSON objects.
func (k EffectKind) MarshalText() ([]byte, error) {
	if _, err := ParseEffectKind(k.String()); err != nil {
		return nil, err
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EffectKind) UnmarshalText(b []byte) error {
	parsed, err := ParseEffectKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MutationKind is an independent value modifier rolled on top of a grade.
type MutationKind uint8

const (
	MutationGold MutationKind = iota + 1
	MutationRainbow
	MutationSeasonal
)

// AllMutations lists every MutationKind in roll order.
func AllMutations() []MutationKind {
	return []MutationKind{MutationGold, MutationRainbow, MutationSeasonal}
}

func (k MutationKind) String() string {
	switch k {
	case MutationGold:
		return "gold"
	case MutationRainbow:
		return "rainbow"
	case MutationSeasonal:
		return "seasonal"
	default:
		return fmt.Sprintf("MutationKind(%d)", uint8(k))
	}
}

// ParseMutationKind resolves the persisted name of a mutation.
func ParseMutationKind(s string) (MutationKind, error) {
	for _, k := range AllMutations() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMutation, s)
}

// MarshalText encodes the kind by name.
func (k MutationKind) MarshalText() ([]byte, error) {
	if _, err := ParseMutationKind(k.String()); err != nil {
		return nil, err
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *MutationKind) UnmarshalText(b []byte) error {
	parsed, err := ParseMutationKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MutationSet is a bit set of MutationKind values.
type MutationSet uint8

func bit(k MutationKind) MutationSet { return 1 << (k - 1) }

// NewMutationSet builds a set from kinds.
func NewMutationSet(kinds ...MutationKind) MutationSet {
	var s MutationSet
	for _, k := range kinds {
		s = s.With(k)
	}
	return s
}

// With returns s plus k.
func (s MutationSet) With(k MutationKind) MutationSet { return s | bit(k) }

// Has reports whether k is in s.
func (s MutationSet) Has(k MutationKind) bool { return s&bit(k) != 0 }

// Len is the number of mutations in s.
func (s MutationSet) Len() int { return bits.OnesCount8(uint8(s)) }

// Kinds lists the members of s in roll order.
func (s MutationSet) Kinds() []MutationKind {
	var out []MutationKind
	for _, k := range AllMutations() {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// MarshalJSON writes the set as a list of names.
func (s MutationSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, s.Len())
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON reads a list of names.
func (s *MutationSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var out MutationSet
	for _, n := range names {
		k, err := ParseMutationKind(n)
		if err != nil {
			return err
		}
		out = out.With(k)
	}
	*s = out
	return nil
}

// Effects holds the remaining-use counters of a player's active effects.
type Effects map[EffectKind]int

// Remaining reports how many uses of k are left.
func (e Effects) Remaining(k EffectKind) int { return e[k] }

// Active reports whether k has at least one use left.
func (e Effects) Active(k EffectKind) bool { return e[k] > 0 }

// Consume spends one use of k. It reports false, and changes nothing, when k
// is not active. Only draw resolution calls this.
func (e Effects) Consume(k EffectKind) bool {
	if e[k] <= 0 {
		return false
	}
	e[k]--
	if e[k] == 0 {
		delete(e, k)
	}
	return true
}

// Grant adds n uses of k.
func (e Effects) Grant(k EffectKind, n int) error {
	if n <= 0 {
		return ErrInvalidAmount
	}
	if _, err := ParseEffectKind(k.String()); err != nil {
		return err
	}
	e[k] += n
	return nil
}

func (e Effects) clone() Effects {
	out := make(Effects, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
