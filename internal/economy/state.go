package economy

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Stats are the cumulative draw counters of a player.
type Stats struct {
	TotalDraws  int
	GradeCounts map[string]int
	Collected   map[string]bool
	Expansions  int
}

// PlayerState is the in-memory economy state of one player. Every engine
// receives it explicitly; none keeps its own copy.
type PlayerState struct {
	ID          string
	DisplayName string
	Ledger      *Ledger
	Inventory   *Inventory
	Effects     Effects
	// PermanentLuck is a level in 0..MaxLuckLevel of the grade table.
	PermanentLuck               int
	CustomProbabilities         map[string]float64
	CustomMutationProbabilities map[MutationKind]float64
	Stats                       Stats
	LastSaved                   time.Time
	Version                     int64
}

// NewPlayer builds a fresh player.
func NewPlayer(id, displayName string, coins int64, capacity int) (*PlayerState, error) {
	ledger, err := NewLedger(coins)
	if err != nil {
		return nil, err
	}
	inv, err := NewInventory(capacity)
	if err != nil {
		return nil, err
	}
	return &PlayerState{
		ID:          id,
		DisplayName: displayName,
		Ledger:      ledger,
		Inventory:   inv,
		Effects:     Effects{},
		Stats: Stats{
			GradeCounts: map[string]int{},
			Collected:   map[string]bool{},
		},
	}, nil
}

// RecordDraw updates the stats for a resolved draw.
func (p *PlayerState) RecordDraw(grade, itemID string) {
	if p.Stats.GradeCounts == nil {
		p.Stats.GradeCounts = map[string]int{}
	}
	if p.Stats.Collected == nil {
		p.Stats.Collected = map[string]bool{}
	}
	p.Stats.TotalDraws++
	p.Stats.GradeCounts[grade]++
	p.Stats.Collected[itemID] = true
}

// MarkCollected records itemID in the player's collection.
func (p *PlayerState) MarkCollected(itemID string) {
	if p.Stats.Collected == nil {
		p.Stats.Collected = map[string]bool{}
	}
	p.Stats.Collected[itemID] = true
}

// Clone returns a deep copy. Pending ledger deltas are not carried over.
func (p *PlayerState) Clone() *PlayerState {
	out := *p
	out.Ledger = &Ledger{balance: p.Ledger.balance}
	out.Inventory = &Inventory{items: p.Inventory.Items(), capacity: p.Inventory.capacity}
	out.Effects = p.Effects.clone()
	if p.CustomProbabilities != nil {
		out.CustomProbabilities = make(map[string]float64, len(p.CustomProbabilities))
		for k, v := range p.CustomProbabilities {
			out.CustomProbabilities[k] = v
		}
	}
	if p.CustomMutationProbabilities != nil {
		out.CustomMutationProbabilities = make(map[MutationKind]float64, len(p.CustomMutationProbabilities))
		for k, v := range p.CustomMutationProbabilities {
			out.CustomMutationProbabilities[k] = v
		}
	}
	out.Stats.GradeCounts = make(map[string]int, len(p.Stats.GradeCounts))
	for k, v := range p.Stats.GradeCounts {
		out.Stats.GradeCounts[k] = v
	}
	out.Stats.Collected = make(map[string]bool, len(p.Stats.Collected))
	for k, v := range p.Stats.Collected {
		out.Stats.Collected[k] = v
	}
	return &out
}

// Document is the persisted form of a player.
type Document struct {
	ID            string         `json:"id"`
	DisplayName   string         `json:"displayName"`
	Stats         DocumentStats  `json:"stats"`
	ActiveEffects map[string]int `json:"activeEffects"`
	LastSaved     time.Time      `json:"lastSaved"`
	Version       int64          `json:"version"`
}

// DocumentStats is the "stats" object of a Document.
type DocumentStats struct {
	Coins                       int64              `json:"coins"`
	Inventory                   []Item             `json:"inventory"`
	InventorySize               int                `json:"inventorySize"`
	Total                       int                `json:"total"`
	GradeCounts                 map[string]int     `json:"gradeCounts"`
	CollectedItems              []string           `json:"collectedItems"`
	PermanentLuck               int                `json:"permanentLuck"`
	CustomProbabilities         map[string]float64 `json:"customProbabilities,omitempty"`
	CustomMutationProbabilities map[string]float64 `json:"customMutationProbabilities,omitempty"`
	Expansions                  int                `json:"expansions"`
}

// Document converts the state to its persisted form.
func (p *PlayerState) Document() Document {
	collected := make([]string, 0, len(p.Stats.Collected))
	for id, ok := range p.Stats.Collected {
		if ok {
			collected = append(collected, id)
		}
	}
	sort.Strings(collected)

	effects := make(map[string]int, len(p.Effects))
	for k, v := range p.Effects {
		if v > 0 {
			effects[k.String()] = v
		}
	}

	var mut map[string]float64
	if p.CustomMutationProbabilities != nil {
		mut = make(map[string]float64, len(p.CustomMutationProbabilities))
		for k, v := range p.CustomMutationProbabilities {
			mut[k.String()] = v
		}
	}

	counts := make(map[string]int, len(p.Stats.GradeCounts))
	for k, v := range p.Stats.GradeCounts {
		counts[k] = v
	}

	return Document{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Stats: DocumentStats{
			Coins:                       p.Ledger.Balance(),
			Inventory:                   p.Inventory.Items(),
			InventorySize:               p.Inventory.Capacity(),
			Total:                       p.Stats.TotalDraws,
			GradeCounts:                 counts,
			CollectedItems:              collected,
			PermanentLuck:               p.PermanentLuck,
			CustomProbabilities:         p.CustomProbabilities,
			CustomMutationProbabilities: mut,
			Expansions:                  p.Stats.Expansions,
		},
		ActiveEffects: effects,
		LastSaved:     p.LastSaved,
		Version:       p.Version,
	}
}

// StateFromDocument rebuilds a PlayerState, rejecting documents that break
// the economy invariants.
func StateFromDocument(doc Document) (*PlayerState, error) {
	ledger, err := NewLedger(doc.Stats.Coins)
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", doc.ID, err)
	}
	inv, err := NewInventory(doc.Stats.InventorySize, doc.Stats.Inventory...)
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", doc.ID, err)
	}
	if doc.Stats.PermanentLuck < 0 {
		return nil, fmt.Errorf("player %s: negative luck level: %w", doc.ID, ErrInvalidAmount)
	}

	effects := Effects{}
	for name, n := range doc.ActiveEffects {
		k, err := ParseEffectKind(name)
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", doc.ID, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("player %s: effect %s count %d: %w", doc.ID, name, n, ErrInvalidAmount)
		}
		if n > 0 {
			effects[k] = n
		}
	}

	var mut map[MutationKind]float64
	if doc.Stats.CustomMutationProbabilities != nil {
		mut = make(map[MutationKind]float64, len(doc.Stats.CustomMutationProbabilities))
		for name, v := range doc.Stats.CustomMutationProbabilities {
			k, err := ParseMutationKind(name)
			if err != nil {
				return nil, fmt.Errorf("player %s: %w", doc.ID, err)
			}
			if v < 0 || v > 100 || math.IsNaN(v) {
				return nil, fmt.Errorf("player %s: mutation %s probability %v: %w", doc.ID, name, v, ErrInvalidProbabilities)
			}
			mut[k] = v
		}
	}

	counts := make(map[string]int, len(doc.Stats.GradeCounts))
	for k, v := range doc.Stats.GradeCounts {
		counts[k] = v
	}
	collected := make(map[string]bool, len(doc.Stats.CollectedItems))
	for _, id := range doc.Stats.CollectedItems {
		collected[id] = true
	}

	return &PlayerState{
		ID:                          doc.ID,
		DisplayName:                 doc.DisplayName,
		Ledger:                      ledger,
		Inventory:                   inv,
		Effects:                     effects,
		PermanentLuck:               doc.Stats.PermanentLuck,
		CustomProbabilities:         doc.Stats.CustomProbabilities,
		CustomMutationProbabilities: mut,
		Stats: Stats{
			TotalDraws:  doc.Stats.Total,
			GradeCounts: counts,
			Collected:   collected,
			Expansions:  doc.Stats.Expansions,
		},
		LastSaved: doc.LastSaved,
		Version:   doc.Version,
	}, nil
}
