package economy_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
)

func TestDocument_RoundTrip(t *testing.T) {
	p, err := economy.NewPlayer("u1", "alice", 500, 10)
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	item := economy.NewItem("epic", "dragon", economy.NewMutationSet(economy.MutationGold, economy.MutationSeasonal))
	item.Level = 3
	if err := p.Inventory.Insert(item); err != nil {
		t.Fatal(err)
	}
	_ = p.Effects.Grant(economy.EffectGuaranteeRare, 2)
	p.PermanentLuck = 4
	p.CustomMutationProbabilities = map[economy.MutationKind]float64{economy.MutationRainbow: 12.5}
	p.RecordDraw("epic", "dragon")
	p.LastSaved = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.Version = 7

	raw, err := json.Marshal(p.Document())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var doc economy.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	got, err := economy.StateFromDocument(doc)
	if err != nil {
		t.Fatalf("StateFromDocument() error = %v", err)
	}

	if got.Ledger.Balance() != 500 {
		t.Errorf("coins = %d, want 500", got.Ledger.Balance())
	}
	if got.Inventory.Capacity() != 10 || got.Inventory.Len() != 1 {
		t.Errorf("inventory = %d/%d, want 1/10", got.Inventory.Len(), got.Inventory.Capacity())
	}
	it, _ := got.Inventory.At(0)
	if it.UID != item.UID || it.Level != 3 || !it.Mutations.Has(economy.MutationSeasonal) || it.Mutations.Has(economy.MutationRainbow) {
		t.Errorf("item = %+v, want %+v", it, item)
	}
	if got.Effects.Remaining(economy.EffectGuaranteeRare) != 2 {
		t.Errorf("guaranteeRare = %d, want 2", got.Effects.Remaining(economy.EffectGuaranteeRare))
	}
	if got.CustomMutationProbabilities[economy.MutationRainbow] != 12.5 {
		t.Errorf("custom mutation probabilities = %v", got.CustomMutationProbabilities)
	}
	if got.Stats.TotalDraws != 1 || !got.Stats.Collected["dragon"] || got.Stats.GradeCounts["epic"] != 1 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if got.Version != 7 || !got.LastSaved.Equal(p.LastSaved) {
		t.Errorf("version/lastSaved = %d/%v", got.Version, got.LastSaved)
	}
}

func TestDocument_MutationsAsNames(t *testing.T) {
	item := economy.Item{UID: "x", Mutations: economy.NewMutationSet(economy.MutationRainbow, economy.MutationGold)}
	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	_ = json.Unmarshal(raw, &generic)
	names, ok := generic["mutations"].([]any)
	if !ok || len(names) != 2 || names[0] != "gold" || names[1] != "rainbow" {
		t.Errorf("mutations = %v, want [gold rainbow]", generic["mutations"])
	}
}

func TestStateFromDocument_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  economy.Document
		want error
	}{
		{
			name: "negative coins",
			doc:  economy.Document{ID: "a", Stats: economy.DocumentStats{Coins: -1, InventorySize: 5}},
			want: economy.ErrInvalidAmount,
		},
		{
			name: "over capacity",
			doc: economy.Document{ID: "a", Stats: economy.DocumentStats{
				InventorySize: 1,
				Inventory:     []economy.Item{{UID: "1"}, {UID: "2"}},
			}},
			want: economy.ErrInventoryFull,
		},
		{
			name: "unknown effect",
			doc: economy.Document{ID: "a", Stats: economy.DocumentStats{InventorySize: 1},
				ActiveEffects: map[string]int{"teleport": 1}},
			want: economy.ErrUnknownEffect,
		},
		{
			name: "negative effect",
			doc: economy.Document{ID: "a", Stats: economy.DocumentStats{InventorySize: 1},
				ActiveEffects: map[string]int{"luckBoost": -1}},
			want: economy.ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := economy.StateFromDocument(tt.doc); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEffects_Consume(t *testing.T) {
	e := economy.Effects{}
	if e.Consume(economy.EffectLuckBoost) {
		t.Fatal("Consume() on inactive effect returned true")
	}
	_ = e.Grant(economy.EffectLuckBoost, 1)
	if !e.Consume(economy.EffectLuckBoost) {
		t.Fatal("Consume() on active effect returned false")
	}
	if e.Active(economy.EffectLuckBoost) || e.Remaining(economy.EffectLuckBoost) != 0 {
		t.Errorf("effect still active after last use")
	}
	if err := e.Grant(economy.EffectCoinBoost, 0); !errors.Is(err, economy.ErrInvalidAmount) {
		t.Errorf("Grant(0) error = %v, want ErrInvalidAmount", err)
	}
}

func TestClone_Independent(t *testing.T) {
	p, _ := economy.NewPlayer("u1", "alice", 100, 5)
	_ = p.Inventory.Insert(economy.NewItem("common", "c", 0))
	c := p.Clone()
	_ = c.Ledger.Debit(50, "x")
	_, _ = c.Inventory.Remove(0)
	c.RecordDraw("rare", "r")

	if p.Ledger.Balance() != 100 || p.Inventory.Len() != 1 || p.Stats.TotalDraws != 0 {
		t.Errorf("original mutated through clone: balance=%d len=%d draws=%d",
			p.Ledger.Balance(), p.Inventory.Len(), p.Stats.TotalDraws)
	}
}

func TestListing_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := economy.Listing{ExpiresAt: now}
	if !l.Expired(now) {
		t.Error("listing should be expired at its expiry instant")
	}
	if l.Expired(now.Add(-time.Second)) {
		t.Error("listing should be live before expiry")
	}
}
