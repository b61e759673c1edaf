package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/store/postgres"
)

func newDoc(t *testing.T, id string, coins int64) economy.Document {
	t.Helper()
	p, err := economy.NewPlayer(id, id+"-name", coins, 10)
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Inventory.Insert(economy.NewItem("rare", "wolf", economy.NewMutationSet(economy.MutationGold)))
	return p.Document()
}

func TestPlayerRepo_SaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewMock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	repo := postgres.NewPlayerRepo(db, clk)
	ctx := context.Background()

	if _, err := repo.Load(ctx, "missing"); !errors.Is(err, economy.ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	saved, err := repo.Save(ctx, newDoc(t, "p1", 300))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("Version = %d, want 1", saved.Version)
	}

	saved.Stats.Coins = 999
	saved, err = repo.Save(ctx, saved)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if saved.Version != 2 {
		t.Errorf("Version = %d, want 2", saved.Version)
	}

	got, err := repo.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Stats.Coins != 999 || got.Version != 2 {
		t.Errorf("loaded coins/version = %d/%d", got.Stats.Coins, got.Version)
	}
	if len(got.Stats.Inventory) != 1 || !got.Stats.Inventory[0].Mutations.Has(economy.MutationGold) {
		t.Errorf("inventory = %+v", got.Stats.Inventory)
	}
	if !got.LastSaved.Equal(clk.Now()) {
		t.Errorf("LastSaved = %v, want %v", got.LastSaved, clk.Now())
	}
}
