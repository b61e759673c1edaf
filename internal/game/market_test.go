package game_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
)

func TestService_MarketTrade(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.draw(t, "alice", 1) // alice: 105 coins, one unsaved item
	if _, err := f.svc.Profile(ctx, "bob", "bob-name"); err != nil {
		t.Fatal(err)
	}

	p, _ := f.svc.Profile(ctx, "alice", "")
	uid := p.Stats.Inventory[0].UID
	listed, err := f.svc.ListItem(ctx, "alice", 0, uid, 50)
	if err != nil {
		t.Fatalf("ListItem() error = %v", err)
	}
	if len(listed.Delta.ItemsRemoved) != 1 {
		t.Errorf("list delta = %+v", listed.Delta)
	}

	market, err := f.svc.Market(ctx, 0)
	if err != nil || len(market) != 1 || market[0].SellerName != "alice-name" {
		t.Fatalf("Market() = %+v, %v", market, err)
	}

	bought, err := f.svc.BuyListing(ctx, "bob", "", listed.Listing.ID)
	if err != nil {
		t.Fatalf("BuyListing() error = %v", err)
	}
	if bought.Fee != 3 || bought.Delta.Coins != -50 || bought.Delta.ItemsAdded[0].UID != uid {
		t.Errorf("buy = %+v", bought)
	}

	// Both cached sessions see the committed trade.
	alice, _ := f.svc.Profile(ctx, "alice", "")
	bob, _ := f.svc.Profile(ctx, "bob", "")
	if alice.Stats.Coins != 152 || len(alice.Stats.Inventory) != 0 {
		t.Errorf("alice = %d coins, %d items; want 152, 0", alice.Stats.Coins, len(alice.Stats.Inventory))
	}
	if bob.Stats.Coins != 50 || len(bob.Stats.Inventory) != 1 {
		t.Errorf("bob = %d coins, %d items; want 50, 1", bob.Stats.Coins, len(bob.Stats.Inventory))
	}

	// Background saves must not roll the trade back.
	if doc := f.stored(t, "alice"); doc.Stats.Coins != 152 || doc.Stats.Total != 1 {
		t.Errorf("stored alice = %+v", doc.Stats)
	}
	if doc := f.stored(t, "bob"); doc.Stats.Coins != 50 {
		t.Errorf("stored bob coins = %d, want 50", doc.Stats.Coins)
	}

	if _, err := f.svc.BuyListing(ctx, "bob", "", listed.Listing.ID); !errors.Is(err, economy.ErrListingGone) {
		t.Errorf("second BuyListing() error = %v, want ErrListingGone", err)
	}
}

func TestService_SellerKeepsPlayingDuringListing(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.draw(t, "alice", 1)
	listed, err := f.svc.ListItem(ctx, "alice", 0, "", 30)
	if err != nil {
		t.Fatal(err)
	}
	f.draw(t, "alice", 2) // 105 + 10

	if _, err := f.svc.BuyListing(ctx, "bob", "", listed.Listing.ID); err != nil {
		t.Fatal(err)
	}
	alice := f.stored(t, "alice")
	// floor(30 × 0.95) = 28
	if alice.Stats.Coins != 115+28 || alice.Stats.Total != 3 || len(alice.Stats.Inventory) != 2 {
		t.Errorf("stored alice = %+v", alice.Stats)
	}
}

func TestService_CancelListing(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.draw(t, "alice", 1)
	listed, err := f.svc.ListItem(ctx, "alice", 0, "", 30)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.CancelListing(ctx, "bob", listed.Listing.ID); !errors.Is(err, economy.ErrNotOwner) {
		t.Errorf("CancelListing(bob) error = %v, want ErrNotOwner", err)
	}
	out, err := f.svc.CancelListing(ctx, "alice", listed.Listing.ID)
	if err != nil {
		t.Fatalf("CancelListing() error = %v", err)
	}
	if len(out.Delta.ItemsAdded) != 1 {
		t.Errorf("cancel delta = %+v", out.Delta)
	}
	mine, err := f.svc.MyListings(ctx, "alice")
	if err != nil || len(mine) != 0 {
		t.Errorf("MyListings() = %d, %v", len(mine), err)
	}
	p, _ := f.svc.Profile(ctx, "alice", "")
	if len(p.Stats.Inventory) != 1 {
		t.Errorf("inventory = %d, want 1", len(p.Stats.Inventory))
	}
}

func TestService_Sweep(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.draw(t, "alice", 2)
	for i := 0; i < 2; i++ {
		if _, err := f.svc.ListItem(ctx, "alice", 0, "", 30); err != nil {
			t.Fatal(err)
		}
	}

	if n, err := f.svc.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("Sweep() before expiry = %d, %v", n, err)
	}
	f.clk.Advance(2 * time.Hour)
	n, err := f.svc.Sweep(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Sweep() = %d, %v; want 2", n, err)
	}
	p, _ := f.svc.Profile(ctx, "alice", "")
	if len(p.Stats.Inventory) != 2 {
		t.Errorf("inventory = %d, want 2", len(p.Stats.Inventory))
	}
	if doc := f.stored(t, "alice"); len(doc.Stats.Inventory) != 2 {
		t.Errorf("stored inventory = %d, want 2", len(doc.Stats.Inventory))
	}
}

func TestService_BuyValidation(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.draw(t, "alice", 1)
	listed, err := f.svc.ListItem(ctx, "alice", 0, "", 500)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.BuyListing(ctx, "alice", "", listed.Listing.ID); !errors.Is(err, economy.ErrSelfPurchase) {
		t.Errorf("self BuyListing() error = %v", err)
	}
	if _, err := f.svc.BuyListing(ctx, "bob", "", listed.Listing.ID); !errors.Is(err, economy.ErrInsufficientFunds) {
		t.Errorf("poor BuyListing() error = %v", err)
	}
	if _, err := f.svc.ListItem(ctx, "alice", 0, "", 0); !errors.Is(err, economy.ErrInvalidPrice) {
		t.Errorf("ListItem(price 0) error = %v", err)
	}
	if _, err := f.svc.BuyListing(ctx, "bob", "", "missing"); !errors.Is(err, economy.ErrListingGone) {
		t.Errorf("BuyListing(missing) error = %v", err)
	}
}
