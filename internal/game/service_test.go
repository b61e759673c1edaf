package game_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
	"github.com/jensholdgaard/gachabot/internal/game"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/rng"
	"github.com/jensholdgaard/gachabot/internal/store"
	"github.com/jensholdgaard/gachabot/internal/store/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const tableYAML = `
grades:
  - {key: common, name: Common, probability: 70, coin_value: 10, items: [{id: slime, name: Slime}]}
  - {key: rare, name: Rare, probability: 25, coin_value: 50, items: [{id: wolf, name: Wolf}]}
  - {key: epic, name: Epic, probability: 5, coin_value: 200, items: [{id: wyvern, name: Wyvern}]}
fusion_ladder: [common, rare, epic]
luck: {donors: [common], recipients: [rare, epic], per_level: 1, max_level: 5, boost_factor: 2}
guarantees: {guarantee_rare: rare, guarantee_epic: epic}
`

func testConfig() config.EconomyConfig {
	cfg := config.Default().Economy
	cfg.StartingCoins = 100
	cfg.DrawCost = 5
	cfg.DrawCooldown = 2 * time.Second
	cfg.Inventory = config.InventoryConfig{
		InitialCapacity: 5,
		ExpansionStep:   2,
		BaseCost:        10,
		Growth:          2,
		MaxCapacity:     7,
	}
	cfg.Auction = config.AuctionConfig{
		FeeRate:       0.05,
		Duration:      time.Hour,
		MaxListings:   3,
		SweepInterval: time.Minute,
		BrowseLimit:   10,
	}
	cfg.Enhancement = config.EnhancementConfig{
		Levels: []config.EnhancementLevel{
			{SuccessChance: 100, Cost: 10},
			{SuccessChance: 0, Cost: 10, DestroyOnFail: true},
		},
		PerLevelBonus: 0.5,
	}
	cfg.Saver = config.SaverConfig{
		Workers:     2,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		QueueSize:   100,
	}
	return cfg
}

type fixture struct {
	svc   *game.Service
	repos *store.Repositories
	clk   *clock.Mock
}

func newFixture(t *testing.T, cfg config.EconomyConfig, wrap func(*store.Repositories)) *fixture {
	t.Helper()
	tbl, err := grade.Parse([]byte(tableYAML))
	if err != nil {
		t.Fatal(err)
	}
	clk := clock.NewMock(t0)
	repos := memory.New(clk).Repositories()
	if wrap != nil {
		wrap(repos)
	}
	svc, err := game.NewService(cfg, game.Deps{
		Table:          tbl,
		Repos:          repos,
		Random:         rng.Const(0),
		Clock:          clk,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		TracerProvider: noop.NewTracerProvider(),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &fixture{svc: svc, repos: repos, clk: clk}
}

// draw performs n draws, stepping past the cooldown each time.
func (f *fixture) draw(t *testing.T, player string, n int) []game.DrawOutcome {
	t.Helper()
	var out []game.DrawOutcome
	for i := 0; i < n; i++ {
		res, err := f.svc.Draw(context.Background(), player, player+"-name")
		if err != nil {
			t.Fatalf("Draw #%d error = %v", i, err)
		}
		out = append(out, res)
		f.clk.Advance(time.Minute)
	}
	return out
}

func (f *fixture) stored(t *testing.T, id string) economy.Document {
	t.Helper()
	if err := f.svc.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	doc, err := f.repos.Players.Load(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestService_DrawRegistersAndPersists(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	res := f.draw(t, "alice", 1)[0]
	if res.Grade.Key != "common" || res.Payout != 10 {
		t.Errorf("draw = %s/%d, want common/10", res.Grade.Key, res.Payout)
	}
	if res.Delta.Coins != 5 || res.Balance != 105 {
		t.Errorf("delta/balance = %d/%d, want 5/105", res.Delta.Coins, res.Balance)
	}
	if len(res.Delta.ItemsAdded) != 1 {
		t.Errorf("items added = %d, want 1", len(res.Delta.ItemsAdded))
	}
	if f.svc.PendingSaves() != 1 {
		t.Errorf("pending saves = %d, want 1", f.svc.PendingSaves())
	}

	doc := f.stored(t, "alice")
	if doc.DisplayName != "alice-name" || doc.Stats.Coins != 105 || doc.Stats.Total != 1 {
		t.Errorf("stored = %+v", doc.Stats)
	}
	if len(doc.Stats.Inventory) != 1 || doc.Stats.CollectedItems[0] != "slime" {
		t.Errorf("stored inventory = %+v", doc.Stats.Inventory)
	}

	evs, err := f.repos.Events.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	var types []event.Type
	for _, e := range evs {
		types = append(types, e.Type)
	}
	want := []event.Type{event.PlayerRegistered, event.CoinsDebited, event.CoinsCredited, event.ItemDrawn}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestService_Cooldown(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := f.svc.Draw(ctx, "alice", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Draw(ctx, "alice", ""); !errors.Is(err, economy.ErrCooldown) {
		t.Fatalf("second Draw() error = %v, want ErrCooldown", err)
	}
	f.clk.Advance(2 * time.Second)
	if _, err := f.svc.Draw(ctx, "alice", ""); err != nil {
		t.Fatalf("Draw() after cooldown error = %v", err)
	}

	// A speed boost halves the next cooldown.
	f.clk.Advance(2 * time.Second)
	if _, err := f.svc.GrantEffect(ctx, "alice", economy.EffectSpeedBoost, 1); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Draw(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fast {
		t.Error("speed boost not spent")
	}
	f.clk.Advance(time.Second)
	if _, err := f.svc.Draw(ctx, "alice", ""); err != nil {
		t.Errorf("Draw() after halved cooldown error = %v", err)
	}
}

func TestService_InsufficientFundsLeavesStateAlone(t *testing.T) {
	cfg := testConfig()
	cfg.StartingCoins = 3
	f := newFixture(t, cfg, nil)

	if _, err := f.svc.Draw(context.Background(), "alice", ""); !errors.Is(err, economy.ErrInsufficientFunds) {
		t.Fatalf("Draw() error = %v, want ErrInsufficientFunds", err)
	}
	p, err := f.svc.Profile(context.Background(), "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Stats.Coins != 3 || p.Stats.Total != 0 || p.PendingSave {
		t.Errorf("profile = %+v, pending %v", p.Stats, p.PendingSave)
	}
}

func TestService_FuseEnhanceSell(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.draw(t, "alice", 4)

	fused, err := f.svc.Fuse(ctx, "alice", [3]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if fused.Item.Grade != "rare" || len(fused.Delta.ItemsRemoved) != 3 {
		t.Errorf("fuse = %+v", fused)
	}

	// Inventory is now [common, rare].
	up, err := f.svc.Enhance(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("Enhance() error = %v", err)
	}
	if !up.Success || up.NewLevel != 1 || up.Delta.Coins != -10 {
		t.Errorf("enhance = %+v", up)
	}
	down, err := f.svc.Enhance(ctx, "alice", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !down.Destroyed || len(down.Delta.ItemsRemoved) != 1 {
		t.Errorf("second enhance = %+v, want destroyed", down)
	}

	sold, err := f.svc.Sell(ctx, "alice", 0, "")
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}
	if sold.Value != 10 {
		t.Errorf("sell value = %d, want 10", sold.Value)
	}

	// 100 + 4×(10−5) − 2×10 + 10
	doc := f.stored(t, "alice")
	if doc.Stats.Coins != 110 || len(doc.Stats.Inventory) != 0 {
		t.Errorf("stored coins/items = %d/%d, want 110/0", doc.Stats.Coins, len(doc.Stats.Inventory))
	}
}

func TestService_LockedItems(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	f.draw(t, "alice", 1)

	it, err := f.svc.ToggleLock(ctx, "alice", 0)
	if err != nil || !it.Locked {
		t.Fatalf("ToggleLock() = %+v, %v", it, err)
	}
	if _, err := f.svc.Sell(ctx, "alice", 0, ""); !errors.Is(err, economy.ErrItemLocked) {
		t.Errorf("Sell(locked) error = %v", err)
	}
	if _, err := f.svc.Enhance(ctx, "alice", 0); !errors.Is(err, economy.ErrItemLocked) {
		t.Errorf("Enhance(locked) error = %v", err)
	}
	if _, err := f.svc.ListItem(ctx, "alice", 0, "", 10); !errors.Is(err, economy.ErrItemLocked) {
		t.Errorf("ListItem(locked) error = %v", err)
	}
	if it, _ := f.svc.ToggleLock(ctx, "alice", 0); it.Locked {
		t.Error("second toggle should unlock")
	}
}

func TestService_ExpandInventory(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	q, err := f.svc.ExpansionQuote(ctx, "alice")
	if err != nil || q.Cost != 10 || q.Capacity != 7 {
		t.Fatalf("ExpansionQuote() = %+v, %v", q, err)
	}
	out, err := f.svc.ExpandInventory(ctx, "alice")
	if err != nil {
		t.Fatalf("ExpandInventory() error = %v", err)
	}
	if out.Capacity != 7 || out.Delta.Coins != -10 {
		t.Errorf("expand = %+v", out)
	}
	if _, err := f.svc.ExpandInventory(ctx, "alice"); !errors.Is(err, economy.ErrCapacityLimit) {
		t.Errorf("ExpandInventory() at max error = %v, want ErrCapacityLimit", err)
	}

	doc := f.stored(t, "alice")
	if doc.Stats.InventorySize != 7 || doc.Stats.Expansions != 1 || doc.Stats.Coins != 90 {
		t.Errorf("stored = %+v", doc.Stats)
	}
}

func TestService_OddsDoNotConsume(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	if _, err := f.svc.GrantEffect(ctx, "alice", economy.EffectLuckBoost, 1); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		odds, err := f.svc.Odds(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		var sum float64
		for _, o := range odds {
			sum += o.Percent
		}
		if sum < 99.999 || sum > 100.001 {
			t.Errorf("odds sum = %v", sum)
		}
		if odds[0].Percent >= 70 {
			t.Errorf("luck boost not reflected: common = %v", odds[0].Percent)
		}
	}
	p, err := f.svc.Profile(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Effects.Remaining(economy.EffectLuckBoost) != 1 {
		t.Errorf("luck boost = %d, want 1", p.Effects.Remaining(economy.EffectLuckBoost))
	}
}

func TestService_Grants(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()
	if _, err := f.svc.GrantCoins(ctx, "alice", 0); !errors.Is(err, economy.ErrInvalidAmount) {
		t.Errorf("GrantCoins(0) error = %v", err)
	}
	bal, err := f.svc.GrantCoins(ctx, "alice", 50)
	if err != nil || bal != 150 {
		t.Errorf("GrantCoins() = %d, %v; want 150", bal, err)
	}
	if _, err := f.svc.GrantEffect(ctx, "alice", economy.EffectCoinBoost, 0); !errors.Is(err, economy.ErrInvalidAmount) {
		t.Errorf("GrantEffect(0) error = %v", err)
	}
}

func TestService_ConcurrentDraws(t *testing.T) {
	cfg := testConfig()
	const n = 20
	cfg.DrawCooldown = 0
	cfg.DrawCost = 0
	cfg.Inventory.InitialCapacity = n
	cfg.Inventory.MaxCapacity = n
	f := newFixture(t, cfg, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Draw(ctx, "alice", ""); err != nil {
				t.Errorf("Draw() error = %v", err)
			}
		}()
	}
	wg.Wait()

	doc := f.stored(t, "alice")
	if doc.Stats.Total != n || doc.Stats.Coins != 100+n*10 {
		t.Errorf("stored total/coins = %d/%d", doc.Stats.Total, doc.Stats.Coins)
	}
	if len(doc.Stats.Inventory) != n {
		t.Errorf("inventory = %d, want %d", len(doc.Stats.Inventory), n)
	}
}

// flakyPlayers fails the first fails saves once armed.
type flakyPlayers struct {
	store.PlayerRepository
	armed atomic.Bool
	fails atomic.Int32
	saves atomic.Int32
}

func (p *flakyPlayers) Save(ctx context.Context, doc economy.Document) (economy.Document, error) {
	if p.armed.Load() && p.fails.Add(-1) >= 0 {
		return economy.Document{}, errors.New("connection reset")
	}
	p.saves.Add(1)
	return p.PlayerRepository.Save(ctx, doc)
}

func TestService_SaverRetries(t *testing.T) {
	flaky := &flakyPlayers{}
	f := newFixture(t, testConfig(), func(r *store.Repositories) {
		flaky.PlayerRepository = r.Players
		r.Players = flaky
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()

	if _, err := f.svc.Profile(context.Background(), "alice", ""); err != nil {
		t.Fatal(err)
	}
	flaky.fails.Store(2)
	flaky.armed.Store(true)
	f.draw(t, "alice", 1)

	deadline := time.Now().Add(5 * time.Second)
	for {
		doc, err := f.repos.Players.Load(context.Background(), "alice")
		if err == nil && doc.Stats.Total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("draw never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if flaky.fails.Load() >= 0 {
		t.Errorf("expected both failures to be consumed, %d left", flaky.fails.Load())
	}
}
