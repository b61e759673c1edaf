// Package game is the player-facing surface of the economy. It keeps one
// in-memory session per active player, applies draws, fusions and
// enhancements to it synchronously and persists in the background. Market
// operations go through the auction house's transactions.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jensholdgaard/gachabot/internal/auction"
	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/enhance"
	"github.com/jensholdgaard/gachabot/internal/event"
	"github.com/jensholdgaard/gachabot/internal/eventflags"
	"github.com/jensholdgaard/gachabot/internal/fusion"
	"github.com/jensholdgaard/gachabot/internal/gacha"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/rng"
	"github.com/jensholdgaard/gachabot/internal/shop"
	"github.com/jensholdgaard/gachabot/internal/store"
	"github.com/jensholdgaard/gachabot/internal/telemetry"
)

// Ledger reasons written by the service.
const (
	ReasonSell      = "sell"
	ReasonExpansion = "inventory_expansion"
	ReasonGrant     = "grant"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Table          *grade.Table
	Repos          *store.Repositories
	Flags          eventflags.Source
	Metrics        *telemetry.Metrics
	Random         rng.Source
	Clock          clock.Clock
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

// Service runs the economy operations.
type Service struct {
	cfg      config.EconomyConfig
	table    *grade.Table
	players  store.PlayerRepository
	events   event.Store
	flags    eventflags.Source
	drawer   *gacha.Drawer
	fuser    *fusion.Engine
	enhancer *enhance.Engine
	house    *auction.House
	shop     *shop.Shop
	saver    *saver
	random   rng.Source
	metrics  *telemetry.Metrics
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	sessions map[string]*session
	loads    singleflight.Group
}

// NewService wires the engines over deps.
func NewService(cfg config.EconomyConfig, deps Deps) (*Service, error) {
	enhancer, err := enhance.NewEngine(cfg.Enhancement, deps.Table, deps.Logger, deps.TracerProvider)
	if err != nil {
		return nil, fmt.Errorf("building enhancement ladder: %w", err)
	}
	catalogue, err := shop.New(cfg.Shop, deps.Table, deps.Logger, deps.TracerProvider)
	if err != nil {
		return nil, fmt.Errorf("building shop: %w", err)
	}
	random := deps.Random
	if random == nil {
		random = rng.Default()
	}
	flags := deps.Flags
	if flags == nil {
		flags = eventflags.NewStatic(cfg.StaticFlags)
	}

	svc := &Service{
		cfg:      cfg,
		table:    deps.Table,
		players:  deps.Repos.Players,
		events:   deps.Repos.Events,
		flags:    flags,
		drawer:   gacha.NewDrawer(deps.Table, deps.Logger, deps.TracerProvider),
		fuser:    fusion.NewEngine(deps.Table, deps.Logger, deps.TracerProvider),
		enhancer: enhancer,
		house:    auction.NewHouse(deps.Repos.Tx, deps.Repos.Listings, cfg.Auction, deps.Logger, deps.TracerProvider, deps.Clock),
		shop:     catalogue,
		random:   random,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		logger:   deps.Logger,
		tracer:   deps.TracerProvider.Tracer("github.com/jensholdgaard/gachabot/internal/game"),
		sessions: make(map[string]*session),
	}
	svc.saver = newSaver(svc.persist, cfg.Saver, deps.Logger, deps.Metrics)
	return svc, nil
}

// Run writes queued saves until ctx is done.
func (svc *Service) Run(ctx context.Context) {
	svc.saver.run(ctx)
}

// PendingSaves reports the number of players waiting to be saved.
func (svc *Service) PendingSaves() int {
	return svc.saver.Len()
}

// Close writes every dirty session. Call it after Run has returned.
func (svc *Service) Close(ctx context.Context) error {
	svc.mu.Lock()
	ids := make([]string, 0, len(svc.sessions))
	for id := range svc.sessions {
		ids = append(ids, id)
	}
	svc.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := svc.persist(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// modifiers reads the global flags. A flag source failure degrades to the
// last known flags.
func (svc *Service) modifiers(ctx context.Context) gacha.Modifiers {
	f, err := svc.flags.Flags(ctx)
	if err != nil {
		svc.logger.DebugContext(ctx, "using fallback event flags", slog.Any("error", err))
	}
	mods := gacha.Modifiers{Now: svc.clock.Now(), Events: f}
	if f.Live {
		mods.EventLuckMultiplier = f.LuckMultiplier
	}
	return mods
}

// DrawOutcome is the result of Draw.
type DrawOutcome struct {
	gacha.DrawResult
	Delta   Delta
	Balance int64
}

// Draw performs one draw for the player.
func (svc *Service) Draw(ctx context.Context, playerID, displayName string) (DrawOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Draw",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	mods := svc.modifiers(ctx)
	s, err := svc.acquire(ctx, playerID, displayName)
	if err != nil {
		return DrawOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if mods.Now.Before(s.nextDraw) {
		return DrawOutcome{}, fmt.Errorf("%s remaining: %w", s.nextDraw.Sub(mods.Now).Round(100*time.Millisecond), economy.ErrCooldown)
	}

	before := s.state.Ledger.Balance()
	res, err := svc.drawer.Draw(ctx, s.state, svc.cfg.DrawCost, mods, svc.random)
	if err != nil {
		return DrawOutcome{}, err
	}
	cooldown := svc.cfg.DrawCooldown
	if res.Fast {
		cooldown /= 2
	}
	s.nextDraw = mods.Now.Add(cooldown)

	out := DrawOutcome{DrawResult: res, Balance: s.state.Ledger.Balance()}
	out.Delta.Coins = out.Balance - before
	out.Delta.ItemsAdded = []economy.Item{res.Item}

	evt, _ := event.New(playerID, event.ItemDrawn, event.ItemData{
		PlayerID: playerID,
		ItemUID:  res.Item.UID,
		Grade:    res.Grade.Key,
		ItemID:   res.Item.ItemID,
		Value:    res.Payout,
	})
	svc.commit(ctx, s, evt)
	svc.metrics.Draw(ctx, res.Grade.Key, res.Stage.String())

	svc.logger.InfoContext(ctx, "item drawn",
		slog.String("player_id", playerID),
		slog.String("grade", res.Grade.Key),
		slog.String("item_id", res.Item.ItemID),
		slog.String("stage", res.Stage.String()),
		slog.Int64("payout", res.Payout),
	)
	return out, nil
}

// FuseOutcome is the result of Fuse.
type FuseOutcome struct {
	fusion.Result
	Delta Delta
}

// Fuse merges the three selected items.
func (svc *Service) Fuse(ctx context.Context, playerID string, indices [fusion.Inputs]int) (FuseOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Fuse",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.IntSlice("indices", indices[:]),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return FuseOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := svc.fuser.Fuse(ctx, s.state, indices, svc.random)
	if err != nil {
		return FuseOutcome{}, err
	}

	sources := make([]string, len(res.Consumed))
	for i, it := range res.Consumed {
		sources[i] = it.UID
	}
	evt, _ := event.New(playerID, event.ItemsFused, event.ItemData{
		PlayerID: playerID,
		ItemUID:  res.Item.UID,
		Grade:    res.Item.Grade,
		ItemID:   res.Item.ItemID,
		Sources:  sources,
	})
	svc.commit(ctx, s, evt)
	svc.metrics.Fusion(ctx, res.Item.Grade)

	return FuseOutcome{
		Result: res,
		Delta: Delta{
			ItemsAdded:   []economy.Item{res.Item},
			ItemsRemoved: res.Consumed,
		},
	}, nil
}

// EnhanceOutcome is the result of Enhance.
type EnhanceOutcome struct {
	enhance.Outcome
	Delta Delta
}

// Enhance attempts to raise the item at index by one level.
func (svc *Service) Enhance(ctx context.Context, playerID string, index int) (EnhanceOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Enhance",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("index", index),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return EnhanceOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := svc.enhancer.Enhance(ctx, s.state, index, svc.random)
	if err != nil {
		return EnhanceOutcome{}, err
	}

	res := EnhanceOutcome{Outcome: out, Delta: Delta{Coins: -out.Cost}}
	result := "failure"
	switch {
	case out.Success:
		result = "success"
	case out.Destroyed:
		result = "destroyed"
		res.Delta.ItemsRemoved = []economy.Item{out.Item}
	}

	success := out.Success
	evt, _ := event.New(playerID, event.ItemEnhanced, event.ItemData{
		PlayerID: playerID,
		ItemUID:  out.Item.UID,
		Grade:    out.Item.Grade,
		ItemID:   out.Item.ItemID,
		Level:    out.NewLevel,
		Success:  &success,
		Value:    out.Cost,
	})
	svc.commit(ctx, s, evt)
	svc.metrics.Enhancement(ctx, result)
	return res, nil
}

// SellOutcome is the result of Sell.
type SellOutcome struct {
	Item  economy.Item
	Value int64
	Delta Delta
}

// Sell removes the item at index and credits its sell value. When
// expectedUID is set the item at index must carry that uid.
func (svc *Service) Sell(ctx context.Context, playerID string, index int, expectedUID string) (SellOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Sell",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("index", index),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return SellOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.state.Inventory.At(index)
	if err != nil {
		return SellOutcome{}, fmt.Errorf("%w: %w", economy.ErrItemNotFound, err)
	}
	if expectedUID != "" && it.UID != expectedUID {
		return SellOutcome{}, fmt.Errorf("item at %d is %s: %w", index, it.UID, economy.ErrItemNotFound)
	}
	if it.Locked {
		return SellOutcome{}, economy.ErrItemLocked
	}
	value := svc.enhancer.SellValue(it)
	if _, err := s.state.Inventory.Remove(index); err != nil {
		return SellOutcome{}, err
	}
	if err := s.state.Ledger.Credit(value, ReasonSell); err != nil {
		return SellOutcome{}, err
	}

	evt, _ := event.New(playerID, event.ItemSold, event.ItemData{
		PlayerID: playerID,
		ItemUID:  it.UID,
		Grade:    it.Grade,
		ItemID:   it.ItemID,
		Level:    it.Level,
		Value:    value,
	})
	svc.commit(ctx, s, evt)

	return SellOutcome{
		Item:  it,
		Value: value,
		Delta: Delta{Coins: value, ItemsRemoved: []economy.Item{it}},
	}, nil
}

// ToggleLock flips the lock flag of the item at index and returns the item.
func (svc *Service) ToggleLock(ctx context.Context, playerID string, index int) (economy.Item, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.ToggleLock",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("index", index),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return economy.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.state.Inventory.At(index)
	if err != nil {
		return economy.Item{}, err
	}
	it.Locked = !it.Locked
	if err := s.state.Inventory.Replace(index, it); err != nil {
		return economy.Item{}, err
	}

	evt, _ := event.New(playerID, event.ItemLockToggled, event.ItemData{
		PlayerID: playerID,
		ItemUID:  it.UID,
		Grade:    it.Grade,
		ItemID:   it.ItemID,
	})
	svc.commit(ctx, s, evt)
	return it, nil
}

// ExpandOutcome is the result of ExpandInventory.
type ExpandOutcome struct {
	Cost     int64
	Capacity int
	Delta    Delta
}

// ExpansionQuote returns the price and resulting capacity of the player's
// next expansion.
func (svc *Service) ExpansionQuote(ctx context.Context, playerID string) (ExpandOutcome, error) {
	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return ExpandOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return svc.quote(s.state)
}

func (svc *Service) quote(state *economy.PlayerState) (ExpandOutcome, error) {
	inv := svc.cfg.Inventory
	capacity := state.Inventory.Capacity()
	if capacity >= inv.MaxCapacity {
		return ExpandOutcome{}, economy.ErrCapacityLimit
	}
	return ExpandOutcome{
		Cost:     economy.ExpansionCost(inv.BaseCost, inv.Growth, state.Stats.Expansions),
		Capacity: min(capacity+inv.ExpansionStep, inv.MaxCapacity),
	}, nil
}

// ExpandInventory buys the next inventory expansion.
func (svc *Service) ExpandInventory(ctx context.Context, playerID string) (ExpandOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.ExpandInventory",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return ExpandOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := svc.quote(s.state)
	if err != nil {
		return ExpandOutcome{}, err
	}
	if !s.state.Ledger.CanAfford(out.Cost) {
		return ExpandOutcome{}, fmt.Errorf("expansion costs %d: %w", out.Cost, economy.ErrInsufficientFunds)
	}
	if err := s.state.Inventory.Expand(out.Capacity); err != nil {
		return ExpandOutcome{}, err
	}
	if err := s.state.Ledger.Debit(out.Cost, ReasonExpansion); err != nil {
		return ExpandOutcome{}, err
	}
	s.state.Stats.Expansions++
	out.Delta.Coins = -out.Cost

	evt, _ := event.New(playerID, event.InventoryExpanded, event.InventoryExpandedData{
		PlayerID: playerID,
		Capacity: out.Capacity,
		Cost:     out.Cost,
	})
	svc.commit(ctx, s, evt)
	return out, nil
}

// GradeOdds is one row of the odds display.
type GradeOdds struct {
	Key     string
	Name    string
	Percent float64
}

// Odds returns the player's current grade distribution without consuming
// any effect.
func (svc *Service) Odds(ctx context.Context, playerID string) ([]GradeOdds, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Odds",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	mods := svc.modifiers(ctx)
	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	dist := svc.drawer.Resolver().Distribution(s.state, mods)
	s.mu.Unlock()

	out := make([]GradeOdds, len(dist))
	for i, g := range svc.table.Grades {
		out[i] = GradeOdds{Key: g.Key, Name: g.Name, Percent: dist[i]}
	}
	return out, nil
}

// Profile is a read-only snapshot of a player.
type Profile struct {
	economy.Document
	Effects      economy.Effects
	NextDraw     time.Time
	PendingSave  bool
	ActiveEvents []string
}

// Profile returns the player's current state.
func (svc *Service) Profile(ctx context.Context, playerID, displayName string) (Profile, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Profile",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	mods := svc.modifiers(ctx)
	s, err := svc.acquire(ctx, playerID, displayName)
	if err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Profile{
		Document:    s.state.Document(),
		Effects:     economy.Effects{},
		NextDraw:    s.nextDraw,
		PendingSave: s.dirty(),
	}
	for k, n := range s.state.Effects {
		p.Effects[k] = n
	}
	if f, ok := mods.Events.(eventflags.Flags); ok {
		p.ActiveEvents = f.ActiveEvents(mods.Now)
	}
	return p, nil
}

// GrantCoins credits coins to a player. Used by administrators.
func (svc *Service) GrantCoins(ctx context.Context, playerID string, amount int64) (int64, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.GrantCoins",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return 0, economy.ErrInvalidAmount
	}
	if err := s.state.Ledger.Credit(amount, ReasonGrant); err != nil {
		return 0, err
	}
	svc.commit(ctx, s)
	return s.state.Ledger.Balance(), nil
}

// GrantEffect adds n charges of an effect to a player. Used by
// administrators and promotions.
func (svc *Service) GrantEffect(ctx context.Context, playerID string, kind economy.EffectKind, n int) (int, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.GrantEffect",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("effect", kind.String()),
			attribute.Int("count", n),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.Effects.Grant(kind, n); err != nil {
		return 0, err
	}
	total := s.state.Effects.Remaining(kind)
	evt, _ := event.New(playerID, event.EffectGranted, event.EffectData{
		PlayerID: playerID,
		Effect:   kind.String(),
		Count:    n,
		Total:    total,
	})
	svc.commit(ctx, s, evt)
	return total, nil
}
