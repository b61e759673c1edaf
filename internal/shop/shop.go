// Package shop sells effect packs and permanent luck levels for coins.
package shop

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/grade"
)

// Ledger reasons written by the shop.
const (
	ReasonEffect = "shop_effect"
	ReasonLuck   = "shop_luck"
)

// ProductLuck names permanent luck in purchases and metrics.
const ProductLuck = "permanentLuck"

// MaxPacks bounds the packs bought in one purchase.
const MaxPacks = 100

// Offer is one effect pack for sale.
type Offer struct {
	Effect economy.EffectKind
	Uses   int
	Price  int64
}

// Purchase describes a completed purchase. For permanent luck Effect is zero
// and Total is the new level.
type Purchase struct {
	Product string
	Effect  economy.EffectKind
	Uses    int
	Total   int
	Cost    int64
}

// Shop prices and applies purchases. It holds no player state.
type Shop struct {
	offers     []Offer
	luckBase   int64
	luckGrowth float64
	maxLuck    int
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New builds the catalogue from cfg. Luck levels stop at the grade table's
// luck.max_level.
func New(cfg config.ShopConfig, table *grade.Table, logger *slog.Logger, tp trace.TracerProvider) (*Shop, error) {
	s := &Shop{
		luckBase:   cfg.LuckBaseCost,
		luckGrowth: cfg.LuckGrowth,
		maxLuck:    table.Luck.MaxLevel,
		logger:     logger,
		tracer:     tp.Tracer("github.com/jensholdgaard/gachabot/internal/shop"),
	}
	seen := make(map[economy.EffectKind]bool, len(cfg.Offers))
	for _, o := range cfg.Offers {
		kind, err := economy.ParseEffectKind(o.Effect)
		if err != nil {
			return nil, fmt.Errorf("shop offer: %w", err)
		}
		if seen[kind] {
			return nil, fmt.Errorf("shop offer %s listed twice", kind)
		}
		seen[kind] = true
		s.offers = append(s.offers, Offer{Effect: kind, Uses: o.Uses, Price: o.Price})
	}
	return s, nil
}

// Offers lists the effect packs in catalogue order.
func (s *Shop) Offers() []Offer {
	return append([]Offer(nil), s.offers...)
}

// Offer returns the pack selling kind.
func (s *Shop) Offer(kind economy.EffectKind) (Offer, bool) {
	for _, o := range s.offers {
		if o.Effect == kind {
			return o, true
		}
	}
	return Offer{}, false
}

// MaxLuck is the highest permanent luck level that can be bought.
func (s *Shop) MaxLuck() int { return s.maxLuck }

// LuckPrice is the price of raising permanent luck from level to level+1.
func (s *Shop) LuckPrice(level int) (int64, error) {
	if level >= s.maxLuck {
		return 0, fmt.Errorf("level %d of %d: %w", level, s.maxLuck, economy.ErrMaxLuckLevel)
	}
	return economy.GeometricCost(s.luckBase, s.luckGrowth, level), nil
}

// BuyEffect sells packs of kind. A rejected purchase leaves the state as it
// was.
func (s *Shop) BuyEffect(ctx context.Context, state *economy.PlayerState, kind economy.EffectKind, packs int) (Purchase, error) {
	ctx, span := s.tracer.Start(ctx, "Shop.BuyEffect",
		trace.WithAttributes(
			attribute.String("player_id", state.ID),
			attribute.String("effect", kind.String()),
			attribute.Int("packs", packs),
		),
	)
	defer span.End()

	if packs <= 0 || packs > MaxPacks {
		return Purchase{}, fmt.Errorf("%d packs: %w", packs, economy.ErrInvalidAmount)
	}
	offer, ok := s.Offer(kind)
	if !ok {
		return Purchase{}, fmt.Errorf("%s: %w", kind, economy.ErrNotForSale)
	}
	if offer.Price > math.MaxInt64/int64(packs) {
		return Purchase{}, fmt.Errorf("%d packs: %w", packs, economy.ErrInvalidAmount)
	}
	cost := offer.Price * int64(packs)
	if !state.Ledger.CanAfford(cost) {
		return Purchase{}, fmt.Errorf("%d × %s costs %d: %w", packs, kind, cost, economy.ErrInsufficientFunds)
	}

	uses := offer.Uses * packs
	if err := state.Ledger.Debit(cost, ReasonEffect); err != nil {
		return Purchase{}, err
	}
	if err := state.Effects.Grant(kind, uses); err != nil {
		return Purchase{}, err
	}

	s.logger.InfoContext(ctx, "effect bought",
		slog.String("player_id", state.ID),
		slog.String("effect", kind.String()),
		slog.Int("uses", uses),
		slog.Int64("cost", cost),
	)
	return Purchase{
		Product: kind.String(),
		Effect:  kind,
		Uses:    uses,
		Total:   state.Effects.Remaining(kind),
		Cost:    cost,
	}, nil
}

// BuyLuckLevel raises the player's permanent luck by one level.
func (s *Shop) BuyLuckLevel(ctx context.Context, state *economy.PlayerState) (Purchase, error) {
	ctx, span := s.tracer.Start(ctx, "Shop.BuyLuckLevel",
		trace.WithAttributes(
			attribute.String("player_id", state.ID),
			attribute.Int("level", state.PermanentLuck),
		),
	)
	defer span.End()

	cost, err := s.LuckPrice(state.PermanentLuck)
	if err != nil {
		return Purchase{}, err
	}
	if err := state.Ledger.Debit(cost, ReasonLuck); err != nil {
		return Purchase{}, fmt.Errorf("luck level %d costs %d: %w", state.PermanentLuck+1, cost, err)
	}
	state.PermanentLuck++

	s.logger.InfoContext(ctx, "luck level bought",
		slog.String("player_id", state.ID),
		slog.Int("level", state.PermanentLuck),
		slog.Int64("cost", cost),
	)
	return Purchase{
		Product: ProductLuck,
		Total:   state.PermanentLuck,
		Cost:    cost,
	}, nil
}
