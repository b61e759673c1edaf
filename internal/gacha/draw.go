package gacha

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/rng"
)

// Ledger reasons written by draws.
const (
	ReasonDrawCost   = "draw_cost"
	ReasonDrawPayout = "draw_payout"
)

// DrawResult describes one completed draw.
type DrawResult struct {
	Item     economy.Item
	Grade    grade.Grade
	ItemName string
	Stage    Stage
	Consumed []economy.EffectKind
	Cost     int64
	Payout   int64
	// Fast is set when a speed boost was spent on this draw.
	Fast bool
}

// Drawer runs the full draw pipeline against a player state.
type Drawer struct {
	table     *grade.Table
	resolver  *Resolver
	mutations *MutationResolver
	tracer    trace.Tracer
}

// NewDrawer returns a Drawer over table.
func NewDrawer(table *grade.Table, logger *slog.Logger, tp trace.TracerProvider) *Drawer {
	return &Drawer{
		table:     table,
		resolver:  NewResolver(table, logger),
		mutations: NewMutationResolver(table),
		tracer:    tp.Tracer("github.com/jensholdgaard/gachabot/internal/gacha"),
	}
}

// Resolver exposes the grade resolver, used for odds display.
func (d *Drawer) Resolver() *Resolver { return d.resolver }

// Draw debits cost, resolves a grade, item and mutations, credits the
// payout and stores the item. A full inventory is rejected before any
// effect is spent.
func (d *Drawer) Draw(ctx context.Context, state *economy.PlayerState, cost int64, mods Modifiers, src rng.Source) (DrawResult, error) {
	_, span := d.tracer.Start(ctx, "Drawer.Draw",
		trace.WithAttributes(
			attribute.String("player_id", state.ID),
			attribute.Int64("cost", cost),
		),
	)
	defer span.End()

	if cost < 0 {
		return DrawResult{}, economy.ErrInvalidAmount
	}
	if !state.Ledger.CanAfford(cost) {
		return DrawResult{}, fmt.Errorf("draw cost %d: %w", cost, economy.ErrInsufficientFunds)
	}
	if state.Inventory.Free() < 1 {
		return DrawResult{}, fmt.Errorf("%d/%d slots used: %w", state.Inventory.Len(), state.Inventory.Capacity(), economy.ErrInventoryFull)
	}

	res := d.resolver.Resolve(state, mods, src)
	consumed := res.Consumed
	boosted := state.Effects.Consume(economy.EffectCoinBoost)
	if boosted {
		consumed = append(consumed, economy.EffectCoinBoost)
	}
	fast := state.Effects.Consume(economy.EffectSpeedBoost)
	if fast {
		consumed = append(consumed, economy.EffectSpeedBoost)
	}

	pick, err := d.table.PickItem(res.Grade.Key, src)
	if err != nil {
		return DrawResult{}, err
	}
	set := d.mutations.Resolve(res.Grade, mods, state, src)
	item := economy.NewItem(res.Grade.Key, pick.ID, set)
	payout := Payout(d.table, res.Grade, set, boosted)

	if err := state.Ledger.Debit(cost, ReasonDrawCost); err != nil {
		return DrawResult{}, err
	}
	if err := state.Ledger.Credit(payout, ReasonDrawPayout); err != nil {
		return DrawResult{}, err
	}
	if err := state.Inventory.Insert(item); err != nil {
		return DrawResult{}, err
	}
	state.RecordDraw(res.Grade.Key, pick.ID)

	span.SetAttributes(
		attribute.String("grade", res.Grade.Key),
		attribute.String("stage", res.Stage.String()),
		attribute.Int64("payout", payout),
	)
	return DrawResult{
		Item:     item,
		Grade:    res.Grade,
		ItemName: pick.Name,
		Stage:    res.Stage,
		Consumed: consumed,
		Cost:     cost,
		Payout:   payout,
		Fast:     fast,
	}, nil
}
