// Package enhance implements the item enhancement ladder: pay, roll, and
// either level up, stay, or lose the item.
package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/rng"
)

// ReasonEnhance is the ledger reason for enhancement costs.
const ReasonEnhance = "enhance"

// Level is the attempt to go from one level to the next.
type Level struct {
	SuccessChance float64
	Cost          int64
	DestroyOnFail bool
}

// Outcome describes one enhancement attempt.
type Outcome struct {
	Success   bool
	NewLevel  int
	Destroyed bool
	Cost      int64
	Item      economy.Item
}

// Engine runs enhancement attempts and prices items for sale.
type Engine struct {
	table         *grade.Table
	ladder        []Level
	perLevelBonus float64
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewEngine builds the ladder from cfg.
func NewEngine(cfg config.EnhancementConfig, table *grade.Table, logger *slog.Logger, tp trace.TracerProvider) (*Engine, error) {
	ladder := Ladder(cfg)
	if len(ladder) == 0 {
		return nil, fmt.Errorf("enhancement ladder is empty")
	}
	return &Engine{
		table:         table,
		ladder:        ladder,
		perLevelBonus: cfg.PerLevelBonus,
		logger:        logger,
		tracer:        tp.Tracer("github.com/jensholdgaard/gachabot/internal/enhance"),
	}, nil
}

// Ladder returns the explicit levels of cfg, or generates them: cost grows
// geometrically, chance falls linearly to a floor, and failures destroy the
// item from DestroyFromLevel on.
func Ladder(cfg config.EnhancementConfig) []Level {
	if len(cfg.Levels) > 0 {
		out := make([]Level, len(cfg.Levels))
		for i, l := range cfg.Levels {
			out[i] = Level{SuccessChance: l.SuccessChance, Cost: l.Cost, DestroyOnFail: l.DestroyOnFail}
		}
		return out
	}
	out := make([]Level, cfg.MaxLevel)
	growth := decimal.NewFromFloat(cfg.CostGrowth)
	for i := range out {
		cost := decimal.NewFromInt(cfg.BaseCost).Mul(growth.Pow(decimal.NewFromInt(int64(i))))
		out[i] = Level{
			SuccessChance: math.Max(cfg.MinChance, cfg.BaseChance-cfg.ChanceDecay*float64(i)),
			Cost:          cost.Floor().IntPart(),
			DestroyOnFail: cfg.DestroyFromLevel > 0 && i >= cfg.DestroyFromLevel,
		}
	}
	return out
}

// MaxLevel is the highest reachable level.
func (e *Engine) MaxLevel() int { return len(e.ladder) }

// Level returns the attempt from level to level+1.
func (e *Engine) Level(level int) (Level, bool) {
	if level < 0 || level >= len(e.ladder) {
		return Level{}, false
	}
	return e.ladder[level], true
}

// Enhance attempts to raise the item at index by one level. The cost is
// debited before the roll and is not refunded.
func (e *Engine) Enhance(ctx context.Context, state *economy.PlayerState, index int, src rng.Source) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Enhance",
		trace.WithAttributes(
			attribute.String("player_id", state.ID),
			attribute.Int("index", index),
		),
	)
	defer span.End()

	it, err := state.Inventory.At(index)
	if err != nil {
		return Outcome{}, err
	}
	if it.Locked {
		return Outcome{}, economy.ErrItemLocked
	}
	lvl, ok := e.Level(it.Level)
	if !ok {
		return Outcome{}, fmt.Errorf("level %d: %w", it.Level, economy.ErrMaxLevel)
	}
	if err := state.Ledger.Debit(lvl.Cost, ReasonEnhance); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Cost: lvl.Cost, NewLevel: it.Level}
	switch {
	case rng.Percent(src) < lvl.SuccessChance:
		it.Level++
		out.Success = true
		out.NewLevel = it.Level
		if err := state.Inventory.Replace(index, it); err != nil {
			return Outcome{}, err
		}
	case lvl.DestroyOnFail:
		if _, err := state.Inventory.Remove(index); err != nil {
			return Outcome{}, err
		}
		out.Destroyed = true
	}
	out.Item = it

	span.SetAttributes(
		attribute.Bool("success", out.Success),
		attribute.Bool("destroyed", out.Destroyed),
	)
	e.logger.DebugContext(ctx, "enhancement attempted",
		slog.String("player_id", state.ID),
		slog.String("item_uid", it.UID),
		slog.Int("level", out.NewLevel),
		slog.Bool("success", out.Success),
		slog.Bool("destroyed", out.Destroyed),
	)
	return out, nil
}

// SellValue is floor(coinValue × Π mutation multipliers × (1 + level × bonus)).
func (e *Engine) SellValue(it economy.Item) int64 {
	g, ok := e.table.Lookup(it.Grade)
	if !ok {
		return 0
	}
	factors := []float64{1 + float64(it.Level)*e.perLevelBonus}
	for _, k := range it.Mutations.Kinds() {
		if m, ok := e.table.Mutation(k); ok {
			factors = append(factors, m.Multiplier)
		}
	}
	return economy.ScaleValue(g.CoinValue, factors...)
}
