package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/rng"
)

// Inputs is the number of items consumed by one fusion.
const Inputs = 3

// Result describes a completed fusion.
type Result struct {
	Consumed []economy.Item
	Item     economy.Item
	ItemName string
}

// Engine merges same-grade items into one item of the next ladder grade.
type Engine struct {
	table  *grade.Table
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEngine returns a fusion Engine over table.
func NewEngine(table *grade.Table, logger *slog.Logger, tp trace.TracerProvider) *Engine {
	return &Engine{
		table:  table,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/gachabot/internal/fusion"),
	}
}

// Check validates a selection without touching the state and returns the
// grade it would produce.
func (e *Engine) Check(state *economy.PlayerState, indices [Inputs]int) (string, error) {
	var key string
	seen := make(map[int]bool, Inputs)
	for _, i := range indices {
		if seen[i] {
			return "", fmt.Errorf("index %d selected twice: %w", i, economy.ErrNotFusable)
		}
		seen[i] = true
		it, err := state.Inventory.At(i)
		if err != nil {
			return "", fmt.Errorf("%w: %w", economy.ErrNotFusable, err)
		}
		if it.Locked {
			return "", fmt.Errorf("item %d is locked: %w", i, economy.ErrNotFusable)
		}
		if key == "" {
			key = it.Grade
		} else if it.Grade != key {
			return "", fmt.Errorf("mixed grades %s and %s: %w", key, it.Grade, economy.ErrNotFusable)
		}
	}
	next, ok := e.table.NextFusion(key)
	if !ok {
		return "", fmt.Errorf("grade %s cannot be fused further: %w", key, economy.ErrNotFusable)
	}
	return next, nil
}

// Fuse consumes the three selected items and inserts a fresh, unmutated
// item of the next ladder grade. A rejected selection leaves the state as
// it was.
func (e *Engine) Fuse(ctx context.Context, state *economy.PlayerState, indices [Inputs]int, src rng.Source) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Fuse",
		trace.WithAttributes(attribute.String("player_id", state.ID)),
	)
	defer span.End()

	next, err := e.Check(state, indices)
	if err != nil {
		return Result{}, err
	}
	pick, err := e.table.PickItem(next, src)
	if err != nil {
		return Result{}, err
	}

	order := indices[:]
	sort.Sort(sort.Reverse(sort.IntSlice(order)))
	consumed := make([]economy.Item, 0, Inputs)
	for _, i := range order {
		it, err := state.Inventory.Remove(i)
		if err != nil {
			return Result{}, err
		}
		consumed = append(consumed, it)
	}

	item := economy.NewItem(next, pick.ID, 0)
	if err := state.Inventory.Insert(item); err != nil {
		return Result{}, err
	}
	state.MarkCollected(pick.ID)

	span.SetAttributes(attribute.String("grade", next))
	e.logger.InfoContext(ctx, "items fused",
		slog.String("player_id", state.ID),
		slog.String("from", consumed[0].Grade),
		slog.String("to", next),
	)
	return Result{Consumed: consumed, Item: item, ItemName: pick.Name}, nil
}
