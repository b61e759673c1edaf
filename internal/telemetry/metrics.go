package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jensholdgaard/gachabot"

// Metrics are the economy counters. A nil *Metrics records nothing.
type Metrics struct {
	draws         metric.Int64Counter
	coinsCredited metric.Int64Counter
	coinsDebited  metric.Int64Counter
	fusions       metric.Int64Counter
	enhancements  metric.Int64Counter
	trades        metric.Int64Counter
	purchases     metric.Int64Counter
	fees          metric.Int64Counter
	saveFailures  metric.Int64Counter
	saveQueue     metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var (
		out Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&out.draws, "gacha.draws", "Resolved draws by grade and stage.", "{draw}"},
		{&out.coinsCredited, "gacha.coins.credited", "Coins credited to players.", "{coin}"},
		{&out.coinsDebited, "gacha.coins.debited", "Coins debited from players.", "{coin}"},
		{&out.fusions, "gacha.fusions", "Fusions by output grade.", "{fusion}"},
		{&out.enhancements, "gacha.enhancements", "Enhancement attempts by outcome.", "{attempt}"},
		{&out.trades, "gacha.auction.trades", "Completed auction purchases.", "{trade}"},
		{&out.fees, "gacha.auction.fees", "Coins removed by the auction fee.", "{coin}"},
		{&out.purchases, "gacha.shop.purchases", "Shop purchases by product.", "{purchase}"},
		{&out.saveFailures, "gacha.save.failures", "Failed player saves.", "{failure}"},
	}
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("creating counter %s: %w", c.name, err)
		}
	}
	out.saveQueue, err = m.Int64UpDownCounter("gacha.save.queue",
		metric.WithDescription("Player saves waiting to be written."),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating counter gacha.save.queue: %w", err)
	}
	return &out, nil
}

// Draw counts one draw.
func (m *Metrics) Draw(ctx context.Context, grade, stage string) {
	if m == nil {
		return
	}
	m.draws.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grade", grade),
		attribute.String("stage", stage),
	))
}

// Coins records a signed ledger movement.
func (m *Metrics) Coins(ctx context.Context, amount int64, reason string) {
	if m == nil || amount == 0 {
		return
	}
	opt := metric.WithAttributes(attribute.String("reason", reason))
	if amount > 0 {
		m.coinsCredited.Add(ctx, amount, opt)
		return
	}
	m.coinsDebited.Add(ctx, -amount, opt)
}

// Fusion counts one fusion producing grade.
func (m *Metrics) Fusion(ctx context.Context, grade string) {
	if m == nil {
		return
	}
	m.fusions.Add(ctx, 1, metric.WithAttributes(attribute.String("grade", grade)))
}

// Enhancement counts one attempt with its outcome.
func (m *Metrics) Enhancement(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.enhancements.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Trade counts one auction purchase and its fee.
func (m *Metrics) Trade(ctx context.Context, fee int64) {
	if m == nil {
		return
	}
	m.trades.Add(ctx, 1)
	m.fees.Add(ctx, fee)
}

// Purchase counts one shop purchase of product.
func (m *Metrics) Purchase(ctx context.Context, product string) {
	if m == nil {
		return
	}
	m.purchases.Add(ctx, 1, metric.WithAttributes(attribute.String("product", product)))
}

// SaveFailed counts one failed save attempt.
func (m *Metrics) SaveFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.saveFailures.Add(ctx, 1)
}

// SaveQueued moves the save queue gauge by delta.
func (m *Metrics) SaveQueued(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.saveQueue.Add(ctx, delta)
}
