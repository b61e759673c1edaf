package game

import (
	"context"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
	"github.com/jensholdgaard/gachabot/internal/shop"
)

// ShopOutcome is the result of BuyEffect and BuyLuckLevel.
type ShopOutcome struct {
	shop.Purchase
	Delta   Delta
	Balance int64
}

// ShopView is the catalogue as one player sees it. NextLuckPrice is zero
// once LuckLevel reaches MaxLuckLevel.
type ShopView struct {
	Offers        []shop.Offer
	LuckLevel     int
	MaxLuckLevel  int
	NextLuckPrice int64
	Balance       int64
}

// ShopCatalogue returns the offers and the player's next luck level price.
func (svc *Service) ShopCatalogue(ctx context.Context, playerID string) (ShopView, error) {
	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return ShopView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := ShopView{
		Offers:       svc.shop.Offers(),
		LuckLevel:    s.state.PermanentLuck,
		MaxLuckLevel: svc.shop.MaxLuck(),
		Balance:      s.state.Ledger.Balance(),
	}
	if price, err := svc.shop.LuckPrice(s.state.PermanentLuck); err == nil {
		v.NextLuckPrice = price
	}
	return v, nil
}

// BuyEffect buys packs of the effect pack selling kind.
func (svc *Service) BuyEffect(ctx context.Context, playerID string, kind economy.EffectKind, packs int) (ShopOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.BuyEffect",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("effect", kind.String()),
			attribute.Int("packs", packs),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return ShopOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := svc.shop.BuyEffect(ctx, s.state, kind, packs)
	if err != nil {
		return ShopOutcome{}, err
	}
	svc.recordPurchase(ctx, s, event.EffectPurchased, p)
	return ShopOutcome{Purchase: p, Delta: Delta{Coins: -p.Cost}, Balance: s.state.Ledger.Balance()}, nil
}

// BuyLuckLevel raises the player's permanent luck by one level.
func (svc *Service) BuyLuckLevel(ctx context.Context, playerID string) (ShopOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.BuyLuckLevel",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return ShopOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := svc.shop.BuyLuckLevel(ctx, s.state)
	if err != nil {
		return ShopOutcome{}, err
	}
	svc.recordPurchase(ctx, s, event.LuckPurchased, p)
	return ShopOutcome{Purchase: p, Delta: Delta{Coins: -p.Cost}, Balance: s.state.Ledger.Balance()}, nil
}

func (svc *Service) recordPurchase(ctx context.Context, s *session, typ event.Type, p shop.Purchase) {
	evt, _ := event.New(s.state.ID, typ, event.PurchaseData{
		PlayerID: s.state.ID,
		Product:  p.Product,
		Uses:     p.Uses,
		Total:    p.Total,
		Cost:     p.Cost,
	})
	svc.commit(ctx, s, evt)
	svc.metrics.Purchase(ctx, p.Product)
}

// SetCustomProbabilities replaces the player's grade distribution. The map
// must name known grades and sum to 100; grades it omits get zero. A nil or
// empty map clears the override. Used by administrators.
func (svc *Service) SetCustomProbabilities(ctx context.Context, playerID string, probs map[string]float64) error {
	ctx, span := svc.tracer.Start(ctx, "Service.SetCustomProbabilities",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("grades", len(probs)),
		),
	)
	defer span.End()

	if len(probs) > 0 {
		if err := svc.table.CheckDistribution(probs); err != nil {
			return err
		}
	}

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var override map[string]float64
	if len(probs) > 0 {
		override = maps.Clone(probs)
	}
	s.state.CustomProbabilities = override

	evt, _ := event.New(playerID, event.ProbabilitiesOverridden, event.ProbabilityData{
		PlayerID:      playerID,
		Probabilities: override,
	})
	svc.commit(ctx, s, evt)
	svc.logger.InfoContext(ctx, "grade probabilities overridden",
		slog.String("player_id", playerID),
		slog.Bool("cleared", override == nil),
	)
	return nil
}
