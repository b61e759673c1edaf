package game

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/auction"
	"github.com/jensholdgaard/gachabot/internal/economy"
)

const sweepBatch = 100

// ListingOutcome is the result of the market operations.
type ListingOutcome struct {
	Listing economy.Listing
	Fee     int64
	Delta   Delta
}

// trade runs op with the given sessions locked and flushed, then adopts the
// committed documents of every cached session it touched.
func (svc *Service) trade(ctx context.Context, op func() (auction.Receipt, error), sessions ...*session) (auction.Receipt, error) {
	unlock := lockAll(sessions...)
	defer unlock()

	for _, s := range sessions {
		if err := svc.flushLocked(ctx, s); err != nil {
			return auction.Receipt{}, err
		}
	}
	rec, err := op()
	if err != nil {
		return auction.Receipt{}, err
	}
	for _, s := range sessions {
		if doc, ok := rec.Players[s.id]; ok {
			svc.adopt(ctx, s, doc)
		}
	}
	return rec, nil
}

// ListItem moves an inventory item to the market.
func (svc *Service) ListItem(ctx context.Context, playerID string, index int, expectedUID string, price int64) (ListingOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.ListItem",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("index", index),
			attribute.Int64("price", price),
		),
	)
	defer span.End()

	if price <= 0 {
		return ListingOutcome{}, economy.ErrInvalidPrice
	}
	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return ListingOutcome{}, err
	}
	rec, err := svc.trade(ctx, func() (auction.Receipt, error) {
		return svc.house.List(ctx, playerID, index, expectedUID, price)
	}, s)
	if err != nil {
		return ListingOutcome{}, err
	}
	return ListingOutcome{
		Listing: rec.Listing,
		Delta:   Delta{ItemsRemoved: []economy.Item{rec.Listing.Item}},
	}, nil
}

// BuyListing buys a listing for the player.
func (svc *Service) BuyListing(ctx context.Context, playerID, displayName, listingID string) (ListingOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.BuyListing",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("listing_id", listingID),
		),
	)
	defer span.End()

	l, err := svc.house.Get(ctx, listingID)
	if errors.Is(err, economy.ErrNotFound) {
		return ListingOutcome{}, economy.ErrListingGone
	}
	if err != nil {
		return ListingOutcome{}, err
	}
	buyer, err := svc.acquire(ctx, playerID, displayName)
	if err != nil {
		return ListingOutcome{}, err
	}
	// The seller is loaded too so no session of theirs can go stale behind
	// the transaction.
	seller, err := svc.acquire(ctx, l.SellerID, l.SellerName)
	if err != nil {
		return ListingOutcome{}, err
	}

	rec, err := svc.trade(ctx, func() (auction.Receipt, error) {
		return svc.house.Buy(ctx, playerID, listingID)
	}, buyer, seller)
	if err != nil {
		return ListingOutcome{}, err
	}

	svc.metrics.Trade(ctx, rec.Fee)
	svc.metrics.Coins(ctx, -rec.Listing.Price, auction.ReasonPurchase)
	svc.metrics.Coins(ctx, rec.Proceeds, auction.ReasonSale)
	return ListingOutcome{
		Listing: rec.Listing,
		Fee:     rec.Fee,
		Delta: Delta{
			Coins:      -rec.Listing.Price,
			ItemsAdded: []economy.Item{rec.Listing.Item},
		},
	}, nil
}

// CancelListing returns one of the player's listings to their inventory.
func (svc *Service) CancelListing(ctx context.Context, playerID, listingID string) (ListingOutcome, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.CancelListing",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("listing_id", listingID),
		),
	)
	defer span.End()

	s, err := svc.acquire(ctx, playerID, "")
	if err != nil {
		return ListingOutcome{}, err
	}
	rec, err := svc.trade(ctx, func() (auction.Receipt, error) {
		return svc.house.Cancel(ctx, playerID, listingID)
	}, s)
	if err != nil {
		return ListingOutcome{}, err
	}
	return ListingOutcome{
		Listing: rec.Listing,
		Delta:   Delta{ItemsAdded: []economy.Item{rec.Listing.Item}},
	}, nil
}

// Market returns active listings, newest first.
func (svc *Service) Market(ctx context.Context, limit int) ([]economy.Listing, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Market")
	defer span.End()
	return svc.house.Browse(ctx, limit)
}

// MyListings returns every listing of the player, expired ones included.
func (svc *Service) MyListings(ctx context.Context, playerID string) ([]economy.Listing, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.MyListings",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()
	return svc.house.BySeller(ctx, playerID)
}

// Sweep returns expired listings to their sellers. Listings whose seller has
// no room stay for a later sweep.
func (svc *Service) Sweep(ctx context.Context) (int, error) {
	ctx, span := svc.tracer.Start(ctx, "Service.Sweep")
	defer span.End()

	due, err := svc.house.Expired(ctx, sweepBatch)
	if err != nil {
		return 0, err
	}
	var (
		returned int
		errs     []error
	)
	for _, l := range due {
		seller, err := svc.acquire(ctx, l.SellerID, l.SellerName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		expired := false
		_, err = svc.trade(ctx, func() (auction.Receipt, error) {
			rec, ok, err := svc.house.Expire(ctx, l.ID)
			expired = ok
			return rec, err
		}, seller)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if expired {
			returned++
		}
	}
	span.SetAttributes(
		attribute.Int("due", len(due)),
		attribute.Int("returned", returned),
	)
	return returned, errors.Join(errs...)
}

// RunSweeper sweeps every interval until ctx is done.
func (svc *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.Sweep(ctx)
			if err != nil {
				svc.logger.ErrorContext(ctx, "listing sweep failed", slog.Any("error", err))
			}
			if n > 0 {
				svc.logger.InfoContext(ctx, "expired listings returned", slog.Int("count", n))
			}
		}
	}
}
