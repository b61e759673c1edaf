// Package auction implements the player-to-player market. Every operation
// runs inside one store transaction covering the listing and all players it
// touches.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
	"github.com/jensholdgaard/gachabot/internal/store"
)

// Ledger reasons written by the market.
const (
	ReasonPurchase = "auction_purchase"
	ReasonSale     = "auction_sale"
)

// errKeep aborts an expiry whose seller has no room for the item.
var errKeep = errors.New("seller inventory full, listing kept")

// Receipt is the committed result of a market operation. Players holds the
// documents as written, keyed by player id.
type Receipt struct {
	Listing  economy.Listing
	Players  map[string]economy.Document
	Proceeds int64
	Fee      int64
}

// House runs listings, purchases, cancellations and expiry.
type House struct {
	tx       store.Transactor
	listings store.ListingRepository
	cfg      config.AuctionConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewHouse creates a new auction House.
func NewHouse(tx store.Transactor, listings store.ListingRepository, cfg config.AuctionConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *House {
	return &House{
		tx:       tx,
		listings: listings,
		cfg:      cfg,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/gachabot/internal/auction"),
		clock:    clk,
	}
}

func lockOne(ctx context.Context, tx store.Tx, id string) (*economy.PlayerState, error) {
	docs, err := tx.LockPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	return economy.StateFromDocument(docs[id])
}

func put(ctx context.Context, tx store.Tx, out map[string]economy.Document, states ...*economy.PlayerState) error {
	var events []event.Event
	for _, s := range states {
		doc, err := tx.PutPlayer(ctx, s.Document())
		if err != nil {
			return err
		}
		out[s.ID] = doc
		events = append(events, event.FromDeltas(s.ID, s.Ledger.PendingDeltas())...)
	}
	return tx.AppendEvents(ctx, events...)
}

func listingEvent(aggregate string, typ event.Type, l economy.Listing, buyer string, fee int64) event.Event {
	e, _ := event.New(aggregate, typ, event.ListingData{
		ListingID: l.ID,
		SellerID:  l.SellerID,
		BuyerID:   buyer,
		ItemUID:   l.Item.UID,
		Price:     l.Price,
		Fee:       fee,
	})
	return e
}

// List moves the item at index out of the seller's inventory into a new
// listing. When expectedUID is set the item at index must carry that uid.
func (h *House) List(ctx context.Context, sellerID string, index int, expectedUID string, price int64) (Receipt, error) {
	ctx, span := h.tracer.Start(ctx, "House.List",
		trace.WithAttributes(
			attribute.String("seller_id", sellerID),
			attribute.Int("index", index),
			attribute.Int64("price", price),
		),
	)
	defer span.End()

	if price <= 0 {
		return Receipt{}, economy.ErrInvalidPrice
	}

	var rec Receipt
	err := h.tx.RunAtomic(ctx, func(ctx context.Context, tx store.Tx) error {
		rec = Receipt{Players: make(map[string]economy.Document, 1)}
		seller, err := lockOne(ctx, tx, sellerID)
		if err != nil {
			return err
		}
		it, err := seller.Inventory.At(index)
		if err != nil {
			return fmt.Errorf("%w: %w", economy.ErrItemNotFound, err)
		}
		if expectedUID != "" && it.UID != expectedUID {
			return fmt.Errorf("item at %d is %s, not %s: %w", index, it.UID, expectedUID, economy.ErrItemNotFound)
		}
		if it.Locked {
			return economy.ErrItemLocked
		}
		now := h.clock.Now()
		n, err := tx.CountActiveListings(ctx, sellerID, now)
		if err != nil {
			return err
		}
		if n >= h.cfg.MaxListings {
			return fmt.Errorf("%d of %d: %w", n, h.cfg.MaxListings, economy.ErrTooManyListings)
		}

		if _, err := seller.Inventory.Remove(index); err != nil {
			return err
		}
		rec.Listing = economy.Listing{
			ID:         uuid.NewString(),
			SellerID:   seller.ID,
			SellerName: seller.DisplayName,
			Item:       it,
			Price:      price,
			CreatedAt:  now,
			ExpiresAt:  now.Add(h.cfg.Duration),
		}
		if err := tx.InsertListing(ctx, rec.Listing); err != nil {
			return err
		}
		if err := put(ctx, tx, rec.Players, seller); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, listingEvent(seller.ID, event.ListingCreated, rec.Listing, "", 0))
	})
	if err != nil {
		return Receipt{}, err
	}

	h.logger.InfoContext(ctx, "item listed",
		slog.String("listing_id", rec.Listing.ID),
		slog.String("seller_id", sellerID),
		slog.Int64("price", price),
	)
	return rec, nil
}

// Buy transfers a listing's item to the buyer, the price from the buyer and
// the price less the fee to the seller. Nothing changes unless every step
// succeeds.
func (h *House) Buy(ctx context.Context, buyerID, listingID string) (Receipt, error) {
	ctx, span := h.tracer.Start(ctx, "House.Buy",
		trace.WithAttributes(
			attribute.String("buyer_id", buyerID),
			attribute.String("listing_id", listingID),
		),
	)
	defer span.End()

	var rec Receipt
	err := h.tx.RunAtomic(ctx, func(ctx context.Context, tx store.Tx) error {
		rec = Receipt{Players: make(map[string]economy.Document, 2)}
		l, err := tx.LockListing(ctx, listingID)
		if errors.Is(err, economy.ErrNotFound) {
			return economy.ErrListingGone
		}
		if err != nil {
			return err
		}
		if l.Expired(h.clock.Now()) {
			return fmt.Errorf("listing %s expired: %w", l.ID, economy.ErrListingGone)
		}
		if l.SellerID == buyerID {
			return economy.ErrSelfPurchase
		}

		docs, err := tx.LockPlayers(ctx, buyerID, l.SellerID)
		if err != nil {
			return err
		}
		buyer, err := economy.StateFromDocument(docs[buyerID])
		if err != nil {
			return err
		}
		seller, err := economy.StateFromDocument(docs[l.SellerID])
		if err != nil {
			return err
		}
		if !buyer.Ledger.CanAfford(l.Price) {
			return economy.ErrInsufficientFunds
		}
		if buyer.Inventory.Free() < 1 {
			return economy.ErrInventoryFull
		}

		rec.Listing = l
		rec.Proceeds, rec.Fee = economy.SellerProceeds(l.Price, h.cfg.FeeRate)
		if err := tx.DeleteListing(ctx, l.ID); err != nil {
			return err
		}
		if err := buyer.Inventory.Insert(l.Item); err != nil {
			return err
		}
		if err := buyer.Ledger.Debit(l.Price, ReasonPurchase); err != nil {
			return err
		}
		if err := seller.Ledger.Credit(rec.Proceeds, ReasonSale); err != nil {
			return err
		}
		buyer.MarkCollected(l.Item.ItemID)
		if err := put(ctx, tx, rec.Players, buyer, seller); err != nil {
			return err
		}
		return tx.AppendEvents(ctx,
			listingEvent(seller.ID, event.ListingSold, l, buyerID, rec.Fee),
			listingEvent(buyerID, event.ListingSold, l, buyerID, rec.Fee),
		)
	})
	if err != nil {
		return Receipt{}, err
	}

	span.SetAttributes(attribute.Int64("fee", rec.Fee))
	h.logger.InfoContext(ctx, "listing sold",
		slog.String("listing_id", listingID),
		slog.String("buyer_id", buyerID),
		slog.String("seller_id", rec.Listing.SellerID),
		slog.Int64("price", rec.Listing.Price),
		slog.Int64("fee", rec.Fee),
	)
	return rec, nil
}

// Cancel returns a listing's item to its seller.
func (h *House) Cancel(ctx context.Context, sellerID, listingID string) (Receipt, error) {
	ctx, span := h.tracer.Start(ctx, "House.Cancel",
		trace.WithAttributes(
			attribute.String("seller_id", sellerID),
			attribute.String("listing_id", listingID),
		),
	)
	defer span.End()

	rec, err := h.returnToSeller(ctx, listingID, sellerID, event.ListingCancelled, false)
	if err != nil {
		return Receipt{}, err
	}
	h.logger.InfoContext(ctx, "listing cancelled",
		slog.String("listing_id", listingID),
		slog.String("seller_id", sellerID),
	)
	return rec, nil
}

// Expire returns an expired listing's item to its seller. It reports false,
// without error, when the listing is gone, not yet expired, or the seller
// has no room; such listings are left for a later sweep.
func (h *House) Expire(ctx context.Context, listingID string) (Receipt, bool, error) {
	ctx, span := h.tracer.Start(ctx, "House.Expire",
		trace.WithAttributes(attribute.String("listing_id", listingID)),
	)
	defer span.End()

	rec, err := h.returnToSeller(ctx, listingID, "", event.ListingExpired, true)
	switch {
	case errors.Is(err, errKeep), errors.Is(err, economy.ErrListingGone):
		return Receipt{}, false, nil
	case err != nil:
		return Receipt{}, false, err
	}
	h.logger.InfoContext(ctx, "listing expired",
		slog.String("listing_id", listingID),
		slog.String("seller_id", rec.Listing.SellerID),
	)
	return rec, true, nil
}

// returnToSeller deletes the listing and puts its item back. An empty
// sellerID skips the ownership check.
func (h *House) returnToSeller(ctx context.Context, listingID, sellerID string, typ event.Type, expiry bool) (Receipt, error) {
	var rec Receipt
	err := h.tx.RunAtomic(ctx, func(ctx context.Context, tx store.Tx) error {
		rec = Receipt{Players: make(map[string]economy.Document, 1)}
		l, err := tx.LockListing(ctx, listingID)
		if errors.Is(err, economy.ErrNotFound) {
			return economy.ErrListingGone
		}
		if err != nil {
			return err
		}
		if sellerID != "" && l.SellerID != sellerID {
			return economy.ErrNotOwner
		}
		if expiry && !l.Expired(h.clock.Now()) {
			return errKeep
		}

		seller, err := lockOne(ctx, tx, l.SellerID)
		if err != nil {
			return err
		}
		if seller.Inventory.Free() < 1 {
			if expiry {
				return errKeep
			}
			return economy.ErrInventoryFull
		}

		rec.Listing = l
		if err := tx.DeleteListing(ctx, l.ID); err != nil {
			return err
		}
		if err := seller.Inventory.Insert(l.Item); err != nil {
			return err
		}
		if err := put(ctx, tx, rec.Players, seller); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, listingEvent(seller.ID, typ, l, "", 0))
	})
	return rec, err
}

// Browse returns up to limit active listings, newest first. A non-positive
// limit uses the configured browse limit.
func (h *House) Browse(ctx context.Context, limit int) ([]economy.Listing, error) {
	ctx, span := h.tracer.Start(ctx, "House.Browse")
	defer span.End()

	if limit <= 0 {
		limit = h.cfg.BrowseLimit
	}
	return h.listings.Active(ctx, h.clock.Now(), limit)
}

// Get returns a single listing.
func (h *House) Get(ctx context.Context, listingID string) (economy.Listing, error) {
	return h.listings.Get(ctx, listingID)
}

// BySeller returns every listing of sellerID, expired or not.
func (h *House) BySeller(ctx context.Context, sellerID string) ([]economy.Listing, error) {
	return h.listings.BySeller(ctx, sellerID)
}

// Expired returns up to limit listings due for expiry.
func (h *House) Expired(ctx context.Context, limit int) ([]economy.Listing, error) {
	return h.listings.Expired(ctx, h.clock.Now(), limit)
}
