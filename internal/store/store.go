package store

import (
	"context"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
)

// PlayerRepository persists player documents. Save is an upsert that bumps
// the stored version and stamps LastSaved.
type PlayerRepository interface {
	Load(ctx context.Context, id string) (economy.Document, error)
	Save(ctx context.Context, doc economy.Document) (economy.Document, error)
}

// ListingRepository reads auction listings outside of a transaction.
type ListingRepository interface {
	Get(ctx context.Context, id string) (economy.Listing, error)
	// Active returns up to limit unexpired listings, newest first.
	Active(ctx context.Context, now time.Time, limit int) ([]economy.Listing, error)
	// Expired returns up to limit listings whose expiry has passed, oldest first.
	Expired(ctx context.Context, now time.Time, limit int) ([]economy.Listing, error)
	BySeller(ctx context.Context, sellerID string) ([]economy.Listing, error)
}

// Tx is the view of the store inside an atomic unit of work. Locks are
// taken in a fixed order: the listing first, then players by ascending id.
type Tx interface {
	// LockListing returns the listing and holds it until the end of the
	// transaction. Missing listings yield economy.ErrNotFound.
	LockListing(ctx context.Context, id string) (economy.Listing, error)
	// LockPlayers returns the documents of ids keyed by id. Missing players
	// yield economy.ErrNotFound.
	LockPlayers(ctx context.Context, ids ...string) (map[string]economy.Document, error)
	PutPlayer(ctx context.Context, doc economy.Document) (economy.Document, error)
	InsertListing(ctx context.Context, l economy.Listing) error
	DeleteListing(ctx context.Context, id string) error
	// CountActiveListings counts the seller's listings that have not expired
	// at now.
	CountActiveListings(ctx context.Context, sellerID string, now time.Time) (int, error)
	AppendEvents(ctx context.Context, events ...event.Event) error
}

// Transactor runs fn atomically: either every write made through tx is
// committed or none is. fn may be retried and must not have side effects
// outside tx.
type Transactor interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
