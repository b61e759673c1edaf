package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
	"github.com/jensholdgaard/gachabot/internal/store"
)

// RunAtomic implements store.Transactor. Writes are staged and applied only
// when fn returns nil.
func (db *DB) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t := &tx{
		db:       db,
		players:  make(map[string][]byte),
		listings: make(map[string]*economy.Listing),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	for id, raw := range t.players {
		db.players[id] = raw
	}
	for id, l := range t.listings {
		if l == nil {
			delete(db.listings, id)
		} else {
			db.listings[id] = *l
		}
	}
	db.events = append(db.events, t.events...)
	return nil
}

// tx stages writes on top of db. The caller holds db.mu.
type tx struct {
	db       *DB
	players  map[string][]byte
	listings map[string]*economy.Listing // nil marks a deletion
	events   []event.Event
}

func (t *tx) listing(id string) (economy.Listing, bool) {
	if l, ok := t.listings[id]; ok {
		if l == nil {
			return economy.Listing{}, false
		}
		return *l, true
	}
	l, ok := t.db.listings[id]
	return l, ok
}

func (t *tx) player(id string) ([]byte, bool) {
	if raw, ok := t.players[id]; ok {
		return raw, true
	}
	raw, ok := t.db.players[id]
	return raw, ok
}

func (t *tx) LockListing(_ context.Context, id string) (economy.Listing, error) {
	l, ok := t.listing(id)
	if !ok {
		return economy.Listing{}, fmt.Errorf("listing %s: %w", id, economy.ErrNotFound)
	}
	return l, nil
}

func (t *tx) LockPlayers(_ context.Context, ids ...string) (map[string]economy.Document, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make(map[string]economy.Document, len(sorted))
	for _, id := range sorted {
		raw, ok := t.player(id)
		if !ok {
			return nil, fmt.Errorf("player %s: %w", id, economy.ErrNotFound)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out[id] = doc
	}
	return out, nil
}

func (t *tx) PutPlayer(_ context.Context, doc economy.Document) (economy.Document, error) {
	prev, _ := t.player(doc.ID)
	doc, raw, err := t.db.stamp(prev, doc)
	if err != nil {
		return economy.Document{}, err
	}
	t.players[doc.ID] = raw
	return doc, nil
}

func (t *tx) InsertListing(_ context.Context, l economy.Listing) error {
	if _, ok := t.listing(l.ID); ok {
		return fmt.Errorf("%w: listing %s already exists", economy.ErrConflict, l.ID)
	}
	t.listings[l.ID] = &l
	return nil
}

func (t *tx) DeleteListing(_ context.Context, id string) error {
	if _, ok := t.listing(id); !ok {
		return fmt.Errorf("listing %s: %w", id, economy.ErrNotFound)
	}
	t.listings[id] = nil
	return nil
}

func (t *tx) CountActiveListings(_ context.Context, sellerID string, now time.Time) (int, error) {
	n := 0
	for id, l := range t.db.listings {
		if _, staged := t.listings[id]; !staged && l.SellerID == sellerID && !l.Expired(now) {
			n++
		}
	}
	for _, l := range t.listings {
		if l != nil && l.SellerID == sellerID && !l.Expired(now) {
			n++
		}
	}
	return n, nil
}

func (t *tx) AppendEvents(_ context.Context, events ...event.Event) error {
	numbered, err := t.db.number(append(append([]event.Event(nil), t.db.events...), t.events...), events)
	if err != nil {
		return err
	}
	t.events = append(t.events, numbered...)
	return nil
}
