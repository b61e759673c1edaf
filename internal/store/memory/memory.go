// Package memory provides an in-process store.Driver. Transactions are
// serialised by a single mutex and applied from staged copies on success.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
	"github.com/jensholdgaard/gachabot/internal/store"
)

func init() {
	store.Register("memory", openMemory)
}

func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return New(clk).Repositories(), nil
}

// DB holds every record in memory. Player documents are kept encoded so
// callers never share maps or slices with the store.
type DB struct {
	mu       sync.Mutex
	clk      clock.Clock
	players  map[string][]byte
	listings map[string]economy.Listing
	events   []event.Event
}

// New returns an empty DB.
func New(clk clock.Clock) *DB {
	return &DB{
		clk:      clk,
		players:  make(map[string][]byte),
		listings: make(map[string]economy.Listing),
	}
}

// Repositories exposes db through the store interfaces.
func (db *DB) Repositories() *store.Repositories {
	return &store.Repositories{
		Players:  &PlayerRepo{db: db},
		Listings: &ListingRepo{db: db},
		Events:   &EventStore{db: db},
		Tx:       db,
		Closer:   store.CloserFunc(func() error { return nil }),
		Ping:     func(context.Context) error { return nil },
	}
}

func decode(raw []byte) (economy.Document, error) {
	var doc economy.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return economy.Document{}, fmt.Errorf("%w: decoding player: %w", economy.ErrPersistence, err)
	}
	return doc, nil
}

// stamp sets the next version and save time on doc and encodes it.
func (db *DB) stamp(prev []byte, doc economy.Document) (economy.Document, []byte, error) {
	doc.Version = 1
	if prev != nil {
		old, err := decode(prev)
		if err != nil {
			return economy.Document{}, nil, err
		}
		doc.Version = old.Version + 1
	}
	doc.LastSaved = db.clk.Now()
	raw, err := json.Marshal(doc)
	if err != nil {
		return economy.Document{}, nil, fmt.Errorf("%w: encoding player: %w", economy.ErrPersistence, err)
	}
	return doc, raw, nil
}

// number assigns ids, versions and timestamps to events appended after
// existing, rejecting duplicate aggregate versions.
func (db *DB) number(existing, events []event.Event) ([]event.Event, error) {
	last := make(map[string]int)
	taken := make(map[string]map[int]bool)
	mark := func(e event.Event) {
		if e.Version > last[e.AggregateID] {
			last[e.AggregateID] = e.Version
		}
		if taken[e.AggregateID] == nil {
			taken[e.AggregateID] = make(map[int]bool)
		}
		taken[e.AggregateID][e.Version] = true
	}
	for _, e := range existing {
		mark(e)
	}
	out := make([]event.Event, 0, len(events))
	for _, e := range events {
		if e.Version == 0 {
			e.Version = last[e.AggregateID] + 1
		}
		if taken[e.AggregateID][e.Version] {
			return nil, fmt.Errorf("%w: event version %d of %s already exists", economy.ErrConflict, e.Version, e.AggregateID)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = db.clk.Now()
		mark(e)
		out = append(out, e)
	}
	return out, nil
}
