package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
)

// PlayerRepo implements store.PlayerRepository.
type PlayerRepo struct {
	db *DB
}

func (r *PlayerRepo) Load(_ context.Context, id string) (economy.Document, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	raw, ok := r.db.players[id]
	if !ok {
		return economy.Document{}, fmt.Errorf("player %s: %w", id, economy.ErrNotFound)
	}
	return decode(raw)
}

func (r *PlayerRepo) Save(_ context.Context, doc economy.Document) (economy.Document, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	doc, raw, err := r.db.stamp(r.db.players[doc.ID], doc)
	if err != nil {
		return economy.Document{}, err
	}
	r.db.players[doc.ID] = raw
	return doc, nil
}

// ListingRepo implements store.ListingRepository.
type ListingRepo struct {
	db *DB
}

func (r *ListingRepo) Get(_ context.Context, id string) (economy.Listing, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.listings[id]
	if !ok {
		return economy.Listing{}, fmt.Errorf("listing %s: %w", id, economy.ErrNotFound)
	}
	return l, nil
}

func (r *ListingRepo) Active(_ context.Context, now time.Time, limit int) ([]economy.Listing, error) {
	out := r.filter(func(l economy.Listing) bool { return !l.Expired(now) })
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return truncate(out, limit), nil
}

func (r *ListingRepo) Expired(_ context.Context, now time.Time, limit int) ([]economy.Listing, error) {
	out := r.filter(func(l economy.Listing) bool { return l.Expired(now) })
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return truncate(out, limit), nil
}

func (r *ListingRepo) BySeller(_ context.Context, sellerID string) ([]economy.Listing, error) {
	out := r.filter(func(l economy.Listing) bool { return l.SellerID == sellerID })
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (r *ListingRepo) filter(keep func(economy.Listing) bool) []economy.Listing {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []economy.Listing
	for _, l := range r.db.listings {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func newer(a, b economy.Listing) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func truncate(ls []economy.Listing, limit int) []economy.Listing {
	if limit > 0 && len(ls) > limit {
		return ls[:limit]
	}
	return ls
}

// EventStore implements event.Store.
type EventStore struct {
	db *DB
}

func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	numbered, err := s.db.number(s.db.events, events)
	if err != nil {
		return err
	}
	s.db.events = append(s.db.events, numbered...)
	return nil
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	out := s.filter(func(e event.Event) bool { return e.AggregateID == aggregateID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	return s.filter(func(e event.Event) bool { return e.Type == eventType }), nil
}

func (s *EventStore) filter(keep func(event.Event) bool) []event.Event {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []event.Event{}
	for _, e := range s.db.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
