package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
)

// session is the cached, authoritative state of one player on this replica.
//
// Lock order: saveMu before mu, and across players by ascending id. saveMu is
// held for the whole of a document write so a stale snapshot can never land
// after a newer one.
type session struct {
	id     string
	saveMu sync.Mutex
	mu     sync.Mutex

	state    *economy.PlayerState
	gen      uint64 // bumped on every mutation
	savedGen uint64 // gen of the last persisted snapshot
	events   []event.Event
	nextDraw time.Time
}

func (s *session) dirty() bool {
	return s.gen != s.savedGen || len(s.events) > 0
}

// peek returns the cached session of id, if any.
func (svc *Service) peek(id string) (*session, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	s, ok := svc.sessions[id]
	return s, ok
}

// acquire returns the session of id, loading it or registering a new player
// on first use. Concurrent first uses share one load.
func (svc *Service) acquire(ctx context.Context, id, name string) (*session, error) {
	if s, ok := svc.peek(id); ok {
		return s, nil
	}
	v, err, _ := svc.loads.Do(id, func() (any, error) {
		if s, ok := svc.peek(id); ok {
			return s, nil
		}
		state, err := svc.load(ctx, id, name)
		if err != nil {
			return nil, err
		}
		s := &session{id: id, state: state}
		svc.mu.Lock()
		svc.sessions[id] = s
		svc.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func (svc *Service) load(ctx context.Context, id, name string) (*economy.PlayerState, error) {
	doc, err := svc.players.Load(ctx, id)
	switch {
	case errors.Is(err, economy.ErrNotFound):
		return svc.register(ctx, id, name)
	case err != nil:
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	return economy.StateFromDocument(doc)
}

// register stores a new player synchronously so market transactions can find
// it straight away.
func (svc *Service) register(ctx context.Context, id, name string) (*economy.PlayerState, error) {
	if name == "" {
		name = id
	}
	state, err := economy.NewPlayer(id, name, svc.cfg.StartingCoins, svc.cfg.Inventory.InitialCapacity)
	if err != nil {
		return nil, err
	}
	saved, err := svc.players.Save(ctx, state.Document())
	if err != nil {
		return nil, fmt.Errorf("registering player %s: %w", id, err)
	}
	state.Version = saved.Version
	state.LastSaved = saved.LastSaved

	evt, _ := event.New(id, event.PlayerRegistered, event.PlayerRegisteredData{
		PlayerID:      id,
		DisplayName:   name,
		StartingCoins: svc.cfg.StartingCoins,
	})
	if err := svc.events.Append(ctx, evt); err != nil {
		svc.logger.ErrorContext(ctx, "failed to append player registered event", slog.Any("error", err))
	}
	svc.logger.InfoContext(ctx, "player registered",
		slog.String("player_id", id),
		slog.String("display_name", name),
	)
	return state, nil
}

// commit records a mutation of s: ledger deltas become events, the session
// is marked dirty and a save is queued. The caller holds s.mu.
func (svc *Service) commit(ctx context.Context, s *session, evs ...event.Event) {
	deltas := s.state.Ledger.PendingDeltas()
	for _, d := range deltas {
		svc.metrics.Coins(ctx, d.Amount, d.Reason)
	}
	s.events = append(s.events, event.FromDeltas(s.state.ID, deltas)...)
	s.events = append(s.events, evs...)
	s.gen++
	svc.saver.enqueue(ctx, s.state.ID)
}

// persist writes the current snapshot of id if it changed since the last
// write. It is the saver's unit of work.
func (svc *Service) persist(ctx context.Context, id string) error {
	s, ok := svc.peek(id)
	if !ok {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return svc.write(ctx, s)
}

// write saves s and appends its buffered events. The caller holds s.saveMu
// but not s.mu.
func (svc *Service) write(ctx context.Context, s *session) error {
	s.mu.Lock()
	if !s.dirty() {
		s.mu.Unlock()
		return nil
	}
	doc := s.state.Document()
	gen := s.gen
	events := s.events
	s.events = nil
	s.mu.Unlock()

	saved, err := svc.players.Save(ctx, doc)
	if err != nil {
		s.mu.Lock()
		s.events = append(events, s.events...)
		s.mu.Unlock()
		return fmt.Errorf("saving player %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	if gen > s.savedGen {
		s.savedGen = gen
	}
	s.state.Version = saved.Version
	s.state.LastSaved = saved.LastSaved
	s.mu.Unlock()

	svc.appendEvents(ctx, events)
	return nil
}

// flushLocked is write for callers already holding both s.saveMu and s.mu.
func (svc *Service) flushLocked(ctx context.Context, s *session) error {
	if !s.dirty() {
		return nil
	}
	saved, err := svc.players.Save(ctx, s.state.Document())
	if err != nil {
		return fmt.Errorf("saving player %s: %w", s.state.ID, err)
	}
	s.savedGen = s.gen
	s.state.Version = saved.Version
	s.state.LastSaved = saved.LastSaved
	events := s.events
	s.events = nil
	svc.appendEvents(ctx, events)
	return nil
}

func (svc *Service) appendEvents(ctx context.Context, events []event.Event) {
	if len(events) == 0 {
		return
	}
	if err := svc.events.Append(ctx, events...); err != nil {
		svc.logger.ErrorContext(ctx, "failed to append events",
			slog.Int("count", len(events)),
			slog.Any("error", err),
		)
	}
}

// adopt replaces the state of s with a document committed by the market.
// The caller holds s.mu. A document that cannot be decoded evicts the
// session so the next use reloads it.
func (svc *Service) adopt(ctx context.Context, s *session, doc economy.Document) {
	state, err := economy.StateFromDocument(doc)
	if err != nil {
		svc.logger.ErrorContext(ctx, "evicting session with undecodable document",
			slog.String("player_id", doc.ID),
			slog.Any("error", err),
		)
		svc.mu.Lock()
		delete(svc.sessions, doc.ID)
		svc.mu.Unlock()
		return
	}
	s.state = state
	s.savedGen = s.gen
}

// lockAll takes saveMu then mu of every distinct session, ordered by player
// id, and returns the matching unlock.
func lockAll(sessions ...*session) func() {
	uniq := make([]*session, 0, len(sessions))
	seen := make(map[*session]bool, len(sessions))
	for _, s := range sessions {
		if s != nil && !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].id < uniq[j].id })
	for _, s := range uniq {
		s.saveMu.Lock()
	}
	for _, s := range uniq {
		s.mu.Lock()
	}
	return func() {
		for i := len(uniq) - 1; i >= 0; i-- {
			uniq[i].mu.Unlock()
			uniq[i].saveMu.Unlock()
		}
	}
}
