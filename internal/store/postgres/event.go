package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/gachabot/internal/event"
)

// EventStore implements event.Store backed by Postgres.
type EventStore struct {
	db *sqlx.DB
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// insertEvent numbers events with a zero version after the aggregate's
// latest one. The unique (aggregate_id, version) constraint rejects races.
const insertEvent = `INSERT INTO events (aggregate_id, type, data, version)
	VALUES ($1, $2, $3, COALESCE(NULLIF($4, 0),
		(SELECT COALESCE(MAX(version), 0) + 1 FROM events WHERE aggregate_id = $1)))`

func appendEvents(ctx context.Context, tx *sqlx.Tx, events []event.Event) error {
	stmt, err := tx.PreparexContext(ctx, insertEvent)
	if err != nil {
		return persistence("preparing event insert", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.AggregateID, e.Type, string(e.Data), e.Version); err != nil {
			return persistence(fmt.Sprintf("inserting event (aggregate=%s, version=%d)", e.AggregateID, e.Version), err)
		}
	}
	return nil
}

func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendEvents(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistence("committing events", err)
	}
	return nil
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	events := []event.Event{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE aggregate_id = $1 ORDER BY version ASC`, aggregateID)
	if err != nil {
		return nil, persistence("loading events", err)
	}
	return events, nil
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	events := []event.Event{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE type = $1 ORDER BY created_at ASC, version ASC`, eventType)
	if err != nil {
		return nil, persistence("loading events by type", err)
	}
	return events, nil
}
