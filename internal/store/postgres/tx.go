package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/event"
	"github.com/jensholdgaard/gachabot/internal/store"
)

// Transactor implements store.Transactor. Row locks are taken with
// SELECT ... FOR UPDATE and serialization failures or deadlocks are retried
// with exponential backoff.
type Transactor struct {
	db         *sqlx.DB
	clk        clock.Clock
	maxRetries int
}

// NewTransactor returns a new Transactor.
func NewTransactor(db *sqlx.DB, clk clock.Clock, maxRetries int) *Transactor {
	return &Transactor{db: db, clk: clk, maxRetries: maxRetries}
}

func (t *Transactor) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	attempt := func() error {
		err := t.runOnce(ctx, fn)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(t.maxRetries, 0))),
		ctx,
	)
	err := backoff.Retry(attempt, policy)
	if retryable(err) {
		return fmt.Errorf("%w: %w", economy.ErrConflict, err)
	}
	return err
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return persistence("beginning transaction", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{tx: sqlTx, clk: t.clk}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return persistence("committing transaction", err)
	}
	return nil
}

type tx struct {
	tx  *sqlx.Tx
	clk clock.Clock
}

func (t *tx) LockListing(ctx context.Context, id string) (economy.Listing, error) {
	return getListing(ctx, t.tx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
}

func (t *tx) LockPlayers(ctx context.Context, ids ...string) (map[string]economy.Document, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var rows []playerRow
	err := t.tx.SelectContext(ctx, &rows,
		`SELECT id, document, version FROM players WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.Array(sorted))
	if err != nil {
		return nil, persistence("locking players", err)
	}

	out := make(map[string]economy.Document, len(rows))
	for _, r := range rows {
		doc, err := r.decode()
		if err != nil {
			return nil, err
		}
		out[r.ID] = doc
	}
	for _, id := range sorted {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("player %s: %w", id, economy.ErrNotFound)
		}
	}
	return out, nil
}

func (t *tx) PutPlayer(ctx context.Context, doc economy.Document) (economy.Document, error) {
	return savePlayer(ctx, t.tx, t.clk, doc)
}

func (t *tx) InsertListing(ctx context.Context, l economy.Listing) error {
	item, err := json.Marshal(l.Item)
	if err != nil {
		return persistence("encoding listing item", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO listings (id, seller_id, seller_name, item_uid, item, price, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.SellerID, l.SellerName, l.Item.UID, string(item), l.Price, l.CreatedAt, l.ExpiresAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: listing %s or item %s already listed", economy.ErrConflict, l.ID, l.Item.UID)
	}
	if err != nil {
		return persistence("inserting listing", err)
	}
	return nil
}

func (t *tx) DeleteListing(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return persistence("deleting listing", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("listing %s: %w", id, economy.ErrNotFound)
	}
	return nil
}

func (t *tx) CountActiveListings(ctx context.Context, sellerID string, now time.Time) (int, error) {
	var n int
	if err := t.tx.GetContext(ctx, &n, `SELECT count(*) FROM listings WHERE seller_id = $1 AND expires_at > $2`, sellerID, now); err != nil {
		return 0, persistence("counting listings", err)
	}
	return n, nil
}

func (t *tx) AppendEvents(ctx context.Context, events ...event.Event) error {
	return appendEvents(ctx, t.tx, events)
}
