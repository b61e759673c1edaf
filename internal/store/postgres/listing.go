package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/gachabot/internal/economy"
)

// ListingRepo implements store.ListingRepository with sqlx.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sqlx.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

const listingColumns = `id, seller_id, seller_name, item, price, created_at, expires_at`

type listingRow struct {
	ID         string    `db:"id"`
	SellerID   string    `db:"seller_id"`
	SellerName string    `db:"seller_name"`
	Item       []byte    `db:"item"`
	Price      int64     `db:"price"`
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

func (r listingRow) decode() (economy.Listing, error) {
	var it economy.Item
	if err := json.Unmarshal(r.Item, &it); err != nil {
		return economy.Listing{}, persistence("decoding listing "+r.ID, err)
	}
	return economy.Listing{
		ID:         r.ID,
		SellerID:   r.SellerID,
		SellerName: r.SellerName,
		Item:       it,
		Price:      r.Price,
		CreatedAt:  r.CreatedAt.UTC(),
		ExpiresAt:  r.ExpiresAt.UTC(),
	}, nil
}

func decodeListings(rows []listingRow) ([]economy.Listing, error) {
	out := make([]economy.Listing, 0, len(rows))
	for _, r := range rows {
		l, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func getListing(ctx context.Context, q sqlx.QueryerContext, query, id string) (economy.Listing, error) {
	var row listingRow
	err := sqlx.GetContext(ctx, q, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return economy.Listing{}, fmt.Errorf("listing %s: %w", id, economy.ErrNotFound)
	}
	if err != nil {
		return economy.Listing{}, persistence("loading listing", err)
	}
	return row.decode()
}

func (r *ListingRepo) Get(ctx context.Context, id string) (economy.Listing, error) {
	return getListing(ctx, r.db, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
}

func (r *ListingRepo) Active(ctx context.Context, now time.Time, limit int) ([]economy.Listing, error) {
	var rows []listingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+listingColumns+` FROM listings
		 WHERE expires_at > $1 ORDER BY created_at DESC, id DESC LIMIT NULLIF($2, 0)`, now, limit)
	if err != nil {
		return nil, persistence("listing active", err)
	}
	return decodeListings(rows)
}

func (r *ListingRepo) Expired(ctx context.Context, now time.Time, limit int) ([]economy.Listing, error) {
	var rows []listingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+listingColumns+` FROM listings
		 WHERE expires_at <= $1 ORDER BY expires_at ASC LIMIT NULLIF($2, 0)`, now, limit)
	if err != nil {
		return nil, persistence("listing expired", err)
	}
	return decodeListings(rows)
}

func (r *ListingRepo) BySeller(ctx context.Context, sellerID string) ([]economy.Listing, error) {
	var rows []listingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+listingColumns+` FROM listings WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, persistence("listing by seller", err)
	}
	return decodeListings(rows)
}
