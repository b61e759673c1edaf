package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/economy"
)

// PlayerRepo implements store.PlayerRepository with sqlx.
type PlayerRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sqlx.DB, clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{db: db, clk: clk}
}

type playerRow struct {
	ID       string `db:"id"`
	Document []byte `db:"document"`
	Version  int64  `db:"version"`
}

func (r playerRow) decode() (economy.Document, error) {
	var doc economy.Document
	if err := json.Unmarshal(r.Document, &doc); err != nil {
		return economy.Document{}, persistence("decoding player "+r.ID, err)
	}
	doc.Version = r.Version
	return doc, nil
}

const upsertPlayer = `INSERT INTO players (id, display_name, document, version, updated_at)
	VALUES ($1, $2, $3, 1, $4)
	ON CONFLICT (id) DO UPDATE
	SET display_name = EXCLUDED.display_name,
	    document = EXCLUDED.document,
	    version = players.version + 1,
	    updated_at = EXCLUDED.updated_at
	RETURNING version`

// savePlayer upserts doc through q and returns it with its new version.
func savePlayer(ctx context.Context, q sqlx.QueryerContext, clk clock.Clock, doc economy.Document) (economy.Document, error) {
	doc.LastSaved = clk.Now()
	data, err := json.Marshal(doc)
	if err != nil {
		return economy.Document{}, persistence("encoding player "+doc.ID, err)
	}
	if err := q.QueryRowxContext(ctx, upsertPlayer, doc.ID, doc.DisplayName, string(data), doc.LastSaved).Scan(&doc.Version); err != nil {
		return economy.Document{}, persistence("saving player "+doc.ID, err)
	}
	return doc, nil
}

func (r *PlayerRepo) Load(ctx context.Context, id string) (economy.Document, error) {
	var row playerRow
	err := r.db.GetContext(ctx, &row, `SELECT id, document, version FROM players WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return economy.Document{}, fmt.Errorf("player %s: %w", id, economy.ErrNotFound)
	}
	if err != nil {
		return economy.Document{}, persistence("loading player", err)
	}
	return row.decode()
}

func (r *PlayerRepo) Save(ctx context.Context, doc economy.Document) (economy.Document, error) {
	return savePlayer(ctx, r.db, r.clk, doc)
}
