package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/metapitch/internal/store"
)

// PlayerRepository handles player data access
type PlayerRepository struct {
	db *store.Database
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// InsertBatch bulk-inserts players through q.
func (r *PlayerRepository) InsertBatch(ctx context.Context, q store.Querier, players []store.Player) (int64, error) {
	if err := r.db.RequireSchema(ctx, q); err != nil {
		return 0, err
	}

	stmt, err := q.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO players (nfl_id, display_name, position, jersey_number, height, weight)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare player insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for i := range players {
		p := &players[i]
		if _, err := stmt.ExecContext(ctx, p.NflID, p.DisplayName, p.Position, p.JerseyNumber,
			p.Height, p.Weight); err != nil {
			return n, fmt.Errorf("insert player %d: %w", p.NflID, err)
		}
		n++
	}
	return n, nil
}

// GetByID finds a player by nfl id.
func (r *PlayerRepository) GetByID(ctx context.Context, nflID int64) (*store.Player, error) {
	query := `
		SELECT nfl_id, display_name, position, jersey_number, height, weight
		FROM players
		WHERE nfl_id = ?`

	p := &store.Player{}
	err := r.db.DB().QueryRowContext(ctx, r.db.Rebind(query), nflID).Scan(
		&p.NflID, &p.DisplayName, &p.Position, &p.JerseyNumber, &p.Height, &p.Weight,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %d: %w", nflID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying player: %w", err)
	}
	return p, nil
}
