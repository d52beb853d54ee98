package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/metapitch/internal/store"
)

// PlayRepository handles play data access
type PlayRepository struct {
	db *store.Database
}

// NewPlayRepository creates a new play repository
func NewPlayRepository(db *store.Database) *PlayRepository {
	return &PlayRepository{db: db}
}

// InsertBatch bulk-inserts plays through q.
func (r *PlayRepository) InsertBatch(ctx context.Context, q store.Querier, plays []store.Play) (int64, error) {
	if err := r.db.RequireSchema(ctx, q); err != nil {
		return 0, err
	}

	stmt, err := q.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO plays (game_id, play_id, quarter, down, yards_to_go, yardline_side,
			yardline_number, play_direction, offense_team, defense_team, play_result,
			description, frame_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare play insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for i := range plays {
		p := &plays[i]
		if _, err := stmt.ExecContext(ctx, p.GameID, p.PlayID, p.Quarter, p.Down, p.YardsToGo,
			p.YardlineSide, p.YardlineNumber, p.PlayDirection, p.OffenseTeam, p.DefenseTeam,
			p.PlayResult, p.Description, p.FrameCount); err != nil {
			return n, fmt.Errorf("insert play %d/%d: %w", p.GameID, p.PlayID, err)
		}
		n++
	}
	return n, nil
}

// PlaySummary is the listing shape of a play.
type PlaySummary struct {
	PlayID      int64   `json:"play_id"`
	Description *string `json:"description"`
	FrameCount  *int64  `json:"frame_count"`
}

// ListByGame returns the plays of a game ordered by play id.
func (r *PlayRepository) ListByGame(ctx context.Context, gameID int64) ([]PlaySummary, error) {
	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT play_id, description, frame_count
		FROM plays
		WHERE game_id = ?
		ORDER BY play_id`), gameID)
	if err != nil {
		return nil, fmt.Errorf("querying plays: %w", err)
	}
	defer rows.Close()

	var plays []PlaySummary
	for rows.Next() {
		var p PlaySummary
		if err := rows.Scan(&p.PlayID, &p.Description, &p.FrameCount); err != nil {
			return nil, fmt.Errorf("scanning play: %w", err)
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// Get returns one play.
func (r *PlayRepository) Get(ctx context.Context, gameID, playID int64) (*store.Play, error) {
	query := `
		SELECT game_id, play_id, quarter, down, yards_to_go, yardline_side, yardline_number,
			play_direction, offense_team, defense_team, play_result, description, frame_count
		FROM plays
		WHERE game_id = ? AND play_id = ?`

	p := &store.Play{}
	err := r.db.DB().QueryRowContext(ctx, r.db.Rebind(query), gameID, playID).Scan(
		&p.GameID, &p.PlayID, &p.Quarter, &p.Down, &p.YardsToGo, &p.YardlineSide, &p.YardlineNumber,
		&p.PlayDirection, &p.OffenseTeam, &p.DefenseTeam, &p.PlayResult, &p.Description, &p.FrameCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("play %d/%d: %w", gameID, playID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying play: %w", err)
	}
	return p, nil
}
