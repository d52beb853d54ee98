package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fortuna/metapitch/internal/store"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// GameRepository handles game data access
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

// InsertBatch bulk-inserts games through q, normally a transaction.
func (r *GameRepository) InsertBatch(ctx context.Context, q store.Querier, games []store.Game) (int64, error) {
	if err := r.db.RequireSchema(ctx, q); err != nil {
		return 0, err
	}

	stmt, err := q.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO games (game_id, season, week, game_date, home_team, away_team,
			home_score, away_score, stadium)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare game insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for i := range games {
		g := &games[i]
		if _, err := stmt.ExecContext(ctx, g.GameID, g.Season, g.Week, g.GameDate, g.HomeTeam, g.AwayTeam,
			g.HomeScore, g.AwayScore, g.Stadium); err != nil {
			return n, fmt.Errorf("insert game %d: %w", g.GameID, err)
		}
		n++
	}
	return n, nil
}

// GameFilter narrows List. Nil fields are ignored.
type GameFilter struct {
	Season *int
	Week   *int
}

// List returns games, most recent first.
func (r *GameRepository) List(ctx context.Context, f GameFilter) ([]*store.Game, error) {
	var (
		where []string
		args  []any
	)
	if f.Season != nil {
		where = append(where, "season = ?")
		args = append(args, *f.Season)
	}
	if f.Week != nil {
		where = append(where, "week = ?")
		args = append(args, *f.Week)
	}

	query := `
		SELECT game_id, season, week, game_date, home_team, away_team,
			home_score, away_score, stadium
		FROM games`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY game_date DESC, game_id"

	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	var games []*store.Game
	for rows.Next() {
		g := &store.Game{}
		if err := rows.Scan(&g.GameID, &g.Season, &g.Week, &g.GameDate, &g.HomeTeam, &g.AwayTeam,
			&g.HomeScore, &g.AwayScore, &g.Stadium); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// GetByID finds a game by ID
func (r *GameRepository) GetByID(ctx context.Context, gameID int64) (*store.Game, error) {
	query := `
		SELECT game_id, season, week, game_date, home_team, away_team,
			home_score, away_score, stadium
		FROM games
		WHERE game_id = ?`

	g := &store.Game{}
	err := r.db.DB().QueryRowContext(ctx, r.db.Rebind(query), gameID).Scan(
		&g.GameID, &g.Season, &g.Week, &g.GameDate, &g.HomeTeam, &g.AwayTeam,
		&g.HomeScore, &g.AwayScore, &g.Stadium,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %d: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", err)
	}
	return g, nil
}
