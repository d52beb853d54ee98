package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/metapitch/internal/logging"
)

// canonicalTables in creation order; dropped in reverse.
var canonicalTables = []string{"games", "players", "plays", "frames"}

// The DDL is portable: SQLite maps BIGINT and DOUBLE PRECISION onto INTEGER
// and REAL affinity.
var createStatements = []string{
	`CREATE TABLE games (
		game_id BIGINT PRIMARY KEY,
		season INTEGER NOT NULL,
		week INTEGER NOT NULL,
		game_date TEXT NOT NULL,
		home_team TEXT NOT NULL,
		away_team TEXT NOT NULL,
		home_score INTEGER,
		away_score INTEGER,
		stadium TEXT
	)`,
	`CREATE TABLE players (
		nfl_id BIGINT PRIMARY KEY,
		display_name TEXT NOT NULL,
		position TEXT,
		jersey_number INTEGER,
		height TEXT,
		weight INTEGER
	)`,
	`CREATE TABLE plays (
		game_id BIGINT NOT NULL,
		play_id BIGINT NOT NULL,
		quarter INTEGER,
		down INTEGER,
		yards_to_go INTEGER,
		yardline_side TEXT,
		yardline_number INTEGER,
		play_direction TEXT,
		offense_team TEXT,
		defense_team TEXT,
		play_result INTEGER,
		description TEXT,
		frame_count INTEGER,
		PRIMARY KEY (game_id, play_id)
	)`,
	`CREATE TABLE frames (
		game_id BIGINT NOT NULL,
		play_id BIGINT NOT NULL,
		frame_id BIGINT NOT NULL,
		nfl_id BIGINT NOT NULL,
		x DOUBLE PRECISION NOT NULL,
		y DOUBLE PRECISION NOT NULL,
		speed DOUBLE PRECISION,
		accel DOUBLE PRECISION,
		vx DOUBLE PRECISION,
		vy DOUBLE PRECISION,
		orientation DOUBLE PRECISION,
		direction DOUBLE PRECISION,
		team TEXT,
		jersey_number INTEGER,
		display_name TEXT,
		event TEXT,
		source TEXT DEFAULT 'kaggle',
		PRIMARY KEY (game_id, play_id, frame_id, nfl_id)
	)`,
}

// Frame lookup indexes built by Postprocess.
var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_frames_play ON frames(game_id, play_id)`,
	`CREATE INDEX IF NOT EXISTS idx_frames_entity ON frames(nfl_id, game_id)`,
}

// ResetSchema drops the four canonical tables if present and recreates them
// empty, in one transaction. Safe on a fresh or populated store.
func (db *Database) ResetSchema(ctx context.Context) error {
	logging.Info().Str("driver", db.driver).Msg("Resetting schema")

	db.mu.Lock()
	db.schemaReady = false
	db.mu.Unlock()

	err := db.InTx(ctx, func(tx *sql.Tx) error {
		for i := len(canonicalTables) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+canonicalTables[i]); err != nil {
				return fmt.Errorf("drop %s: %w", canonicalTables[i], err)
			}
		}
		for i, stmt := range createStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", canonicalTables[i], err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}

	db.mu.Lock()
	db.schemaReady = true
	db.mu.Unlock()

	logging.Info().Strs("tables", canonicalTables).Msg("✓ Schema recreated")
	return nil
}

// PostprocessResult describes the backfill outcome.
type PostprocessResult struct {
	PlaysWithFrames    int64 `json:"plays_with_frames"`
	PlaysWithoutFrames int64 `json:"plays_without_frames"`
}

// Postprocess backfills plays.frame_count with the maximum frame_id of each
// play and builds the frame lookup indexes. Both steps are idempotent. It
// must run after all tracking sources are loaded; earlier calls produce
// partial counts.
func (db *Database) Postprocess(ctx context.Context) (PostprocessResult, error) {
	var res PostprocessResult

	err := db.InTx(ctx, func(tx *sql.Tx) error {
		if err := db.RequireSchema(ctx, tx); err != nil {
			return err
		}

		logging.Info().Msg("Backfilling frame_count")
		if _, err := tx.ExecContext(ctx, `
			UPDATE plays SET frame_count = (
				SELECT MAX(frame_id) FROM frames
				WHERE frames.game_id = plays.game_id AND frames.play_id = plays.play_id
			)`); err != nil {
			return fmt.Errorf("backfill frame_count: %w", err)
		}

		logging.Info().Msg("Creating indexes")
		for _, stmt := range indexStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index: %w", err)
			}
		}

		return tx.QueryRowContext(ctx, `
			SELECT
				COALESCE(SUM(CASE WHEN frame_count IS NOT NULL THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN frame_count IS NULL THEN 1 ELSE 0 END), 0)
			FROM plays`).Scan(&res.PlaysWithFrames, &res.PlaysWithoutFrames)
	})
	if err != nil {
		return res, fmt.Errorf("postprocess: %w", err)
	}

	logTableCounts(ctx, db)
	return res, nil
}
