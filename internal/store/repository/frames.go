package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/fortuna/metapitch/internal/store"
)

// ConflictPolicy decides what happens when a frame key is inserted twice.
type ConflictPolicy string

const (
	// ConflictFail aborts with store.ErrDuplicateFrame.
	ConflictFail ConflictPolicy = "fail"
	// ConflictIgnore drops the duplicate and counts it.
	ConflictIgnore ConflictPolicy = "ignore"
)

var frameColumns = []string{
	"game_id", "play_id", "frame_id", "nfl_id", "x", "y", "speed", "accel", "vx", "vy",
	"orientation", "direction", "team", "jersey_number", "display_name", "event", "source",
}

const frameInsert = `
	INSERT INTO frames (game_id, play_id, frame_id, nfl_id, x, y, speed, accel, vx, vy,
		orientation, direction, team, jersey_number, display_name, event, source)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// FrameRepository handles frame data access
type FrameRepository struct {
	db     *store.Database
	policy ConflictPolicy
}

// NewFrameRepository creates a frame repository with the given conflict policy.
func NewFrameRepository(db *store.Database, policy ConflictPolicy) *FrameRepository {
	if policy == "" {
		policy = ConflictFail
	}
	return &FrameRepository{db: db, policy: policy}
}

// AppendBatch writes one normalized batch through q and returns how many
// rows were stored. Under ConflictIgnore the difference to len(frames) is
// the number of dropped duplicates.
func (r *FrameRepository) AppendBatch(ctx context.Context, q store.Querier, frames []store.Frame) (int64, error) {
	if err := r.db.RequireSchema(ctx, q); err != nil {
		return 0, err
	}
	if len(frames) == 0 {
		return 0, nil
	}

	if r.db.Driver() == store.DriverPostgres && r.policy == ConflictFail {
		return r.copyBatch(ctx, q, frames)
	}
	return r.insertBatch(ctx, q, frames)
}

func (r *FrameRepository) insertBatch(ctx context.Context, q store.Querier, frames []store.Frame) (int64, error) {
	query := frameInsert
	if r.policy == ConflictIgnore {
		query += " ON CONFLICT DO NOTHING"
	}

	stmt, err := q.PrepareContext(ctx, r.db.Rebind(query))
	if err != nil {
		return 0, fmt.Errorf("prepare frame insert: %w", err)
	}
	defer stmt.Close()

	var stored int64
	for i := range frames {
		res, err := stmt.ExecContext(ctx, frameArgs(&frames[i])...)
		if err != nil {
			return stored, r.wrapInsertErr(&frames[i], err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return stored, fmt.Errorf("rows affected: %w", err)
		}
		stored += n
	}
	return stored, nil
}

// copyBatch streams the batch with COPY FROM STDIN.
func (r *FrameRepository) copyBatch(ctx context.Context, q store.Querier, frames []store.Frame) (int64, error) {
	stmt, err := q.PrepareContext(ctx, pq.CopyIn("frames", frameColumns...))
	if err != nil {
		return 0, fmt.Errorf("prepare frame copy: %w", err)
	}
	defer stmt.Close()

	for i := range frames {
		if _, err := stmt.ExecContext(ctx, frameArgs(&frames[i])...); err != nil {
			return 0, r.wrapInsertErr(&frames[i], err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		if store.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %w", store.ErrDuplicateFrame, err)
		}
		return 0, fmt.Errorf("flush frame copy: %w", err)
	}
	return int64(len(frames)), nil
}

func (r *FrameRepository) wrapInsertErr(f *store.Frame, err error) error {
	if store.IsUniqueViolation(err) {
		return fmt.Errorf("%w: game %d play %d frame %d entity %d: %w",
			store.ErrDuplicateFrame, f.GameID, f.PlayID, f.FrameID, f.NflID, err)
	}
	return fmt.Errorf("insert frame: %w", err)
}

func frameArgs(f *store.Frame) []any {
	return []any{
		f.GameID, f.PlayID, f.FrameID, f.NflID, f.X, f.Y, f.Speed, f.Accel, f.VX, f.VY,
		f.Orientation, f.Direction, string(f.Team), f.JerseyNumber, f.DisplayName, f.Event, f.Source,
	}
}

// ListByPlay returns every frame row of a play ordered by frame then entity.
func (r *FrameRepository) ListByPlay(ctx context.Context, gameID, playID int64) ([]store.Frame, error) {
	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT game_id, play_id, frame_id, nfl_id, x, y, speed, accel, vx, vy,
			orientation, direction, team, jersey_number, display_name, event, source
		FROM frames
		WHERE game_id = ? AND play_id = ?
		ORDER BY frame_id, nfl_id`), gameID, playID)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	return scanFrames(rows)
}

// ListByEntity returns an entity's frames within one game, ordered by play
// and frame.
func (r *FrameRepository) ListByEntity(ctx context.Context, nflID, gameID int64) ([]store.Frame, error) {
	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT game_id, play_id, frame_id, nfl_id, x, y, speed, accel, vx, vy,
			orientation, direction, team, jersey_number, display_name, event, source
		FROM frames
		WHERE nfl_id = ? AND game_id = ?
		ORDER BY play_id, frame_id`), nflID, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	return scanFrames(rows)
}

func scanFrames(rows *sql.Rows) ([]store.Frame, error) {
	var frames []store.Frame
	for rows.Next() {
		var (
			f    store.Frame
			team sql.NullString
			src  sql.NullString
		)
		// speed..direction are nullable in the schema for rows written by
		// other ingesters; absent values read as zero.
		var speed, accel, vx, vy, o, dir sql.NullFloat64
		if err := rows.Scan(&f.GameID, &f.PlayID, &f.FrameID, &f.NflID, &f.X, &f.Y,
			&speed, &accel, &vx, &vy, &o, &dir, &team, &f.JerseyNumber, &f.DisplayName,
			&f.Event, &src); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		f.Speed, f.Accel, f.VX, f.VY = speed.Float64, accel.Float64, vx.Float64, vy.Float64
		f.Orientation, f.Direction = o.Float64, dir.Float64
		f.Team = store.TeamRole(team.String)
		f.Source = src.String
		frames = append(frames, f)
	}
	return frames, rows.Err()
}
