// Package reconciliation checks the loaded frames against the dimension
// tables. The schema has no foreign keys, so references are verified here
// after postprocessing.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/store"
)

// Check is one referential query. Query returns a single count of offending
// rows.
type Check struct {
	Name        string
	Description string
	Query       string
}

// DefaultChecks are run by NewEngine.
var DefaultChecks = []Check{
	{
		Name:        "orphan_frames",
		Description: "frames whose play does not exist",
		Query: `SELECT COUNT(*) FROM frames f
			WHERE NOT EXISTS (SELECT 1 FROM plays p WHERE p.game_id = f.game_id AND p.play_id = f.play_id)`,
	},
	{
		Name:        "orphan_plays",
		Description: "plays whose game does not exist",
		Query: `SELECT COUNT(*) FROM plays p
			WHERE NOT EXISTS (SELECT 1 FROM games g WHERE g.game_id = p.game_id)`,
	},
	{
		Name:        "unknown_players",
		Description: "player frames whose nfl id is not in players",
		Query: `SELECT COUNT(*) FROM frames f
			WHERE f.nfl_id <> -1
			AND NOT EXISTS (SELECT 1 FROM players pl WHERE pl.nfl_id = f.nfl_id)`,
	},
	{
		Name:        "plays_without_frames",
		Description: "plays with no tracking rows",
		Query:       `SELECT COUNT(*) FROM plays WHERE frame_count IS NULL`,
	},
	{
		Name:        "unknown_team_frames",
		Description: "frames whose club matched neither team of the game",
		Query:       `SELECT COUNT(*) FROM frames WHERE team = 'unknown'`,
	},
}

// Finding is the result of one check.
type Finding struct {
	Check       string `json:"check"`
	Description string `json:"description"`
	Count       int64  `json:"count"`
}

// Report collects the findings of one pass.
type Report struct {
	Findings  []Finding `json:"findings"`
	CheckedAt time.Time `json:"checked_at"`
}

// Clean reports whether every check found zero rows.
func (r Report) Clean() bool {
	for _, f := range r.Findings {
		if f.Count > 0 {
			return false
		}
	}
	return true
}

// Count returns the count of a named check, or 0.
func (r Report) Count(check string) int64 {
	for _, f := range r.Findings {
		if f.Check == check {
			return f.Count
		}
	}
	return 0
}

// Engine runs referential checks against the store.
type Engine struct {
	db     *store.Database
	checks []Check
}

// NewEngine creates an engine running DefaultChecks.
func NewEngine(db *store.Database) *Engine {
	return &Engine{db: db, checks: DefaultChecks}
}

// Run executes every check. Non-zero counts are logged as warnings; they
// never fail the run.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: time.Now().UTC()}
	if err := e.db.RequireSchema(ctx, e.db.DB()); err != nil {
		return report, err
	}

	for _, c := range e.checks {
		var n int64
		if err := e.db.DB().QueryRowContext(ctx, c.Query).Scan(&n); err != nil {
			return report, fmt.Errorf("reconcile %s: %w", c.Name, err)
		}
		report.Findings = append(report.Findings, Finding{Check: c.Name, Description: c.Description, Count: n})
		if n > 0 {
			logging.Warn().Str("check", c.Name).Int64("count", n).Msg(c.Description)
		}
	}

	return report, nil
}
