package reconciliation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fortuna/metapitch/internal/store"
)

func TestEngineRun(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewDatabase(store.DriverSQLite, filepath.Join(t.TempDir(), "rec.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer db.Close()

	e := NewEngine(db)
	if _, err := e.Run(ctx); !errors.Is(err, store.ErrSchemaMissing) {
		t.Fatalf("Run() before schema error = %v, want ErrSchemaMissing", err)
	}

	if err := db.ResetSchema(ctx); err != nil {
		t.Fatalf("ResetSchema() error = %v", err)
	}
	stmts := []string{
		`INSERT INTO games (game_id, season, week, game_date, home_team, away_team) VALUES (1, 2022, 1, 'd', 'LA', 'BUF')`,
		`INSERT INTO players (nfl_id, display_name) VALUES (100, 'A')`,
		`INSERT INTO plays (game_id, play_id) VALUES (1, 1), (1, 2), (9, 1)`,
		`INSERT INTO frames (game_id, play_id, frame_id, nfl_id, x, y, team) VALUES
			(1, 1, 1, 100, 0, 0, 'home'),
			(1, 1, 1, -1, 0, 0, 'ball'),
			(1, 1, 1, 200, 0, 0, 'unknown'),
			(1, 3, 1, 100, 0, 0, 'home')`,
	}
	for _, s := range stmts {
		if _, err := db.DB().ExecContext(ctx, s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := db.Postprocess(ctx); err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}

	report, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]int64{
		"orphan_frames":        1,
		"orphan_plays":         1,
		"unknown_players":      1,
		"plays_without_frames": 2,
		"unknown_team_frames":  1,
	}
	for check, n := range want {
		if got := report.Count(check); got != n {
			t.Errorf("%s = %d, want %d", check, got, n)
		}
	}
	if report.Clean() {
		t.Error("Clean() = true, want false")
	}
}

func TestReportClean(t *testing.T) {
	r := Report{Findings: []Finding{{Check: "a"}, {Check: "b"}}}
	if !r.Clean() {
		t.Error("Clean() = false for zero counts")
	}
	if r.Count("missing") != 0 {
		t.Error("Count(missing) != 0")
	}
}
