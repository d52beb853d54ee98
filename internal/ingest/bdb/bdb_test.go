package bdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/fortuna/metapitch/internal/normalize"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

const gamesCSV = `gameId,season,week,gameDate,gameTimeEastern,homeTeamAbbr,visitorTeamAbbr,homeFinalScore,visitorFinalScore
2022090800,2022,1,09/08/2022,20:20:00,LA,BUF,10,31
2022091100,2022,1,09/11/2022,13:00:00,ATL,NO,26,NA
`

const playersCSV = `nflId,height,weight,birthDate,collegeName,position,displayName
25511,6-4,225,1977-08-03,Michigan,QB,Tom Brady
35472,6-5,318,1988-06-06,Missouri,G,Rodger Saffold
42392,6-1,NA,NA,Alabama,NA,Someone Else
`

const playsCSV = `gameId,playId,playDescription,quarter,down,yardsToGo,possessionTeam,defensiveTeam,yardlineSide,yardlineNumber,yardsGained
2022090800,56,"(15:00) J.Allen pass short right to S.Diggs, for 3 yards.",1,1,10,BUF,LA,BUF,25,3
2022090800,80,(14:21) run,1,2,7,BUF,LA,BUF,28,NA
2022091100,10,(15:00) kickoff,1,NA,NA,NO,ATL,NA,NA,5
`

const trackingHeader = "gameId,playId,nflId,displayName,frameId,frameType,time,jerseyNumber,club,playDirection,x,y,s,a,dis,o,dir,event\n"

const week1CSV = trackingHeader +
	`2022090800,56,35472,Rodger Saffold,1,BEFORE_SNAP,2022-09-08 20:24:05.2,76.0,LA,left,20,10,5,1.5,0.1,45,90,huddle_break_offense
2022090800,56,NA,football,1,BEFORE_SNAP,2022-09-08 20:24:05.2,NA,football,left,60,26.65,0,0,0,NA,NA,NA
2022090800,56,42392,Someone Else,1,BEFORE_SNAP,2022-09-08 20:24:05.2,99,KC,left,50,20,1,0,0,0,0,NA
2022090800,56,35472,Rodger Saffold,2,BEFORE_SNAP,2022-09-08 20:24:05.3,76.0,LA,left,21,10,NA,NA,0.1,45,90,NA
2022090800,80,25511,Tom Brady,1,BEFORE_SNAP,2022-09-08 20:30:00.0,12,BUF,right,30,20,1,0,0,0,0,NA
`

const week3CSV = trackingHeader +
	`2022090800,80,25511,Tom Brady,2,SNAP,2022-09-08 20:30:00.1,12,BUF,right,31,20,1,0,0,0,0,ball_snap
2022090800,80,NA,football,2,SNAP,2022-09-08 20:30:00.1,NA,football,right,32,20,2,0,0,NA,NA,ball_snap
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func writeGzip(t *testing.T, dir, name, content string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
}

func newTestStore(t *testing.T) *store.Database {
	t.Helper()
	db, err := store.NewDatabase(store.DriverSQLite, filepath.Join(t.TempDir(), "bdb.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.ResetSchema(context.Background()); err != nil {
		t.Fatalf("ResetSchema() error = %v", err)
	}
	return db
}

func dimensionDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, GamesFile, gamesCSV)
	writeFile(t, dir, PlayersFile, playersCSV)
	writeFile(t, dir, PlaysFile, playsCSV)
	return dir
}

func TestDimensionLoaderLoadAll(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	dir := dimensionDir(t)

	lookup, res, err := NewDimensionLoader(db).LoadAll(ctx, db.DB(), dir)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if res != (DimensionResult{Games: 2, Players: 3, Plays: 3}) {
		t.Errorf("LoadAll() = %+v", res)
	}
	if lookup.Len() != 2 {
		t.Errorf("lookup.Len() = %d, want 2", lookup.Len())
	}
	if teams, ok := lookup.Teams(2022090800); !ok || teams != (store.GameTeams{Home: "LA", Away: "BUF"}) {
		t.Errorf("Teams(2022090800) = %+v, %v", teams, ok)
	}

	game, err := repository.NewGameRepository(db).GetByID(ctx, 2022091100)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if game.AwayScore.Valid || game.HomeScore.Int64 != 26 || game.Stadium.Valid {
		t.Errorf("game = %+v, want away_score and stadium NULL", game)
	}

	play, err := repository.NewPlayRepository(db).Get(ctx, 2022090800, 56)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if play.Description.String != "(15:00) J.Allen pass short right to S.Diggs, for 3 yards." {
		t.Errorf("description = %q", play.Description.String)
	}
	if play.OffenseTeam.String != "BUF" || play.DefenseTeam.String != "LA" || play.PlayResult.Int64 != 3 {
		t.Errorf("play = %+v", play)
	}
	if play.PlayDirection.Valid || play.FrameCount.Valid {
		t.Errorf("play_direction/frame_count should be NULL: %+v", play)
	}
	kickoff, err := repository.NewPlayRepository(db).Get(ctx, 2022091100, 10)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if kickoff.Down.Valid || kickoff.YardlineSide.Valid || kickoff.PlayResult.Int64 != 5 {
		t.Errorf("kickoff = %+v", kickoff)
	}

	player, err := repository.NewPlayerRepository(db).GetByID(ctx, 42392)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if player.Weight.Valid || player.Position.Valid || player.JerseyNumber.Valid || player.Height.String != "6-1" {
		t.Errorf("player = %+v", player)
	}
}

func TestDimensionLoaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"missing games file", func(t *testing.T, dir string) {
			writeFile(t, dir, PlayersFile, playersCSV)
			writeFile(t, dir, PlaysFile, playsCSV)
		}},
		{"missing plays file", func(t *testing.T, dir string) {
			writeFile(t, dir, GamesFile, gamesCSV)
			writeFile(t, dir, PlayersFile, playersCSV)
		}},
		{"missing required column", func(t *testing.T, dir string) {
			writeFile(t, dir, GamesFile, "gameId,season,week,gameDate,homeTeamAbbr\n1,2022,1,x,LA\n")
			writeFile(t, dir, PlayersFile, playersCSV)
			writeFile(t, dir, PlaysFile, playsCSV)
		}},
		{"bad key", func(t *testing.T, dir string) {
			writeFile(t, dir, GamesFile, gamesCSV)
			writeFile(t, dir, PlayersFile, "nflId,displayName\nabc,Nobody\n")
			writeFile(t, dir, PlaysFile, playsCSV)
		}},
		{"empty file", func(t *testing.T, dir string) {
			writeFile(t, dir, GamesFile, "")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestStore(t)
			dir := t.TempDir()
			tt.setup(t, dir)

			_, _, err := NewDimensionLoader(db).LoadAll(context.Background(), db.DB(), dir)
			if !errors.Is(err, ErrDimensionLoad) {
				t.Errorf("LoadAll() error = %v, want ErrDimensionLoad", err)
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	dir := dimensionDir(t)
	writeFile(t, dir, TrackingFile(1), week1CSV)
	writeGzip(t, dir, TrackingFile(3)+".gz", week3CSV)

	if err := CheckDimensions(dir); err != nil {
		t.Fatalf("CheckDimensions() error = %v", err)
	}
	res, err := Preflight(dir, 3)
	if err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if len(res.Dimensions) != 3 || len(res.Tracking) != 2 || len(res.Missing) != 1 || res.Missing[0] != TrackingFile(2) {
		t.Errorf("Preflight() = %+v", res)
	}

	writeFile(t, dir, TrackingFile(2), "gameId,playId\n")
	if _, err := Preflight(dir, 3); !errors.Is(err, ErrMalformedSource) {
		t.Errorf("Preflight() with bad header error = %v, want ErrMalformedSource", err)
	}

	if err := os.Remove(filepath.Join(dir, PlayersFile)); err != nil {
		t.Fatal(err)
	}
	if err := CheckDimensions(dir); !errors.Is(err, ErrDimensionLoad) {
		t.Errorf("CheckDimensions() error = %v, want ErrDimensionLoad", err)
	}
}

type recordingProgress struct {
	started   []string
	skipped   []string
	batches   []BatchReport
	completed []SourceResult
}

func (p *recordingProgress) OnSourceStart(source string, _, _ int) {
	p.started = append(p.started, source)
}
func (p *recordingProgress) OnBatch(r BatchReport)         { p.batches = append(p.batches, r) }
func (p *recordingProgress) OnSourceSkipped(source string) { p.skipped = append(p.skipped, source) }
func (p *recordingProgress) OnSourceComplete(r SourceResult) {
	p.completed = append(p.completed, r)
}

func loadTracking(t *testing.T, db *store.Database, dir string, policy repository.ConflictPolicy, batch int) (*TrackingLoader, normalize.GameLookup) {
	t.Helper()
	lookup, _, err := NewDimensionLoader(db).LoadAll(context.Background(), db.DB(), dir)
	if err != nil {
		t.Fatalf("dimensions: %v", err)
	}
	loader := NewTrackingLoader(db, repository.NewFrameRepository(db, policy),
		normalize.New(normalize.DefaultFieldLength, normalize.DefaultFieldWidth, "kaggle"), batch)
	return loader, lookup
}

func TestTrackingLoaderStreamsSources(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	dir := dimensionDir(t)
	writeFile(t, dir, TrackingFile(1), week1CSV)
	writeGzip(t, dir, TrackingFile(3)+".gz", week3CSV)

	const batchSize = 2
	loader, lookup := loadTracking(t, db, dir, repository.ConflictFail, batchSize)
	progress := &recordingProgress{}
	loader.SetProgress(progress)

	res, err := loader.LoadAll(ctx, dir, 3, lookup)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	if res.Loaded != 2 || res.Skipped != 1 || res.Rows != 7 || res.Stored != 7 {
		t.Errorf("result = %+v", res)
	}
	if res.Coerced != 3 || res.UnknownTeam != 1 || res.Duplicates != 0 {
		t.Errorf("coerced/unknown/duplicates = %d/%d/%d, want 3/1/0", res.Coerced, res.UnknownTeam, res.Duplicates)
	}
	if len(progress.skipped) != 1 || progress.skipped[0] != TrackingFile(2) {
		t.Errorf("skipped = %v", progress.skipped)
	}
	if len(progress.started) != 2 || len(progress.completed) != 2 {
		t.Errorf("started = %v, completed = %d", progress.started, len(progress.completed))
	}
	if got := res.Sources[0].Batches; got != 3 {
		t.Errorf("week 1 batches = %d, want 3", got)
	}
	for _, b := range progress.batches {
		if b.Rows > batchSize {
			t.Errorf("batch %s/%d has %d rows, want <= %d", b.Source, b.Batch, b.Rows, batchSize)
		}
	}
	if cap(loader.raw) > batchSize || cap(loader.out) > batchSize {
		t.Errorf("buffer capacity raw=%d out=%d exceeds batch size %d", cap(loader.raw), cap(loader.out), batchSize)
	}

	frames, err := repository.NewFrameRepository(db, repository.ConflictFail).ListByPlay(ctx, 2022090800, 56)
	if err != nil {
		t.Fatalf("ListByPlay() error = %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("ListByPlay() returned %d frames, want 4", len(frames))
	}

	ball := frames[0]
	if ball.NflID != store.BallEntityID || ball.Team != store.RoleBall || ball.X != 60 || ball.Y != 26.65 {
		t.Errorf("ball = %+v", ball)
	}
	saffold := frames[1]
	if saffold.NflID != 35472 || saffold.Team != store.RoleHome || saffold.X != 100 || saffold.Y != 43.3 ||
		saffold.Direction != 270 || saffold.VY != -5 || saffold.JerseyNumber.Int64 != 76 ||
		saffold.Event.String != "huddle_break_offense" || saffold.Source != "kaggle" {
		t.Errorf("saffold = %+v", saffold)
	}
	if frames[2].Team != store.RoleUnknown {
		t.Errorf("unknown club team = %q", frames[2].Team)
	}
	if frames[3].Speed != 0 || frames[3].Accel != 0 {
		t.Errorf("coerced row = %+v", frames[3])
	}
}

func TestTrackingLoaderDuplicatePolicy(t *testing.T) {
	dup := trackingHeader +
		"2022090800,56,35472,Rodger Saffold,1,BEFORE_SNAP,t,76,LA,right,20,10,5,1,0,45,90,NA\n" +
		"2022090800,56,35472,Rodger Saffold,1,BEFORE_SNAP,t,76,LA,right,20,10,5,1,0,45,90,NA\n"

	t.Run("fail", func(t *testing.T) {
		db := newTestStore(t)
		dir := dimensionDir(t)
		writeFile(t, dir, TrackingFile(1), dup)
		loader, lookup := loadTracking(t, db, dir, repository.ConflictFail, 10)

		_, err := loader.LoadAll(context.Background(), dir, 1, lookup)
		if !errors.Is(err, store.ErrDuplicateFrame) {
			t.Fatalf("LoadAll() error = %v, want ErrDuplicateFrame", err)
		}
		s, _ := db.Counts(context.Background())
		if s.Frames != 0 {
			t.Errorf("frames = %d after failed source, want 0", s.Frames)
		}
	})

	t.Run("ignore", func(t *testing.T) {
		db := newTestStore(t)
		dir := dimensionDir(t)
		writeFile(t, dir, TrackingFile(1), dup)
		loader, lookup := loadTracking(t, db, dir, repository.ConflictIgnore, 10)

		res, err := loader.LoadAll(context.Background(), dir, 1, lookup)
		if err != nil {
			t.Fatalf("LoadAll() error = %v", err)
		}
		if res.Rows != 2 || res.Stored != 1 || res.Duplicates != 1 {
			t.Errorf("rows/stored/duplicates = %d/%d/%d, want 2/1/1", res.Rows, res.Stored, res.Duplicates)
		}
	})
}

func TestTrackingLoaderUnreadableEntityID(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	dir := dimensionDir(t)
	writeFile(t, dir, TrackingFile(1), trackingHeader+
		"2022090800,56,NA,football,1,BEFORE_SNAP,t,NA,football,right,60,26,0,0,0,NA,NA,NA\n"+
		"2022090800,56,35472x,Rodger Saffold,1,BEFORE_SNAP,t,76,LA,right,20,10,5,1,0,45,90,NA\n"+
		"2022090800,56,42392,Someone Else,1,BEFORE_SNAP,t,99,BUF,right,50,20,1,0,0,0,0,NA\n")
	loader, lookup := loadTracking(t, db, dir, repository.ConflictFail, 10)

	res, err := loader.LoadAll(ctx, dir, 1, lookup)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if res.Rows != 3 || res.Stored != 2 || res.Rejected != 1 || res.Duplicates != 0 {
		t.Errorf("rows/stored/rejected/duplicates = %d/%d/%d/%d, want 3/2/1/0",
			res.Rows, res.Stored, res.Rejected, res.Duplicates)
	}
	// The ball row misses its angles; the unreadable id is counted too.
	if res.Coerced != 2 {
		t.Errorf("coerced = %d, want 2", res.Coerced)
	}

	frames, err := repository.NewFrameRepository(db, repository.ConflictFail).ListByPlay(ctx, 2022090800, 56)
	if err != nil {
		t.Fatalf("ListByPlay() error = %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	for _, f := range frames {
		if f.IsBall() != (f.Team == store.RoleBall) {
			t.Errorf("entity %d has team %q", f.NflID, f.Team)
		}
	}
}

func TestTrackingIndexEntityID(t *testing.T) {
	src := &csvSource{pos: map[string]int{"nfl_id": 0}}
	ix := newTrackingIndex(src)

	tests := []struct {
		cell    string
		valid   bool
		badFlag bool
	}{
		{"35472", true, false},
		{"35472.0", true, false},
		{"NA", false, false},
		{"", false, false},
		{"35472x", false, true},
	}
	for _, tt := range tests {
		r := ix.parse([]string{tt.cell})
		if r.NflID.Valid != tt.valid || r.BadEntity != tt.badFlag {
			t.Errorf("parse(%q) valid=%v bad=%v, want %v %v", tt.cell, r.NflID.Valid, r.BadEntity, tt.valid, tt.badFlag)
		}
	}
}

func TestTrackingLoaderMalformedSource(t *testing.T) {
	db := newTestStore(t)
	dir := dimensionDir(t)
	writeFile(t, dir, TrackingFile(1), "gameId,playId,frameId\n1,1,1\n")
	loader, lookup := loadTracking(t, db, dir, repository.ConflictFail, 10)

	_, err := loader.LoadAll(context.Background(), dir, 1, lookup)
	if !errors.Is(err, ErrMalformedSource) {
		t.Errorf("LoadAll() error = %v, want ErrMalformedSource", err)
	}
}

func TestTrackingLoaderCancelled(t *testing.T) {
	db := newTestStore(t)
	dir := dimensionDir(t)
	writeFile(t, dir, TrackingFile(1), week1CSV)
	loader, lookup := loadTracking(t, db, dir, repository.ConflictFail, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loader.LoadAll(ctx, dir, 1, lookup); !errors.Is(err, context.Canceled) {
		t.Errorf("LoadAll() error = %v, want context.Canceled", err)
	}
}

func TestParseHelpers(t *testing.T) {
	intTests := []struct {
		in   string
		want sql.NullInt64
	}{
		{"42", sql.NullInt64{Int64: 42, Valid: true}},
		{" 76.0 ", sql.NullInt64{Int64: 76, Valid: true}},
		{"76.5", sql.NullInt64{}},
		{"NA", sql.NullInt64{}},
		{"", sql.NullInt64{}},
		{"abc", sql.NullInt64{}},
	}
	for _, tt := range intTests {
		if got := nullInt(tt.in); got != tt.want {
			t.Errorf("nullInt(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	floatTests := []struct {
		in   string
		want sql.NullFloat64
	}{
		{"88.37", sql.NullFloat64{Float64: 88.37, Valid: true}},
		{"NaN", sql.NullFloat64{}},
		{"inf", sql.NullFloat64{}},
		{"x", sql.NullFloat64{}},
	}
	for _, tt := range floatTests {
		if got := nullFloat(tt.in); got != tt.want {
			t.Errorf("nullFloat(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	if got := nullString(" NA "); got.Valid {
		t.Errorf("nullString(NA) = %+v, want NULL", got)
	}
}
