package bdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/normalize"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// DefaultBatchSize is the number of tracking rows read, normalized, and
// written at a time.
const DefaultBatchSize = 500_000

// ErrMalformedSource marks a tracking file whose header or CSV structure
// cannot be read.
var ErrMalformedSource = errors.New("malformed tracking source")

// BatchReport describes one written batch.
type BatchReport struct {
	Source     string
	Batch      int
	Rows       int
	Stored     int64
	SourceRows int64
	Stats      normalize.BatchStats
	Duration   time.Duration
}

// SourceResult summarizes one tracking source.
type SourceResult struct {
	Source      string        `json:"source"`
	Skipped     bool          `json:"skipped"`
	Batches     int           `json:"batches"`
	Rows        int64         `json:"rows"`
	Stored      int64         `json:"stored"`
	Duplicates  int64         `json:"duplicates"`
	Coerced     int64         `json:"coerced"`
	UnknownTeam int64         `json:"unknown_team"`
	Mirrored    int64         `json:"mirrored"`
	Rejected    int64         `json:"rejected"`
	Duration    time.Duration `json:"duration"`
}

// TrackingResult sums all sources of a run.
type TrackingResult struct {
	Sources     []SourceResult `json:"sources"`
	Loaded      int            `json:"loaded"`
	Skipped     int            `json:"skipped"`
	Rows        int64          `json:"rows"`
	Stored      int64          `json:"stored"`
	Duplicates  int64          `json:"duplicates"`
	Coerced     int64          `json:"coerced"`
	UnknownTeam int64          `json:"unknown_team"`
	Rejected    int64          `json:"rejected"`
}

func (r *TrackingResult) add(s SourceResult) {
	r.Sources = append(r.Sources, s)
	if s.Skipped {
		r.Skipped++
		return
	}
	r.Loaded++
	r.Rows += s.Rows
	r.Stored += s.Stored
	r.Duplicates += s.Duplicates
	r.Coerced += s.Coerced
	r.UnknownTeam += s.UnknownTeam
	r.Rejected += s.Rejected
}

// Progress receives tracking load callbacks. All methods are called from the
// loading goroutine.
type Progress interface {
	OnSourceStart(source string, index, total int)
	OnBatch(report BatchReport)
	OnSourceSkipped(source string)
	OnSourceComplete(result SourceResult)
}

// TrackingLoader streams tracking files into the frames table in fixed-size
// batches. Its buffers are reused across batches and sources, so a loader
// must not be shared between goroutines.
type TrackingLoader struct {
	db        *store.Database
	frames    *repository.FrameRepository
	norm      *normalize.Normalizer
	batchSize int
	progress  Progress

	raw []normalize.RawFrame
	out []store.Frame
}

// NewTrackingLoader creates a loader. A non-positive batchSize uses
// DefaultBatchSize.
func NewTrackingLoader(db *store.Database, frames *repository.FrameRepository, norm *normalize.Normalizer, batchSize int) *TrackingLoader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &TrackingLoader{
		db:        db,
		frames:    frames,
		norm:      norm,
		batchSize: batchSize,
	}
}

// SetProgress installs a progress receiver. nil disables callbacks.
func (l *TrackingLoader) SetProgress(p Progress) {
	l.progress = p
}

// BatchSize returns the configured batch size.
func (l *TrackingLoader) BatchSize() int {
	return l.batchSize
}

// LoadAll loads tracking_week_1 through tracking_week_weeks from dir. Absent
// weeks are skipped and counted.
func (l *TrackingLoader) LoadAll(ctx context.Context, dir string, weeks int, lookup normalize.GameLookup) (TrackingResult, error) {
	var res TrackingResult
	for week := 1; week <= weeks; week++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := TrackingFile(week)
		path, ok := resolveSource(dir, name)
		if !ok {
			logging.Info().Str("source", name).Msg("Tracking source not found, skipping")
			if l.progress != nil {
				l.progress.OnSourceSkipped(name)
			}
			res.add(SourceResult{Source: name, Skipped: true})
			continue
		}

		if l.progress != nil {
			l.progress.OnSourceStart(name, week, weeks)
		}
		sr, err := l.LoadSource(ctx, path, lookup)
		if err != nil {
			return res, err
		}
		res.add(sr)
	}

	logging.Info().
		Int("loaded", res.Loaded).
		Int("skipped", res.Skipped).
		Int64("rows", res.Rows).
		Int64("stored", res.Stored).
		Msg("✓ Tracking sources loaded")
	return res, nil
}

// LoadSource loads one tracking file inside a single transaction, committed
// once the whole file is written.
func (l *TrackingLoader) LoadSource(ctx context.Context, path string, lookup normalize.GameLookup) (SourceResult, error) {
	started := time.Now()
	res := SourceResult{Source: filepath.Base(path)}

	src, err := openCSV(path, trackingColumns)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrMalformedSource, path, err)
	}
	defer src.Close()
	idx := newTrackingIndex(src)

	if cap(l.raw) < l.batchSize {
		l.raw = make([]normalize.RawFrame, 0, l.batchSize)
	}
	if cap(l.out) < l.batchSize {
		l.out = make([]store.Frame, 0, l.batchSize)
	}

	err = l.db.InTx(ctx, func(tx *sql.Tx) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			batchStart := time.Now()
			n, err := l.readBatch(src, idx)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrMalformedSource, path, err)
			}
			if n == 0 {
				return nil
			}

			var stats normalize.BatchStats
			l.out, stats = l.norm.NormalizeInto(l.out, l.raw, lookup)

			stored, err := l.frames.AppendBatch(ctx, tx, l.out)
			if err != nil {
				return fmt.Errorf("%s batch %d: %w", res.Source, res.Batches+1, err)
			}

			res.Batches++
			res.Rows += int64(n)
			res.Stored += stored
			res.Duplicates += int64(len(l.out)) - stored
			res.Coerced += int64(stats.Coerced)
			res.UnknownTeam += int64(stats.UnknownTeam)
			res.Mirrored += int64(stats.Mirrored)
			res.Rejected += int64(stats.Rejected)

			if stats.Rejected > 0 {
				logging.Warn().
					Str("source", res.Source).
					Int("batch", res.Batches).
					Int("rejected", stats.Rejected).
					Msg("Dropped rows with unreadable entity ids")
			}
			logging.Debug().
				Str("source", res.Source).
				Int("batch", res.Batches).
				Int("rows", n).
				Int64("source_rows", res.Rows).
				Msg("Batch written")
			if l.progress != nil {
				l.progress.OnBatch(BatchReport{
					Source:     res.Source,
					Batch:      res.Batches,
					Rows:       n,
					Stored:     stored,
					SourceRows: res.Rows,
					Stats:      stats,
					Duration:   time.Since(batchStart),
				})
			}

			if n < l.batchSize {
				return nil
			}
		}
	})
	if err != nil {
		return res, err
	}

	res.Duration = time.Since(started)
	logging.Info().
		Str("source", res.Source).
		Int64("rows", res.Rows).
		Int64("coerced", res.Coerced).
		Int64("unknown_team", res.UnknownTeam).
		Int64("duplicates", res.Duplicates).
		Int64("rejected", res.Rejected).
		Dur("duration", res.Duration).
		Msg("✓ Tracking source loaded")
	if l.progress != nil {
		l.progress.OnSourceComplete(res)
	}
	return res, nil
}

// readBatch refills l.raw with up to batchSize rows and returns how many were
// read. Zero means the source is exhausted.
func (l *TrackingLoader) readBatch(src *csvSource, idx trackingIndex) (int, error) {
	l.raw = l.raw[:0]
	for len(l.raw) < l.batchSize {
		rec, err := src.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		l.raw = append(l.raw, idx.parse(rec))
	}
	return len(l.raw), nil
}

// trackingIndex holds the record position of every tracking column; -1 marks
// an absent optional column.
type trackingIndex struct {
	gameID, playID, frameID, nflID   int
	displayName, jersey, club, event int
	playDirection                    int
	x, y, s, a, o, dir               int
}

func newTrackingIndex(src *csvSource) trackingIndex {
	return trackingIndex{
		gameID:        src.index("game_id"),
		playID:        src.index("play_id"),
		frameID:       src.index("frame_id"),
		nflID:         src.index("nfl_id"),
		displayName:   src.index("display_name"),
		jersey:        src.index("jersey_number"),
		club:          src.index("team"),
		event:         src.index("event"),
		playDirection: src.index("play_direction"),
		x:             src.index("x"),
		y:             src.index("y"),
		s:             src.index("speed"),
		a:             src.index("accel"),
		o:             src.index("orientation"),
		dir:           src.index("direction"),
	}
}

func (ix trackingIndex) parse(rec []string) normalize.RawFrame {
	gameID, okGame := requiredInt(field(rec, ix.gameID))
	playID, okPlay := requiredInt(field(rec, ix.playID))
	frameID, okFrame := requiredInt(field(rec, ix.frameID))

	rawNflID := strings.TrimSpace(field(rec, ix.nflID))
	nflID := nullInt(rawNflID)

	club := strings.TrimSpace(field(rec, ix.club))
	if isNA(club) {
		club = ""
	}

	return normalize.RawFrame{
		GameID:        gameID,
		PlayID:        playID,
		FrameID:       frameID,
		NflID:         nflID,
		DisplayName:   nullString(field(rec, ix.displayName)),
		JerseyNumber:  nullInt(field(rec, ix.jersey)),
		Club:          club,
		PlayDirection: strings.TrimSpace(field(rec, ix.playDirection)),
		X:             nullFloat(field(rec, ix.x)),
		Y:             nullFloat(field(rec, ix.y)),
		Speed:         nullFloat(field(rec, ix.s)),
		Accel:         nullFloat(field(rec, ix.a)),
		Orientation:   nullFloat(field(rec, ix.o)),
		Direction:     nullFloat(field(rec, ix.dir)),
		Event:         nullString(field(rec, ix.event)),
		Malformed:     !okGame || !okPlay || !okFrame,
		BadEntity:     !nflID.Valid && !isNA(rawNflID),
	}
}
