// Package pipeline drives a full rebuild of the tracking store: schema,
// dimensions, tracking sources, postprocessing, and reconciliation.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fortuna/metapitch/internal/ingest/bdb"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/normalize"
	"github.com/fortuna/metapitch/internal/reconciliation"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// Runner executes rebuilds against one store.
type Runner struct {
	db         *store.Database
	opts       Options
	dimensions *bdb.DimensionLoader
	tracking   *bdb.TrackingLoader
	reconciler *reconciliation.Engine
}

// NewRunner wires the loaders for opts.
func NewRunner(db *store.Database, opts Options) *Runner {
	if opts.OnConflict == "" {
		opts.OnConflict = repository.ConflictFail
	}
	norm := normalize.New(opts.FieldLength, opts.FieldWidth, opts.Source)
	frames := repository.NewFrameRepository(db, opts.OnConflict)

	return &Runner{
		db:         db,
		opts:       opts,
		dimensions: bdb.NewDimensionLoader(db),
		tracking:   bdb.NewTrackingLoader(db, frames, norm, opts.BatchSize),
		reconciler: reconciliation.NewEngine(db),
	}
}

// Run rebuilds the store from scratch, reporting progress via the Reporter
// if provided. An interrupted run leaves a valid but partial store; rerun to
// recover.
func (r *Runner) Run(ctx context.Context, reporter Reporter) (*Summary, error) {
	started := time.Now()
	summary := &Summary{RunID: uuid.NewString()}

	if reporter == nil {
		reporter = nopReporter{}
	}
	r.tracking.SetProgress(reporter)
	reporter.OnRunStart(summary.RunID, r.opts)

	fail := func(err error) (*Summary, error) {
		reporter.OnRunError(err)
		return summary, err
	}

	if info, err := os.Stat(r.opts.DataDir); err != nil || !info.IsDir() {
		return fail(fmt.Errorf("%w: data directory %s not found", bdb.ErrDimensionLoad, r.opts.DataDir))
	}

	if r.opts.DryRun {
		pf, err := bdb.Preflight(r.opts.DataDir, r.opts.Weeks)
		if err != nil {
			return fail(err)
		}
		summary.Preflight = &pf
		logging.Info().
			Str("data_dir", r.opts.DataDir).
			Strs("tracking", pf.Tracking).
			Strs("missing", pf.Missing).
			Msg("Dry-run mode: inputs readable, no data will be written")
		summary.Duration = time.Since(started)
		reporter.OnRunComplete(summary)
		return summary, nil
	}

	// The schema is only dropped once every reference file is known to exist.
	if err := bdb.CheckDimensions(r.opts.DataDir); err != nil {
		return fail(err)
	}

	stage := func(s Stage, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		reporter.OnStageStart(s)
		t := time.Now()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
		reporter.OnStageComplete(s, time.Since(t))
		return nil
	}

	var lookup normalize.GameLookup

	err := stage(StageSchema, func() error {
		return r.db.ResetSchema(ctx)
	})
	if err == nil {
		err = stage(StageDimensions, func() error {
			return r.db.InTx(ctx, func(tx *sql.Tx) error {
				var err error
				lookup, summary.Dimensions, err = r.dimensions.LoadAll(ctx, tx, r.opts.DataDir)
				return err
			})
		})
	}
	if err == nil {
		err = stage(StageTracking, func() error {
			var err error
			summary.Tracking, err = r.tracking.LoadAll(ctx, r.opts.DataDir, r.opts.Weeks, lookup)
			return err
		})
	}
	if err == nil {
		err = stage(StagePostprocess, func() error {
			var err error
			summary.Postprocess, err = r.db.Postprocess(ctx)
			return err
		})
	}
	if err == nil {
		err = stage(StageReconcile, func() error {
			var err error
			summary.Reconciliation, err = r.reconciler.Run(ctx)
			return err
		})
	}
	if err != nil {
		return fail(err)
	}

	if summary.Tables, err = r.db.Counts(ctx); err != nil {
		return fail(err)
	}
	summary.Duration = time.Since(started)

	logging.Info().
		Str("run_id", summary.RunID).
		Int64("games", summary.Tables.Games).
		Int64("players", summary.Tables.Players).
		Int64("plays", summary.Tables.Plays).
		Int64("frames", summary.Tables.Frames).
		Dur("duration", summary.Duration).
		Msg("✓ Rebuild complete")
	reporter.OnRunComplete(summary)
	return summary, nil
}

type nopReporter struct{}

func (nopReporter) OnRunStart(string, Options)           {}
func (nopReporter) OnStageStart(Stage)                   {}
func (nopReporter) OnStageComplete(Stage, time.Duration) {}
func (nopReporter) OnRunComplete(*Summary)               {}
func (nopReporter) OnRunError(error)                     {}
func (nopReporter) OnSourceStart(string, int, int)       {}
func (nopReporter) OnBatch(bdb.BatchReport)              {}
func (nopReporter) OnSourceSkipped(string)               {}
func (nopReporter) OnSourceComplete(bdb.SourceResult)    {}
