package main

import (
	"time"

	"github.com/fortuna/metapitch/internal/ingest/bdb"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/pipeline"
)

// logReporter writes run progress to the log.
type logReporter struct {
	started time.Time
}

func newLogReporter() *logReporter {
	return &logReporter{}
}

func (l *logReporter) OnRunStart(runID string, opts pipeline.Options) {
	l.started = time.Now()
	logging.Info().
		Str("run_id", runID).
		Str("data_dir", opts.DataDir).
		Int("weeks", opts.Weeks).
		Int("batch_size", opts.BatchSize).
		Str("on_conflict", string(opts.OnConflict)).
		Bool("dry_run", opts.DryRun).
		Msg("Rebuild started")
}

func (l *logReporter) OnStageStart(stage pipeline.Stage) {
	logging.Info().Str("stage", string(stage)).Msg("Stage started")
}

func (l *logReporter) OnStageComplete(stage pipeline.Stage, elapsed time.Duration) {
	logging.Info().Str("stage", string(stage)).Dur("elapsed", elapsed).Msg("✓ Stage complete")
}

func (l *logReporter) OnSourceStart(source string, index, total int) {
	logging.Info().Msgf("[%d/%d] %s", index, total, source)
}

func (l *logReporter) OnBatch(r bdb.BatchReport) {
	logging.Info().
		Str("source", r.Source).
		Int("batch", r.Batch).
		Int64("rows", r.SourceRows).
		Dur("elapsed", time.Since(l.started)).
		Msg("Progress")
}

func (l *logReporter) OnSourceSkipped(source string) {
	logging.Warn().Str("source", source).Msg("Tracking source missing")
}

func (l *logReporter) OnSourceComplete(r bdb.SourceResult) {
	logging.Info().
		Str("source", r.Source).
		Int64("rows", r.Rows).
		Int64("coerced", r.Coerced).
		Int64("unknown_team", r.UnknownTeam).
		Msg("Source complete")
}

func (l *logReporter) OnRunComplete(s *pipeline.Summary) {
	logging.Info().
		Str("run_id", s.RunID).
		Int("sources_loaded", s.Tracking.Loaded).
		Int("sources_skipped", s.Tracking.Skipped).
		Int64("coerced", s.Tracking.Coerced).
		Int64("unknown_team", s.Tracking.UnknownTeam).
		Int64("duplicates", s.Tracking.Duplicates).
		Bool("reconciled", s.Reconciliation.Clean()).
		Msg("Run summary")
}

func (l *logReporter) OnRunError(err error) {
	logging.Error().Err(err).Dur("elapsed", time.Since(l.started)).Msg("Rebuild aborted")
}
