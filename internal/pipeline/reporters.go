package pipeline

import (
	"context"
	"time"

	"github.com/fortuna/metapitch/internal/ingest/bdb"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/metrics"
	"github.com/fortuna/metapitch/internal/publisher"
)

// MultiReporter fans callbacks out to every reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) OnRunStart(runID string, opts Options) {
	for _, r := range m {
		r.OnRunStart(runID, opts)
	}
}

func (m MultiReporter) OnStageStart(stage Stage) {
	for _, r := range m {
		r.OnStageStart(stage)
	}
}

func (m MultiReporter) OnStageComplete(stage Stage, elapsed time.Duration) {
	for _, r := range m {
		r.OnStageComplete(stage, elapsed)
	}
}

func (m MultiReporter) OnRunComplete(summary *Summary) {
	for _, r := range m {
		r.OnRunComplete(summary)
	}
}

func (m MultiReporter) OnRunError(err error) {
	for _, r := range m {
		r.OnRunError(err)
	}
}

func (m MultiReporter) OnSourceStart(source string, index, total int) {
	for _, r := range m {
		r.OnSourceStart(source, index, total)
	}
}

func (m MultiReporter) OnBatch(report bdb.BatchReport) {
	for _, r := range m {
		r.OnBatch(report)
	}
}

func (m MultiReporter) OnSourceSkipped(source string) {
	for _, r := range m {
		r.OnSourceSkipped(source)
	}
}

func (m MultiReporter) OnSourceComplete(result bdb.SourceResult) {
	for _, r := range m {
		r.OnSourceComplete(result)
	}
}

// MetricsReporter records ingest metrics.
type MetricsReporter struct {
	nopReporter
}

func (MetricsReporter) OnBatch(r bdb.BatchReport) {
	metrics.RecordBatch(r.Source, r.Rows, r.Stats.Coerced, r.Stats.UnknownTeam, r.Rows-r.Stats.Rejected-int(r.Stored), r.Duration)
}

func (MetricsReporter) OnSourceSkipped(string) { metrics.RecordSkippedSource() }
func (MetricsReporter) OnRunComplete(*Summary) { metrics.RecordRun(nil) }
func (MetricsReporter) OnRunError(err error)   { metrics.RecordRun(err) }

// EventReporter publishes run lifecycle events. Publish failures are logged
// and never affect the run.
type EventReporter struct {
	nopReporter
	pub     publisher.Publisher
	runID   string
	timeout time.Duration
}

// NewEventReporter creates a reporter publishing through pub.
func NewEventReporter(pub publisher.Publisher) *EventReporter {
	return &EventReporter{pub: pub, timeout: 2 * time.Second}
}

func (e *EventReporter) publish(typ, source string, data any) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	ev := publisher.Event{Type: typ, RunID: e.runID, Source: source, Data: data, Timestamp: time.Now().UTC()}
	if err := e.pub.Publish(ctx, ev); err != nil {
		logging.Warn().Err(err).Str("event", typ).Msg("Failed to publish run event")
	}
}

func (e *EventReporter) OnRunStart(runID string, opts Options) {
	e.runID = runID
	e.publish(publisher.EventRunStarted, "", map[string]any{
		"data_dir":   opts.DataDir,
		"weeks":      opts.Weeks,
		"batch_size": opts.BatchSize,
	})
}

func (e *EventReporter) OnSourceSkipped(source string) {
	e.publish(publisher.EventSourceSkipped, source, nil)
}

func (e *EventReporter) OnSourceComplete(result bdb.SourceResult) {
	e.publish(publisher.EventSourceCompleted, result.Source, result)
}

func (e *EventReporter) OnRunComplete(summary *Summary) {
	e.publish(publisher.EventRunCompleted, "", summary.Tables)
}

func (e *EventReporter) OnRunError(err error) {
	e.publish(publisher.EventRunFailed, "", map[string]string{"error": err.Error()})
}
