package pipeline

import (
	"time"

	"github.com/fortuna/metapitch/internal/ingest/bdb"
	"github.com/fortuna/metapitch/internal/reconciliation"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// Stage names one step of a rebuild.
type Stage string

const (
	StageSchema      Stage = "schema"
	StageDimensions  Stage = "dimensions"
	StageTracking    Stage = "tracking"
	StagePostprocess Stage = "postprocess"
	StageReconcile   Stage = "reconcile"
)

// Options describes the inputs of a rebuild.
type Options struct {
	DataDir     string
	Weeks       int
	BatchSize   int
	Source      string
	OnConflict  repository.ConflictPolicy
	FieldLength float64
	FieldWidth  float64
	DryRun      bool
}

// Summary is the outcome of a completed run.
type Summary struct {
	RunID          string                  `json:"run_id"`
	Dimensions     bdb.DimensionResult     `json:"dimensions"`
	Tracking       bdb.TrackingResult      `json:"tracking"`
	Postprocess    store.PostprocessResult `json:"postprocess"`
	Reconciliation reconciliation.Report   `json:"reconciliation"`
	Tables         store.Summary           `json:"tables"`
	Preflight      *bdb.PreflightResult    `json:"preflight,omitempty"`
	Duration       time.Duration           `json:"duration"`
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	bdb.Progress
	OnRunStart(runID string, opts Options)
	OnStageStart(stage Stage)
	OnStageComplete(stage Stage, elapsed time.Duration)
	OnRunComplete(summary *Summary)
	OnRunError(err error)
}
