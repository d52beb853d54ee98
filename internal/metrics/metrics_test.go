package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBatch(t *testing.T) {
	source := "tracking_week_test.csv"
	RecordBatch(source, 100, 3, 2, 0, 250*time.Millisecond)
	RecordBatch(source, 50, 1, 0, 4, time.Second)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"rows", IngestRowsTotal.WithLabelValues(source), 150},
		{"coerced", IngestCoercedRowsTotal.WithLabelValues(source), 4},
		{"unknown team", IngestUnknownTeamRowsTotal.WithLabelValues(source), 2},
		{"duplicates", IngestDuplicateRowsTotal.WithLabelValues(source), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestRecordRun(t *testing.T) {
	before := map[string]float64{}
	for _, s := range []string{"success", "failed", "canceled"} {
		before[s] = testutil.ToFloat64(IngestRunsTotal.WithLabelValues(s))
	}

	RecordRun(nil)
	RecordRun(errors.New("boom"))
	RecordRun(fmt.Errorf("load: %w", context.Canceled))

	for _, s := range []string{"success", "failed", "canceled"} {
		if got := testutil.ToFloat64(IngestRunsTotal.WithLabelValues(s)) - before[s]; got != 1 {
			t.Errorf("runs{status=%q} delta = %v, want 1", s, got)
		}
	}
	if testutil.ToFloat64(IngestLastSuccess) == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("GET", "/api/v1/games", 200, 5*time.Millisecond)
	RecordAPIRequest("GET", "/api/v1/games", 200, 5*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/games", "200")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
}

func TestCacheAndStreamGauges(t *testing.T) {
	hits := testutil.ToFloat64(PlayCacheLookups.WithLabelValues("hit"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	if got := testutil.ToFloat64(PlayCacheLookups.WithLabelValues("hit")) - hits; got != 1 {
		t.Errorf("hit delta = %v, want 1", got)
	}

	TrackPlaybackStream(true)
	TrackPlaybackStream(true)
	TrackPlaybackStream(false)
	if got := testutil.ToFloat64(PlaybackStreamsActive); got != 1 {
		t.Errorf("active streams = %v, want 1", got)
	}
	TrackPlaybackStream(false)
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer,
		"metapitch_ingest_rows_total", "metapitch_api_requests_total")
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}
