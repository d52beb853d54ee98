// Package metrics exposes Prometheus instrumentation for ingest runs and the
// read API.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest Metrics
	IngestRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapitch_ingest_rows_total",
			Help: "Tracking rows read, by source file",
		},
		[]string{"source"},
	)

	IngestCoercedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapitch_ingest_coerced_rows_total",
			Help: "Tracking rows with a missing or malformed numeric field set to zero",
		},
		[]string{"source"},
	)

	IngestUnknownTeamRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapitch_ingest_unknown_team_rows_total",
			Help: "Tracking rows whose club matched neither team of the game",
		},
		[]string{"source"},
	)

	IngestDuplicateRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapitch_ingest_duplicate_rows_total",
			Help: "Tracking rows dropped as duplicate frame keys",
		},
		[]string{"source"},
	)

	IngestSkippedSourcesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metapitch_ingest_skipped_sources_total",
			Help: "Expected tracking sources that were absent",
		},
	)

	IngestBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metapitch_ingest_batch_duration_seconds",
			Help:    "Time to read, normalize, and write one tracking batch",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapitch_ingest_runs_total",
			Help: "Completed ingest runs by outcome",
		},
		[]string{"status"},
	)

	IngestLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metapitch_ingest_last_success_timestamp",
			Help: "Unix time of the last successful ingest run",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapitch_api_requests_total",
			Help: "API requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metapitch_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PlayCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapitch_play_cache_lookups_total",
			Help: "Play payload cache lookups by result",
		},
		[]string{"result"},
	)

	PlaybackStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metapitch_playback_streams_active",
			Help: "Open play playback websocket streams",
		},
	)
)

// RecordBatch records one written tracking batch.
func RecordBatch(source string, rows, coerced, unknownTeam, duplicates int, duration time.Duration) {
	IngestRowsTotal.WithLabelValues(source).Add(float64(rows))
	IngestCoercedRowsTotal.WithLabelValues(source).Add(float64(coerced))
	IngestUnknownTeamRowsTotal.WithLabelValues(source).Add(float64(unknownTeam))
	if duplicates > 0 {
		IngestDuplicateRowsTotal.WithLabelValues(source).Add(float64(duplicates))
	}
	IngestBatchDuration.Observe(duration.Seconds())
}

// RecordSkippedSource counts an absent tracking source.
func RecordSkippedSource() {
	IngestSkippedSourcesTotal.Inc()
}

// RecordRun records the outcome of an ingest run.
func RecordRun(err error) {
	switch {
	case err == nil:
		IngestRunsTotal.WithLabelValues("success").Inc()
		IngestLastSuccess.Set(float64(time.Now().Unix()))
	case errors.Is(err, context.Canceled):
		IngestRunsTotal.WithLabelValues("canceled").Inc()
	default:
		IngestRunsTotal.WithLabelValues("failed").Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCacheLookup counts a play cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		PlayCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	PlayCacheLookups.WithLabelValues("miss").Inc()
}

// TrackPlaybackStream tracks open playback streams
func TrackPlaybackStream(open bool) {
	if open {
		PlaybackStreamsActive.Inc()
	} else {
		PlaybackStreamsActive.Dec()
	}
}
