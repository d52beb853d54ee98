// Command ingest rebuilds the tracking store from a dataset directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/fortuna/metapitch/internal/cache"
	"github.com/fortuna/metapitch/internal/config"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/pipeline"
	"github.com/fortuna/metapitch/internal/publisher"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

const (
	appName    = "metapitch-ingest"
	appVersion = "1.0.0"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// flags holds command-line overrides. Only flags the user set are applied.
type flags struct {
	driver     string
	dsn        string
	dataDir    string
	weeks      int
	batchSize  int
	source     string
	onConflict string
	redisURL   string
	logLevel   string
	logFormat  string
	dryRun     bool
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the tracking store from a dataset directory",
		Long: `
Drops and recreates the store schema, loads games, players, and plays, streams
every tracking week into the frames table, then backfills frame counts and
builds the frame indexes. Rerun after an interruption to recover.
`,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(c, &f, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := run(ctx, cfg, f.dryRun)
			if err != nil {
				logging.Error().Err(err).Msg("Rebuild failed")
				return err
			}
			return writeSummary(stdout, summary)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.driver, "driver", "", "storage driver: sqlite or postgres")
	fl.StringVar(&f.dsn, "dsn", "", "database file path or connection string")
	fl.StringVarP(&f.dataDir, "data-dir", "d", "", "dataset directory")
	fl.IntVar(&f.weeks, "weeks", 0, "number of tracking weeks to look for")
	fl.IntVar(&f.batchSize, "batch-size", 0, "tracking rows per batch")
	fl.StringVar(&f.source, "source", "", "provenance tag written on every frame")
	fl.StringVar(&f.onConflict, "on-conflict", "", "duplicate frame policy: fail or ignore")
	fl.StringVar(&f.redisURL, "redis-url", "", "Redis URL for run events and cache flush")
	fl.StringVar(&f.logLevel, "log-level", "", "log level")
	fl.StringVar(&f.logFormat, "log-format", "", "log format: json or console")
	fl.BoolVar(&f.dryRun, "dry-run", false, "check inputs without writing")
	return cmd
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(c *cobra.Command, f *flags, cfg *config.Config) {
	set := c.Flags().Changed
	if set("driver") {
		cfg.Database.Driver = f.driver
	}
	if set("dsn") {
		cfg.Database.DSN = f.dsn
	}
	if set("data-dir") {
		cfg.Ingest.DataDir = f.dataDir
	}
	if set("weeks") {
		cfg.Ingest.Weeks = f.weeks
	}
	if set("batch-size") {
		cfg.Ingest.BatchSize = f.batchSize
	}
	if set("source") {
		cfg.Ingest.SourceTag = f.source
	}
	if set("on-conflict") {
		cfg.Ingest.OnConflict = f.onConflict
	}
	if set("redis-url") {
		cfg.Redis.URL = f.redisURL
	}
	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("log-format") {
		cfg.Logging.Format = f.logFormat
	}
}

func run(ctx context.Context, cfg *config.Config, dryRun bool) (*pipeline.Summary, error) {
	logging.Info().Str("app", appName).Str("version", appVersion).Msg("Starting rebuild")

	db, err := store.NewDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	reporters := pipeline.MultiReporter{newLogReporter(), pipeline.MetricsReporter{}}

	var playCache *cache.RedisCache
	if cfg.Redis.URL != "" && !dryRun {
		pub, err := publisher.NewRedisPublisher(cfg.Redis.URL, cfg.Redis.Stream)
		if err != nil {
			logging.Warn().Err(err).Msg("Run events disabled")
		} else {
			defer pub.Close()
			reporters = append(reporters, pipeline.NewEventReporter(pub))
		}
		if playCache, err = cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.CacheTTL); err != nil {
			logging.Warn().Err(err).Msg("Play cache flush disabled")
			playCache = nil
		} else {
			defer playCache.Close()
		}
	}

	runner := pipeline.NewRunner(db, pipeline.Options{
		DataDir:     cfg.Ingest.DataDir,
		Weeks:       cfg.Ingest.Weeks,
		BatchSize:   cfg.Ingest.BatchSize,
		Source:      cfg.Ingest.SourceTag,
		OnConflict:  repository.ConflictPolicy(cfg.Ingest.OnConflict),
		FieldLength: cfg.Field.Length,
		FieldWidth:  cfg.Field.Width,
		DryRun:      dryRun,
	})

	summary, err := runner.Run(ctx, reporters)
	if err != nil {
		return nil, err
	}

	if playCache != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, err := playCache.Flush(flushCtx)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to flush play cache")
		} else {
			logging.Info().Int("keys", n).Msg("✓ Play cache flushed")
		}
	}
	return summary, nil
}

func writeSummary(w io.Writer, summary *pipeline.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
