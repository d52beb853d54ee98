// Command metapitch serves the read API and play playback over a built store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/metapitch/internal/api/rest"
	"github.com/fortuna/metapitch/internal/api/websocket"
	"github.com/fortuna/metapitch/internal/cache"
	"github.com/fortuna/metapitch/internal/config"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/store"
)

const (
	serviceName    = "metapitch"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	logging.Info().Str("service", serviceName).Str("version", serviceVersion).Msg("Starting")

	// Initialize database connection
	db, err := store.NewDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.RequireSchema(ctx, db.DB()); err != nil {
		logging.Warn().Err(err).Msg("Store has no schema yet; run ingest first")
	} else if counts, err := db.Counts(ctx); err == nil {
		logging.Info().
			Int64("games", counts.Games).
			Int64("plays", counts.Plays).
			Int64("frames", counts.Frames).
			Msg("✓ Store opened")
	}
	cancel()

	// Redis is optional
	var playCache cache.PlayCache = cache.NopCache{}
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.CacheTTL)
		if err != nil {
			logging.Warn().Err(err).Msg("Redis unavailable, play cache disabled")
		} else {
			playCache = rc
			logging.Info().Msg("✓ Connected to Redis")
		}
	}
	defer playCache.Close()

	restServer := rest.NewServer(cfg.Server.RESTPort, db, playCache)
	go func() {
		logging.Info().Str("port", cfg.Server.RESTPort).Msg("REST API server listening")
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("REST server error")
		}
	}()

	wsServer := websocket.NewServer(db, playCache, cfg.Server.PlaybackFPS)
	go func() {
		if err := wsServer.Start(cfg.Server.WSPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("WebSocket server error")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logging.Info().Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("REST API server shutdown error")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("WebSocket server shutdown error")
	}

	logging.Info().Msg("Stopped")
}
