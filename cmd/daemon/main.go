// SPDX-License-Identifier: MIT

// Command daemon runs the guestflow journey daemon: the HTTP API, the
// catalog watcher, and the transform dispatcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guestflow/guestflow/internal/api"
	"github.com/guestflow/guestflow/internal/cache"
	"github.com/guestflow/guestflow/internal/catalog"
	"github.com/guestflow/guestflow/internal/config"
	"github.com/guestflow/guestflow/internal/health"
	"github.com/guestflow/guestflow/internal/journey/orchestrator"
	"github.com/guestflow/guestflow/internal/journey/store"
	xglog "github.com/guestflow/guestflow/internal/log"
	"github.com/guestflow/guestflow/internal/transform"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("guestflow %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(); err != nil {
		dlog := xglog.WithComponent("daemon")
		dlog.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "guestflow",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StoreBackend != "memory" {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	st, err := store.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("store close failed")
		}
	}()
	logger.Info().Str("backend", cfg.StoreBackend).Str("path", cfg.StorePath).Msg("store opened")

	var catalogCache cache.Cache
	var redisCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		redisCache, err = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, xglog.WithComponent("cache"))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = redisCache.Close() }()
		catalogCache = redisCache
	} else {
		catalogCache = cache.NewMemoryCache(time.Minute)
	}

	cat, err := catalog.NewManager(ctx, cfg.SnapshotPath, st, catalogCache)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	cat.WithTTL(cfg.CacheTTL)

	var trigger *transform.Client
	if cfg.TransformBaseURL != "" {
		trigger = transform.NewClient(cfg.TransformBaseURL, cfg.ProjectID)
	} else {
		logger.Warn().Msg("transform url not configured; dispatch disabled")
	}

	sessions := store.NewSessions(st)
	guests := store.NewGuests(st)

	orch := &orchestrator.Orchestrator{
		Sessions: sessions,
		Guests:   guests,
		Catalog:  cat,
	}
	if trigger != nil {
		orch.Trigger = trigger
	}

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewStoreChecker(func(ctx context.Context) error {
		_, err := st.GetSession(ctx, "healthcheck")
		return err
	}))
	healthMgr.RegisterChecker(health.NewSnapshotChecker(cfg.SnapshotPath))
	if redisCache != nil {
		healthMgr.RegisterChecker(health.NewCacheChecker(redisCache.HealthCheck))
	}

	srv := &api.Server{
		ProjectID:    cfg.ProjectID,
		AdminToken:   cfg.AdminToken,
		Orchestrator: orch,
		Sessions:     sessions,
		Guests:       guests,
		Health:       healthMgr,
		RateLimit:    cfg.RateLimit,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(cfg.ListenAddr)
	})

	if cfg.SnapshotPath != "" {
		g.Go(func() error {
			return cat.Watch(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown failed")
		}

		// In-flight transform dispatches finish before the store closes.
		orch.Drain()
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Msg("daemon stopped")
	return nil
}
