// Package main is the entry point for the mcjars API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mcjars/www-sub000/internal/api"
	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/config"
	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/filecache"
	"github.com/mcjars/www-sub000/internal/geo"
	"github.com/mcjars/www-sub000/internal/metrics"
	"github.com/mcjars/www-sub000/internal/observability"
	"github.com/mcjars/www-sub000/internal/requestlog"
	"github.com/mcjars/www-sub000/internal/storage"
)

const refreshInterval = 30 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting mcjars api", "addr", cfg.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SentryDSN != "" {
		flush, err := observability.InitSentry(cfg.SentryDSN, cfg.ServerName)
		if err != nil {
			return err
		}
		defer flush()
	}
	if cfg.OTELEndpoint != "" {
		tp, err := observability.InitTracing(ctx, cfg.OTELEndpoint, "mcjars-api")
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.Background())
	}

	cacheClient, err := cache.New(cfg.Redis)
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	database, err := db.New(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database migrated")
	}

	clickhouse, err := db.NewClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		return err
	}
	defer clickhouse.Close()

	var source storage.Source
	if cfg.S3.Enabled() {
		if source, err = storage.NewS3(ctx, cfg.S3); err != nil {
			return err
		}
		logger.Info("serving artifacts from object storage", "bucket", cfg.S3.Bucket)
	} else {
		source = storage.NewDir(cfg.Files.Location)
		logger.Info("serving artifacts from local disk", "location", cfg.Files.Location)
	}

	artifacts, err := filecache.New(cfg.Files.CacheDir, cfg.Files.CacheMaxSize, source, database, logger)
	if err != nil {
		return err
	}
	artifacts.Start()
	defer artifacts.Stop()

	reqlog := requestlog.NewLogger(clickhouse, database, geo.New(), logger)
	reqlog.Start()
	defer reqlog.Stop()

	limiter := requestlog.NewRateLimiter(cacheClient.Redis())

	server := api.NewServer(cfg, cacheClient, database, clickhouse, artifacts, source, reqlog, limiter, logger)

	mux := http.NewServeMux()
	server.Routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = metrics.Middleware(handler)
	handler = server.AccessLog(handler)
	handler = api.CORS(handler)
	handler = server.Recover(handler)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		runRefreshLoop(ctx, cfg, database, cacheClient, logger)
		return nil
	})

	return group.Wait()
}

// runRefreshLoop rebuilds the stats rollups every 30 minutes and logs the
// cache hit ratio for the window before resetting it.
func runRefreshLoop(ctx context.Context, cfg *config.Config, database *db.Database, cacheClient *cache.Client, logger *slog.Logger) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		hits, misses := cacheClient.Hits(), cacheClient.Misses()
		logger.Info("cache window", "hits", hits, "misses", misses)
		cacheClient.ResetStats()

		if !cfg.Database.Refresh {
			continue
		}
		refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		if err := database.RefreshViews(refreshCtx); err != nil {
			logger.Error("view refresh failed", "error", err)
			observability.CaptureError(err)
		}
		cancel()
	}
}
