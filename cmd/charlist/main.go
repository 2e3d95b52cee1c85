// Package main is the entry point for the charlist server. It wires the
// character fetcher, the session manager and the HTTP surface together.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/config"
	"github.com/pitabwire/charlist/internal/fetcher"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/internal/session"
	"github.com/pitabwire/charlist/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "", "path to configuration file (defaults apply when empty)")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "charlist", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Build the fetcher chain: HTTP with retry and breaker, then the
	// page cache, then spans around every call.
	httpFetcher, err := fetcher.NewHTTPFetcher(cfg.API,
		fetcher.WithMetrics(metrics),
		fetcher.WithLogger(logger),
	)
	if err != nil {
		logger.Error("fetcher initialization failed", zap.Error(err))
		return 1
	}
	cached := fetcher.NewCachingFetcher(httpFetcher, cfg.API.Cache.TTL, cfg.API.Cache.MaxEntries, metrics, logger)
	pages := fetcher.NewInstrumentedFetcher(cached)

	// Step 5: Session manager.
	sessions := session.NewManager(pages, cfg.Sessions, metrics, logger)

	// Step 6: Build HTTP router.
	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Sessions: sessions,
		Logger:   logger,
		Metrics:  metrics,
		Readiness: observability.ReadinessChecks{
			AcceptingSessions: sessions.Accepting,
			Upstream:          httpFetcher.Breaker(),
		},
		MetricsHandler: observability.Handler(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 7: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go sessions.Run(bgCtx)

	// Step 8: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("api_base_url", cfg.API.BaseURL),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Close sessions first so open streams end and Shutdown can drain.
	sessions.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}
