package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/nbody-barneshut/backend/internal/api"
	"github.com/onnwee/nbody-barneshut/backend/internal/cache"
	"github.com/onnwee/nbody-barneshut/backend/internal/config"
	"github.com/onnwee/nbody-barneshut/backend/internal/errorreporting"
	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
	"github.com/onnwee/nbody-barneshut/backend/internal/metrics"
	"github.com/onnwee/nbody-barneshut/backend/internal/middleware"
	"github.com/onnwee/nbody-barneshut/backend/internal/runs"
	"github.com/onnwee/nbody-barneshut/backend/internal/secrets"
	"github.com/onnwee/nbody-barneshut/backend/internal/store"
	"github.com/onnwee/nbody-barneshut/backend/internal/tracing"
)

func main() {
	os.Exit(serve())
}

// serve runs the server until a shutdown signal and returns the exit code.
// Failing startup steps return instead of exiting so deferred flushes run.
func serve() int {
	envErr := godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	logger.Init(cfg.LogLevel)
	logger.Info("Initializing server", "version", cfg.SentryRelease, "log_level", cfg.LogLevel)
	if envErr != nil {
		logger.Debug("No .env file found, using process environment")
	}

	// Initialize error reporting
	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment, "dsn", secrets.MaskDSN(cfg.SentryDSN))
		defer func() {
			logger.Info("Flushing error reports...")
			errorreporting.Flush(2 * time.Second)
		}()
	}

	// Initialize tracing
	shutdownTracing, err := tracing.Init("nbody-server", tracing.Options{
		Enabled:    cfg.OTELEnabled,
		Endpoint:   cfg.OTELEndpoint,
		SampleRate: cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("Tracing initialized", "endpoint", secrets.MaskDSN(cfg.OTELEndpoint), "sample_rate", cfg.OTELSampleRate)
		defer func() {
			logger.Info("Shutting down tracer...")
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	params, err := cfg.SimulationParams()
	if err != nil {
		logger.Error("Invalid simulation parameters", "error", err)
		return 1
	}

	// Open the run ledger
	ledger, err := store.Open(cfg.RunsDBPath)
	if err != nil {
		logger.Error("Failed to open run store", "error", err, "path", cfg.RunsDBPath)
		return 1
	}
	defer ledger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n, err := ledger.FailInterrupted(ctx); err != nil {
		logger.Warn("Failed to mark interrupted runs", "error", err)
	} else if n > 0 {
		logger.Info("Marked interrupted runs as failed", "count", n)
	}

	// Result cache
	results, err := cache.NewLRU(int64(cfg.CacheMaxSizeMB), int64(cfg.CacheMaxEntries), cfg.CacheTTL)
	if err != nil {
		logger.Error("Failed to create result cache", "error", err)
		return 1
	}
	defer results.Close()

	svc := runs.NewService(ledger, results, params, cfg.Seed, runs.Limits{
		MaxParticles:  cfg.RunsMaxParticles,
		MaxSteps:      cfg.RunsMaxSteps,
		MaxConcurrent: cfg.RunsMaxConcurrent,
		FrameEvery:    cfg.RunsFrameEvery,
		CacheTTL:      cfg.CacheTTL,
	})

	// Ledger gauges
	collector := metrics.NewCollector(ledger, 30*time.Second)
	go collector.Start(ctx)
	defer collector.Stop()

	var limiter *middleware.RateLimiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		defer limiter.Stop()
		logger.Info("Rate limiting enabled",
			"global_rps", cfg.RateLimitGlobal,
			"per_ip_rps", cfg.RateLimitPerIP)
	}

	router := api.NewRouter(api.Deps{Runs: svc, Ledger: ledger, RateLimiter: limiter, AllowedOrigins: cfg.CORSAllowedOrigins})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	go func() {
		logger.Info("Server running", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Runs still in progress at shutdown", "error", err)
	}
	return 0
}
