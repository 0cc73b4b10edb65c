package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/reluxe-code/reluxe-booking/cmd/mainconfig"
	"github.com/reluxe-code/reluxe-booking/internal/api/router"
	"github.com/reluxe-code/reluxe-booking/internal/app/bootstrap"
	appconfig "github.com/reluxe-code/reluxe-booking/internal/config"
	"github.com/reluxe-code/reluxe-booking/internal/events"
	"github.com/reluxe-code/reluxe-booking/internal/http/handlers"
	"github.com/reluxe-code/reluxe-booking/internal/http/middleware"
	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

const (
	evictInterval     = time.Minute
	limiterSweepEvery = 10 * time.Minute
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reluxe booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"locations", len(cfg.Locations),
	)

	secret, err := flowTokenSecret(cfg, logger)
	if err != nil {
		logger.Error("flow token secret", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, bookingMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	pool := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}

	tracking := bootstrap.BuildTracking(cfg, pool, setupSQS(ctx, cfg, logger), bookingMetrics, logger)
	defer tracking.Close()

	engine := bootstrap.EngineDeps{
		Catalog: bootstrap.BuildCatalog(cfg, redisClient, bookingMetrics, logger),
		Tracker: tracking.Sink,
		Metrics: bookingMetrics,
	}
	if pool != nil {
		engine.Ledger = events.NewCheckoutLedger(pool)
	} else {
		logger.Warn("DATABASE_URL not set; checkout ledger and tracking outbox disabled")
	}
	deps, err := bootstrap.BuildDeps(cfg, engine, logger)
	if err != nil {
		logger.Error("failed to build booking engine", "error", err)
		os.Exit(1)
	}
	registry := bootstrap.BuildRegistry(cfg, deps, redisClient, logger)
	defer registry.Close()

	flowHandler := handlers.NewFlowHandler(handlers.FlowHandlerConfig{
		Flows:                 registry,
		TokenSecret:           secret,
		TokenTTL:              cfg.FlowTTL,
		CheckoutRatePerMinute: cfg.VerifyRatePerMinute,
		Logger:                logger,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		FlowHandler:        flowHandler,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		registry.Run(gctx, evictInterval)
		return nil
	})
	g.Go(func() error {
		tracking.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweepLimiter(gctx, flowHandler.Limiter(), limiterSweepEvery)
		return nil
	})
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case <-quit:
		case <-gctx.Done():
		}

		logger.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		cancel()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

// setupSQS returns nil when no tracking queue is configured or AWS config
// cannot be loaded.
func setupSQS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *sqs.Client {
	if strings.TrimSpace(cfg.TrackingQueueURL) == "" {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config; tracking delivery disabled", "error", err)
		return nil
	}
	return mainconfig.NewSQSClient(awsCfg, cfg)
}

// flowTokenSecret returns FLOW_TOKEN_SECRET. Outside production a random
// per-process secret is generated when it is unset.
func flowTokenSecret(cfg *appconfig.Config, logger *logging.Logger) (string, error) {
	if secret := strings.TrimSpace(cfg.FlowTokenSecret); secret != "" {
		return secret, nil
	}
	if cfg.IsProduction() {
		return "", errors.New("FLOW_TOKEN_SECRET is required in production")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	logger.Warn("FLOW_TOKEN_SECRET not set; using a random secret, tokens will not survive a restart")
	return hex.EncodeToString(buf), nil
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter, every time.Duration) {
	if limiter == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Sweep(now.Add(-every))
		}
	}
}
