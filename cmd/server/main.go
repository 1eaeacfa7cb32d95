package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/analytics"
	"github.com/coreledger/bankads/internal/api"
	"github.com/coreledger/bankads/internal/cache"
	"github.com/coreledger/bankads/internal/config"
	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/logic"
	"github.com/coreledger/bankads/internal/logic/filters"
	"github.com/coreledger/bankads/internal/logic/ratelimit"
	"github.com/coreledger/bankads/internal/logic/scoring"
	"github.com/coreledger/bankads/internal/models"
	"github.com/coreledger/bankads/internal/observability"
	"github.com/coreledger/bankads/internal/profile"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A misconfigured scorer or segment map silently skews delivery, so
	// configuration problems are fatal before any traffic is accepted.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TracingEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	catalog, err := db.InitPostgres(cfg.PostgresDSN, 25, 5, 5*time.Minute, cfg.CatalogQueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer catalog.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}
	defer store.Close()

	metrics := observability.NewPrometheusRegistry()

	var sink analytics.Sink
	chSink, err := analytics.InitClickHouse(cfg.ClickHouseDSN, logger)
	if err != nil {
		logger.Warn("clickhouse unavailable, analytics disabled", zap.Error(err))
	} else {
		sink = chSink
		defer chSink.Close()
	}

	profiles := profile.NewStore(store, logger, cfg.ProfileTTL, cfg.ImpressionRetention)
	serveCache := cache.New(store, logger, metrics, cfg.CacheHighTTL, cfg.CacheLowTTL, cfg.CacheThinSupplyMax)

	scorer := scoring.NewScorer(scoring.Weights{
		Priority:  cfg.WeightPriority,
		CTR:       cfg.WeightCTR,
		Recency:   cfg.WeightRecency,
		Freshness: cfg.WeightFreshness,
	})
	scorer.CTRMinImpressions = cfg.CTRMinImpressions
	scorer.CTRDefault = cfg.CTRDefault
	scorer.CTRCeiling = cfg.CTRCeiling
	scorer.RecencyHorizon = cfg.RecencyHorizon

	selector := logic.NewAdSelector(catalog, store, profiles, serveCache, sink, scorer,
		filters.FrequencyConfig{
			MaxPerDay: cfg.FrequencyCapPerDay,
			Cooldown:  cfg.FrequencyCooldown,
			Window:    cfg.ImpressionRetention,
		},
		models.SegmentThresholds{
			Low:      cfg.SegmentLowMax,
			Mass:     cfg.SegmentMassMax,
			Affluent: cfg.SegmentAffluentMax,
		},
		logger, metrics)

	limiter := ratelimit.New(store, logger, metrics, ratelimit.Config{
		Enabled:    cfg.RateLimitEnabled,
		IPWindow:   cfg.IPWindow,
		IPMax:      cfg.IPMaxRequests,
		TierWindow: cfg.TierWindow,
		TierMax: map[ratelimit.Tier]int{
			ratelimit.TierStandard:   cfg.TierStandardMax,
			ratelimit.TierPremium:    cfg.TierPremiumMax,
			ratelimit.TierEnterprise: cfg.TierEnterpriseMax,
		},
	})

	srvDeps := api.NewServer(logger, store, catalog, selector, serveCache, limiter, sink, metrics, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(srvDeps.Router(), cfg.ServiceName),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad server running", zap.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
