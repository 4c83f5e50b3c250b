package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	_ "github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource/mssql"
	_ "github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource/mysql"
	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource/postgres"
	"github.com/codigix/nobal-casting-sub004/pkg/config"
	"github.com/codigix/nobal-casting-sub004/pkg/database"
	"github.com/codigix/nobal-casting-sub004/pkg/handlers"
	"github.com/codigix/nobal-casting-sub004/pkg/logging"
	"github.com/codigix/nobal-casting-sub004/pkg/middleware"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
	"github.com/codigix/nobal-casting-sub004/pkg/observability"
	"github.com/codigix/nobal-casting-sub004/pkg/repositories"
	"github.com/codigix/nobal-casting-sub004/pkg/retry"
	"github.com/codigix/nobal-casting-sub004/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", logging.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log startup configuration
	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.RedactDSN(cfg.Database.URL())),
		zap.String("event_source", cfg.EventSource.Type),
		zap.String("lock_backend", cfg.OEE.LockBackend),
		zap.Float64("planned_production_minutes", cfg.OEE.PlannedProductionMinutes))

	shutdownTracing, err := observability.InitTracing(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	// Migrations run on a dedicated database/sql handle before the pool opens.
	migrationDB, err := database.OpenMigrationDB(cfg.Database.URL(), 30*time.Second)
	if err != nil {
		return err
	}
	err = database.RunMigrations(migrationDB, logger)
	_ = migrationDB.Close()
	if err != nil {
		return err
	}

	db, err := connectWithRetry(ctx, retry.DefaultConfig(), logger, "metric_store", func(ctx context.Context) (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	events, err := connectWithRetry(ctx, retry.DefaultConfig(), logger, "event_source", func(ctx context.Context) (eventsource.EventSource, error) {
		return openEventSource(ctx, cfg, db)
	})
	if err != nil {
		return err
	}
	defer func() { _ = events.Close() }()

	rules := models.DefaultLossRules()
	if cfg.OEE.LossRulesPath != "" {
		if rules, err = models.LoadLossRules(cfg.OEE.LossRulesPath); err != nil {
			return err
		}
	}

	locker, err := services.NewKeyedLocker(&cfg.OEE, rdb, logger)
	if err != nil {
		return err
	}

	// Services
	metrics := repositories.NewMetricRepository(db.Pool)
	calculator := services.NewOEECalculator(events, services.NewLossClassifier(rules), cfg.OEE.PlannedProductionMinutes, logger)
	aggregator := services.NewOEEAggregator(events, metrics, logger)
	recompute := services.NewRecomputeService(events, calculator, aggregator, metrics, locker,
		retry.WithMaxRetries(cfg.OEE.RetryMaxAttempts), logger)
	reports := services.NewReportingService(events, metrics, services.ReportingConfig{
		AnalysisWindowDays:  cfg.OEE.AnalysisWindowDays,
		HistoryWindowDays:   cfg.OEE.HistoryWindowDays,
		RecentJobCardsLimit: cfg.OEE.RecentJobCardsLimit,
	}, logger)
	dashboard := services.NewDashboardService(reports, logger)

	mux := http.NewServeMux()

	// Register handlers
	healthHandler := handlers.NewHealthHandler(cfg, healthDependencies(db, events, rdb), logger)
	healthHandler.RegisterRoutes(mux)

	oeeHandler := handlers.NewOEEHandler(recompute, reports, dashboard, logger)
	oeeHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting oee-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// connectWithRetry opens a startup dependency, retrying every failure.
func connectWithRetry[T any](ctx context.Context, cfg *retry.Config, logger *zap.Logger, name string, open func(context.Context) (T, error)) (T, error) {
	var conn T
	attempt := 0
	err := retry.Do(ctx, cfg, func() error {
		attempt++
		c, err := open(ctx)
		if err != nil {
			logger.Warn("Failed to connect, retrying",
				zap.String("dependency", name),
				zap.Int("attempt", attempt),
				logging.Error(err))
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return conn, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	return conn, nil
}

// openEventSource reuses the engine pool when the ERP tables live in the
// engine database, otherwise it opens the configured adapter.
func openEventSource(ctx context.Context, cfg *config.Config, db *database.DB) (eventsource.EventSource, error) {
	if cfg.EventSource.SharesEngineDatabase() {
		return postgres.NewSourceFromPool(db.Pool), nil
	}
	es := cfg.EventSource
	return eventsource.New(ctx, &eventsource.Config{
		Type:            es.Type,
		Host:            es.Host,
		Port:            es.Port,
		User:            es.User,
		Password:        es.Password,
		Database:        es.Database,
		SSLMode:         es.SSLMode,
		MaxOpenConns:    es.MaxOpenConns,
		ConnMaxLifetime: es.ConnMaxLifetime,
	})
}

func healthDependencies(db *database.DB, events eventsource.EventSource, rdb *redis.Client) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{
		"metric_store": handlers.PingFunc(db.Ping),
		"event_source": events,
	}
	if rdb != nil {
		deps["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return deps
}
