package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"api_sales/api"
	"api_sales/internal/accounts"
	"api_sales/internal/cache"
	"api_sales/internal/catalog"
	"api_sales/internal/config"
	"api_sales/internal/events"
	"api_sales/internal/logger"
	"api_sales/internal/persistence"
	"api_sales/internal/remote"
	"api_sales/internal/sales"
	"api_sales/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sales service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting sales service",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver),
		zap.String("lock_provider", cfg.Sales.LockProvider),
	)

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("error shutting down tracer provider", zap.Error(err))
		}
	}()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Error("error shutting down meter provider", zap.Error(err))
		}
	}()

	db, err := persistence.NewDatabase(persistence.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Tracing:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogLevel:        cfg.Database.LogLevel,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, log); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	accountsClient := accounts.NewClient(remoteConfig(cfg, cfg.Customers), log)
	defer func() { _ = accountsClient.Close() }()
	catalogClient := catalog.NewClient(remoteConfig(cfg, cfg.Inventory), log)
	defer func() { _ = catalogClient.Close() }()

	opts := []sales.Option{
		sales.WithConflictRetries(cfg.Sales.ConflictRetries, cfg.Sales.ConflictBackoff),
	}

	switch cfg.Sales.LockProvider {
	case config.LockMemory:
		opts = append(opts, sales.WithLocker(sales.NewMemoryLocker(cfg.Sales.LockWait)))
	case config.LockRedis:
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer closeRedis(rdb, log)
		opts = append(opts, sales.WithLocker(cache.NewRedisLocker(rdb, cache.LockOptions{
			TTL:  cfg.Sales.LockTTL,
			Wait: cfg.Sales.LockWait,
		})))
	}

	metricsObserver, err := events.NewMetricsObserver(mp.Meter("api_sales"))
	if err != nil {
		return fmt.Errorf("failed to create sale metrics: %w", err)
	}
	observers := []sales.Observer{events.NewLogObserver(log), metricsObserver}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		defer drainNATS(nc, log)
		observers = append(observers, events.NewNATSObserver(nc, cfg.NATS.SubjectPrefix, log))
	}
	opts = append(opts, sales.WithObserver(events.Multi(observers...)))

	salesService := sales.NewService(persistence.NewPurchaseRepository(db.DB), accountsClient, catalogClient, log, opts...)

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(salesService, log, cfg.Telemetry.ServiceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error trying to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}

func remoteConfig(cfg *config.Config, svc config.ServiceConfig) remote.Config {
	return remote.Config{
		BaseURL:          svc.URL,
		Timeout:          svc.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		BreakerTimeout:   cfg.Breaker.Timeout,
	}
}

func closeRedis(rdb *redis.Client, log *zap.Logger) {
	if err := rdb.Close(); err != nil {
		log.Error("error closing redis client", zap.Error(err))
	}
}

func drainNATS(nc *nats.Conn, log *zap.Logger) {
	if err := nc.Drain(); err != nil {
		log.Warn("error draining nats connection", zap.Error(err))
	}
}
