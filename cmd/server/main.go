package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/irfndi/volume-engine/internal/api"
	"github.com/irfndi/volume-engine/internal/cache"
	"github.com/irfndi/volume-engine/internal/config"
	"github.com/irfndi/volume-engine/internal/database"
	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/metrics"
	"github.com/irfndi/volume-engine/internal/middleware"
	"github.com/irfndi/volume-engine/internal/services"
	"github.com/irfndi/volume-engine/internal/telemetry"
	"github.com/irfndi/volume-engine/internal/volume"
)

const (
	serviceName    = "volume-engine"
	serviceVersion = "1.0.0"

	maintenanceInterval = time.Minute
	shutdownTimeout     = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, otlpLogger := newLogger(cfg)
	if otlpLogger != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otlpLogger.Shutdown(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
			}
		}()
	}
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitTelemetryWithProvider(ctx, telemetryConfig(cfg), logger.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to shutdown telemetry")
		}
	}()

	retries := services.DefaultRetryPolicies()
	var db *database.PostgresDB
	err = services.Retry(ctx, services.RetryDatabaseConnect, retries[services.RetryDatabaseConnect], logger.Logger(),
		func(ctx context.Context) (err error) {
			db, err = database.NewPostgresConnection(ctx, cfg.Database)
			return err
		})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	pool := database.NewTracedPool(db.Pool, logger)
	if err := database.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var redisClient *database.RedisClient
	err = services.Retry(ctx, services.RetryRedisConnect, retries[services.RetryRedisConnect], logger.Logger(),
		func(ctx context.Context) (err error) {
			redisClient, err = database.NewRedisConnection(ctx, cfg.Redis)
			return err
		})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	planCache := cache.NewRedisPlanCache(redisClient.Client,
		cfg.Planner.PlanCacheTTLDuration(),
		cfg.Planner.InventoryCacheTTLDuration(),
		logger,
	)

	notifier, err := services.NewShortfallNotifier(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID,
		logger.WithComponent("shortfall_notifier"))
	if err != nil {
		return err
	}

	optimizer := services.NewResourceOptimizer(services.ResourceOptimizerConfig{
		AdaptiveMode: true,
		MinWorkers:   cfg.Planner.MinWorkers,
		MaxWorkers:   cfg.Planner.MaxWorkers,
	})
	collector := metrics.NewMetricsCollector(logger, serviceName)

	engine, err := volume.NewEngine(cfg.Volume.Engine(), volume.WithLogger(logrusLogger))
	if err != nil {
		return fmt.Errorf("invalid volume configuration: %w", err)
	}
	planner := services.NewVolumePlanner(engine,
		database.NewSignalRepository(pool),
		database.NewPlanRepository(pool),
		services.WithPlanCache(planCache),
		services.WithNotifier(notifier),
		services.WithResourceOptimizer(optimizer),
		services.WithMetrics(collector),
		services.WithPlannerLogger(logger),
		services.WithBusinessTracer(telemetry.NewBusinessTracer()),
		services.WithFetchTimeout(cfg.Planner.FetchTimeoutDuration()),
		services.WithMaxWorkers(cfg.Planner.MaxWorkers),
	)

	router := api.NewRouter(api.Dependencies{
		Planner:       planner,
		DB:            db,
		Redis:         redisClient,
		Cache:         planCache,
		System:        optimizer,
		Auth:          middleware.NewAuthMiddleware(cfg.Security.JWTSecret),
		AdminAPIKey:   cfg.Security.AdminAPIKey,
		Logger:        logger,
		Metrics:       collector,
		ServiceName:   serviceName,
		Version:       serviceVersion,
		Notifications: notifier.Enabled(),
	})

	go runMaintenance(ctx, maintenanceInterval, optimizer, planCache, collector, logger)

	srv := newHTTPServer(cfg.Server.Port, router)
	serveErr := make(chan error, 1)
	go func() {
		logger.LogStartup(serviceName, serviceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.LogShutdown(serviceName, "signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Logger().Info("Server exited gracefully")
	return nil
}

func newLogger(cfg *config.Config) (*logging.StandardLogger, *logging.OTLPLogger) {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Exporter == "stdout" {
		return logging.NewStandardLogger(cfg.LogLevel, cfg.Environment), nil
	}
	return logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        true,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
}

func telemetryConfig(cfg *config.Config) *telemetry.TelemetryConfig {
	return &telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		SampleRate:     cfg.Telemetry.SampleRate,
		LogLevel:       cfg.LogLevel,
		Exporter:       cfg.Telemetry.Exporter,
	}
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type systemSampler interface {
	UpdateSystemMetrics(ctx context.Context) error
	GetSystemInfo() map[string]interface{}
}

type statsLogger interface {
	LogStats()
}

// runMaintenance samples host load for the optimizer and reports cache stats
// until ctx is done.
func runMaintenance(ctx context.Context, interval time.Duration, sampler systemSampler, stats statsLogger, mc *metrics.MetricsCollector, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sampler.UpdateSystemMetrics(ctx); err != nil {
				logger.WithError(err).Warn("Failed to sample system metrics")
				continue
			}
			info := sampler.GetSystemInfo()
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			cpuPct, _ := info["current_cpu"].(float64)
			mc.RecordSystemMetrics(int(ms.Alloc/1024/1024), runtime.NumGoroutine(), cpuPct)
			logger.LogResourceStats(serviceName, info)
			stats.LogStats()
		}
	}
}
