package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Clem69B/deglingos-app-sub000/cmd/mainconfig"
	"github.com/Clem69B/deglingos-app-sub000/internal/api/router"
	"github.com/Clem69B/deglingos-app-sub000/internal/app/bootstrap"
	"github.com/Clem69B/deglingos-app-sub000/internal/clinic"
	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/http/handlers"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const requestTimeout = 30 * time.Second

func main() {
	// Local runs keep their settings in .env; deployed tasks get real env vars.
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_store", cfg.UseMemoryStore,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	pool, db, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}

	registry, metricsHandler := setupMetrics()
	services := bootstrap.Build(cfg, bootstrap.Infra{
		AWS:      awsCfg,
		Redis:    redisClient,
		Pool:     pool,
		DB:       db,
		Registry: registry,
		Logger:   logger,
	})

	handler := buildRouter(cfg, services, logger, metricsHandler, healthChecks(services, redisClient, pool))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Detached PDF generations and welcome emails get the rest of the grace period.
	services.Close(shutdownCtx)
	if pool != nil {
		pool.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func healthChecks(services *bootstrap.Services, redisClient *redis.Client, pool *pgxpool.Pool) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if services.Converter != nil {
		checks["gotenberg"] = services.Converter.Ping
	}
	return checks
}

func buildRouter(cfg *appconfig.Config, s *bootstrap.Services, logger *logging.Logger, metricsHandler http.Handler, checks map[string]handlers.Pinger) http.Handler {
	var documents handlers.DocumentService
	if s.Documents != nil {
		documents = s.Documents
	}
	var history handlers.HistoryReader
	if s.Audit != nil {
		history = s.Audit
	}
	var sweepHistory handlers.SweepHistory
	if s.History != nil {
		sweepHistory = s.History
	}

	routerCfg := &router.Config{
		Logger:         logger,
		Invoices:       handlers.NewInvoicesHandler(s.Invoices, documents, history, s.Edits, logger),
		Deposits:       handlers.NewDepositsHandler(s.Deposits, logger),
		Patients:       handlers.NewPatientsHandler(s.Patients, s.Edits, logger),
		Consultations:  handlers.NewConsultationsHandler(s.Consultations, logger),
		Sweep:          handlers.NewSweepHandler(s.Sweeper, sweepHistory, logger),
		Edits:          handlers.NewEditsHandler(s.Edits, logger),
		Practice:       clinic.NewHandler(s.Practice, logger),
		ChangeFeed:     s.Hub,
		MetricsHandler: metricsHandler,
		HealthChecks:   checks,

		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     requestTimeout,

		CognitoRegion:     cfg.CognitoRegion,
		CognitoUserPoolID: cfg.CognitoUserPoolID,
		CognitoClientID:   cfg.CognitoClientID,
		AuthDisabled:      cfg.AuthDisabled,
	}
	if s.Team != nil {
		routerCfg.Team = handlers.NewTeamHandler(s.Team, logger)
	}
	return router.New(routerCfg)
}
