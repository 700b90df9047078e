package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/Clem69B/deglingos-app-sub000/cmd/mainconfig"
	"github.com/Clem69B/deglingos-app-sub000/internal/app/bootstrap"
	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/jobs"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	pool, db, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, false)
	services := bootstrap.Build(cfg, bootstrap.Infra{
		AWS:    awsCfg,
		Redis:  redisClient,
		Pool:   pool,
		DB:     db,
		Logger: logger,
	})

	worker, err := jobs.NewWorker(workerConfig(cfg, services, logger))
	if err != nil {
		logger.Error("failed to configure worker", "error", err)
		os.Exit(1)
	}

	logger.Info("clinic worker started", "sweep_cron", cfg.SweepCron)
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped with error", "error", err)
	}
	services.Close(context.Background())
	if pool != nil {
		pool.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("clinic worker stopped")
}

func workerConfig(cfg *appconfig.Config, services *bootstrap.Services, logger *logging.Logger) jobs.WorkerConfig {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	wc := jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{{
			Type:    jobs.TaskOverdueSweep,
			Handler: jobs.OverdueSweepHandler(services.Sweeper, cfg.SweepTimeout, logger),
		}},
	}
	if cfg.SweepCron != "" {
		wc.Cron = append(wc.Cron, jobs.CronRegistration{
			Spec:    cfg.SweepCron,
			Task:    jobs.NewOverdueSweepTask(),
			Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3), asynq.Timeout(cfg.SweepTimeout)},
		})
	}
	return wc
}
