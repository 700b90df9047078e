package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/Clem69B/deglingos-app-sub000/cmd/mainconfig"
	"github.com/Clem69B/deglingos-app-sub000/internal/app/bootstrap"
	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/pdf"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.PDFQueueURL == "" || cfg.GotenbergURL == "" {
		logger.Error("pdf worker requires PDF_QUEUE_URL and GOTENBERG_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	services := bootstrap.Build(cfg, bootstrap.Infra{
		AWS:    awsCfg,
		Redis:  redisClient,
		Logger: logger,
	})
	if err := services.Converter.Ping(ctx); err != nil {
		logger.Warn("gotenberg not reachable at startup", "error", err)
	}

	worker := pdf.NewWorker(sqs.NewFromConfig(awsCfg), cfg.PDFQueueURL, services.Documents, logger)
	logger.Info("pdf worker polling", "queue", cfg.PDFQueueURL)
	if err := worker.Poll(ctx); err != nil {
		logger.Error("pdf worker stopped with error", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("pdf worker stopped")
}
