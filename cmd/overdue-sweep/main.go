package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/Clem69B/deglingos-app-sub000/cmd/mainconfig"
	"github.com/Clem69B/deglingos-app-sub000/internal/app/bootstrap"
	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/sweep"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type sweepRunner interface {
	Run(ctx context.Context) (sweep.Report, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
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
	services := bootstrap.Build(cfg, bootstrap.Infra{
		AWS:    awsCfg,
		Redis:  bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		Pool:   pool,
		DB:     db,
		Logger: logger,
	})

	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (sweep.Report, error) {
		return handle(ctx, services.Sweeper, cfg.SweepTimeout, evt, logger)
	})
}

// handle runs one sweep per scheduled event. Only a failed scan fails the
// invocation; per-invoice failures are reported in the result.
func handle(ctx context.Context, runner sweepRunner, timeout time.Duration, evt events.CloudWatchEvent, logger *logging.Logger) (sweep.Report, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Info("overdue sweep triggered", "event_id", evt.ID, "source", evt.Source, "scheduled_at", evt.Time)

	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("overdue sweep failed", "event_id", evt.ID, "error", err)
		return sweep.Report{}, err
	}
	if report.Failed > 0 {
		logger.Warn("overdue sweep left invoices behind", "run_id", report.RunID, "failed", report.Failed, "failed_ids", report.FailedIDs())
	}
	return report, nil
}
