package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Clem69B/deglingos-app-sub000/internal/sweep"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const (
	// QueueDefault is the queue every clinic task runs on.
	QueueDefault = "default"
	// TaskOverdueSweep flips overdue invoices.
	TaskOverdueSweep = "invoices:overdue_sweep"
)

// SweepRunner runs one overdue sweep.
type SweepRunner interface {
	Run(ctx context.Context) (sweep.Report, error)
}

// NewOverdueSweepTask builds the payload-less sweep task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil)
}

// OverdueSweepHandler runs the sweep within timeout. Only a failed scan is
// reported to asynq, so per-invoice failures never trigger a retry of the
// whole batch.
func OverdueSweepHandler(runner SweepRunner, timeout time.Duration, logger *logging.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = logging.Default()
	}
	return func(ctx context.Context, _ *asynq.Task) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		report, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("scheduled overdue sweep done", "run_id", report.RunID, "found", report.Found, "failed", report.Failed)
		return nil
	}
}
