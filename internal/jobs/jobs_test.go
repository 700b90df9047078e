package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clem69B/deglingos-app-sub000/internal/sweep"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type stubSweep struct {
	report   sweep.Report
	err      error
	deadline bool
}

func (s *stubSweep) Run(ctx context.Context) (sweep.Report, error) {
	_, s.deadline = ctx.Deadline()
	return s.report, s.err
}

func TestOverdueSweepHandler(t *testing.T) {
	partial := &stubSweep{report: sweep.Report{Found: 3, Succeeded: 2, Failed: 1}}
	handler := OverdueSweepHandler(partial, time.Minute, logging.Discard())
	require.NoError(t, handler(context.Background(), NewOverdueSweepTask()))
	assert.True(t, partial.deadline)

	broken := &stubSweep{err: errors.New("scan failed")}
	err := OverdueSweepHandler(broken, 0, logging.Discard())(context.Background(), NewOverdueSweepTask())
	assert.EqualError(t, err, "scan failed")
	assert.False(t, broken.deadline)
}

func TestNewWorker_RejectsBadCronSpec(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    logging.Discard(),
		Cron:      []CronRegistration{{Spec: "every night", Task: NewOverdueSweepTask()}},
	})
	assert.Error(t, err)
}

func TestNilWorkerRun(t *testing.T) {
	var w *Worker
	assert.Error(t, w.Run(context.Background()))
}
