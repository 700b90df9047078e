// Package tasks runs best-effort side effects outside the request that
// triggered them.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const defaultTimeout = 30 * time.Second

// Task is the handle of one detached run. Callers of the primary operation
// normally ignore it.
type Task struct {
	Name string
	done chan struct{}
	err  error
}

// Done is closed once the task finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task outcome. Only meaningful after Done is closed.
func (t *Task) Err() error { return t.err }

// Runner starts tasks and logs how they end.
type Runner struct {
	logger  *logging.Logger
	metrics *metrics.TaskMetrics
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(logger *logging.Logger, m *metrics.TaskMetrics, timeout time.Duration) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{logger: logger.Component("tasks"), metrics: m, timeout: timeout}
}

// Go runs fn in its own goroutine. The context keeps the values of ctx but
// not its cancellation, and is bounded by the runner timeout. Panics are
// recovered and reported as failures.
func (r *Runner) Go(ctx context.Context, name string, fn func(context.Context) error) *Task {
	t := &Task{Name: name, done: make(chan struct{})}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(t.done)

		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		t.err = run(taskCtx, fn)
		if t.err != nil {
			r.logger.Warn("background task failed", "task", name, "error", t.err, "duration_ms", time.Since(start).Milliseconds())
			r.metrics.ObserveOutcome(name, "failed")
			return
		}
		r.logger.Debug("background task finished", "task", name, "duration_ms", time.Since(start).Milliseconds())
		r.metrics.ObserveOutcome(name, "ok")
	}()
	return t
}

// Wait blocks until every started task returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}
