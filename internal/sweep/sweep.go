// Package sweep flips pending invoices past their due date to OVERDUE.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const defaultConcurrency = 8

// Failure is one invoice the sweep could not flip.
type Failure struct {
	InvoiceID string `json:"invoiceId"`
	Error     string `json:"error"`
}

type Report struct {
	RunID      string    `json:"runId"`
	Today      string    `json:"today"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
	Found      int       `json:"found"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures"`
}

// FailedIDs lists the invoices of r.Failures.
func (r Report) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.InvoiceID)
	}
	return ids
}

// HistoryStore keeps run reports.
type HistoryStore interface {
	Save(ctx context.Context, r Report) error
}

// Refresher receives invoices flipped by a run.
type Refresher interface {
	Refresh(inv invoices.Invoice)
}

type Options struct {
	Concurrency int
	History     HistoryStore
	Audit       invoices.TransitionRecorder
	Refresher   Refresher
	Metrics     *metrics.SweepMetrics
	Logger      *logging.Logger
	Now         func() time.Time
}

type Sweeper struct {
	table       *records.Table[invoices.Invoice]
	concurrency int
	history     HistoryStore
	audit       invoices.TransitionRecorder
	refresher   Refresher
	metrics     *metrics.SweepMetrics
	logger      *logging.Logger
	now         func() time.Time
}

func New(table *records.Table[invoices.Invoice], opts Options) *Sweeper {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		table:       table,
		concurrency: opts.Concurrency,
		history:     opts.History,
		audit:       opts.Audit,
		refresher:   opts.Refresher,
		metrics:     opts.Metrics,
		logger:      opts.Logger.Component("overdue-sweep"),
		now:         opts.Now,
	}
}

// Run flips every PENDING invoice due strictly before today (UTC). Each
// invoice is updated independently; individual failures end up in the report.
// The only error returned is a failed scan.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	start := s.now().UTC()
	report := Report{
		RunID:     uuid.NewString(),
		Today:     shared.Today(start),
		StartedAt: start,
		Failures:  []Failure{},
	}
	log := s.logger.With("run_id", report.RunID, "today", report.Today)

	due, err := s.table.ListAll(ctx, invoices.OverdueCandidates(report.Today))
	if err != nil {
		s.metrics.ObserveRun("scan_failed", 0, 0, time.Since(start).Seconds())
		log.Error("overdue sweep scan failed", "error", err)
		return report, fmt.Errorf("sweep: scan pending invoices: %w", err)
	}
	report.Found = len(due)
	log.Info("overdue sweep started", "found", report.Found)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, inv := range due {
		inv := inv
		g.Go(func() error {
			err := s.flip(ctx, inv)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, Failure{InvoiceID: inv.ID, Error: records.Message(err)})
				log.Warn("failed to mark invoice overdue", "invoice_id", inv.ID, "invoice_number", inv.InvoiceNumber, "error", err)
				return nil
			}
			report.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	report.Failed = len(report.Failures)
	report.DurationMS = s.now().UTC().Sub(start).Milliseconds()
	outcome := "ok"
	if report.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.ObserveRun(outcome, report.Succeeded, report.Failed, time.Since(start).Seconds())
	log.Info("overdue sweep finished", "found", report.Found, "succeeded", report.Succeeded, "failed", report.Failed)

	if s.history != nil {
		if err := s.history.Save(ctx, report); err != nil {
			log.Warn("failed to save sweep report", "error", err)
		}
	}
	return report, nil
}

func (s *Sweeper) flip(ctx context.Context, inv invoices.Invoice) error {
	now := s.now().UTC()
	fields, guard := invoices.MarkOverdue(now)
	updated, err := s.table.Update(ctx, inv.ID, fields, guard)
	if err != nil {
		return err
	}
	if s.refresher != nil {
		s.refresher.Refresh(updated)
	}
	if s.audit != nil {
		err := s.audit.RecordTransition(ctx, invoices.Transition{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			From:          invoices.StatusPending,
			To:            invoices.StatusOverdue,
			Actor:         invoices.ActorSystem,
			Op:            "overdueSweep",
			At:            now,
		})
		if err != nil {
			s.logger.Warn("failed to audit overdue transition", "invoice_id", inv.ID, "error", err)
		}
	}
	return nil
}
