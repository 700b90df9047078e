// Package deposits tracks paid checks waiting to be taken to the bank.
package deposits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const defaultConcurrency = 8

// NameLookup resolves a patient display name.
type NameLookup interface {
	DisplayName(ctx context.Context, patientID string) (string, error)
}

// Refresher receives invoices written by the tracker so cached copies and
// connected editors catch up.
type Refresher interface {
	Refresh(inv invoices.Invoice)
}

// Entry is one undeposited check with its patient name.
type Entry struct {
	invoices.Invoice
	PatientName string `json:"patientName"`
}

// Failure is one invoice the batch could not update.
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
	err   error
}

type Result struct {
	Updated []string  `json:"updated"`
	Failed  []Failure `json:"failed"`
	Queue   []Entry   `json:"queue"`
}

// BatchError is returned when some updates of a batch failed. Updates that
// succeeded stay applied.
type BatchError struct {
	Action string
	Failed []Failure
	Total  int
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.ID)
	}
	return fmt.Sprintf("deposits: %s failed for %d of %d invoices: %s", e.Action, len(e.Failed), e.Total, strings.Join(ids, ", "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.err)
	}
	return errs
}

type Tracker struct {
	table       *records.Table[invoices.Invoice]
	names       NameLookup
	refresher   Refresher
	concurrency int
	metrics     *metrics.DepositMetrics
	logger      *logging.Logger
	now         func() time.Time
}

func NewTracker(table *records.Table[invoices.Invoice], names NameLookup, refresher Refresher, concurrency int, m *metrics.DepositMetrics, logger *logging.Logger) *Tracker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		table:       table,
		names:       names,
		refresher:   refresher,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.Component("deposits"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListUndeposited returns every paid check not yet deposited, oldest first.
func (t *Tracker) ListUndeposited(ctx context.Context) ([]Entry, error) {
	pending, err := t.table.ListAll(ctx, invoices.UndepositedChecks())
	if err != nil {
		return nil, fmt.Errorf("deposits: list undeposited: %w", err)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Date != pending[j].Date {
			return pending[i].Date < pending[j].Date
		}
		return pending[i].InvoiceNumber < pending[j].InvoiceNumber
	})

	names := map[string]string{}
	entries := make([]Entry, 0, len(pending))
	for _, inv := range pending {
		name, seen := names[inv.PatientID]
		if !seen && t.names != nil && inv.PatientID != "" {
			resolved, err := t.names.DisplayName(ctx, inv.PatientID)
			if err != nil {
				t.logger.Warn("patient name lookup failed", "patient_id", inv.PatientID, "invoice_id", inv.ID, "error", err)
			}
			name = resolved
			names[inv.PatientID] = name
		}
		entries = append(entries, Entry{Invoice: inv, PatientName: name})
	}
	return entries, nil
}

// MarkAsDeposited flags the given paid checks as deposited on depositDate.
// Nothing is written when the input is invalid.
func (t *Tracker) MarkAsDeposited(ctx context.Context, ids []string, depositDate string) (Result, error) {
	ids, err := normaliseIDs(ids)
	if err != nil {
		return Result{}, err
	}
	if !shared.IsDate(depositDate) {
		return Result{}, shared.InvalidField("depositDate", "must be a date formatted YYYY-MM-DD")
	}
	now := t.now()
	if depositDate > shared.Today(now) {
		return Result{}, shared.InvalidField("depositDate", "must not be in the future")
	}
	fields, guard := invoices.MarkDeposited(depositDate, now)
	return t.apply(ctx, "deposit", ids, fields, guard, "invoice is no longer a paid check")
}

// UnmarkDeposited reverts deposits recorded by mistake.
func (t *Tracker) UnmarkDeposited(ctx context.Context, ids []string) (Result, error) {
	ids, err := normaliseIDs(ids)
	if err != nil {
		return Result{}, err
	}
	fields, guard := invoices.ClearDeposit(t.now())
	return t.apply(ctx, "undeposit", ids, fields, guard, "invoice is not deposited")
}

func (t *Tracker) apply(ctx context.Context, action string, ids []string, fields records.Fields, guard records.Filter, rejected string) (Result, error) {
	outcomes := make([]error, len(ids))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			inv, err := t.table.Update(ctx, id, fields, guard)
			mu.Lock()
			outcomes[i] = err
			mu.Unlock()
			if err == nil && t.refresher != nil {
				t.refresher.Refresh(inv)
			}
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i, id := range ids {
		err := outcomes[i]
		if err == nil {
			res.Updated = append(res.Updated, id)
			t.metrics.ObserveUpdate(action, "ok")
			continue
		}
		msg := records.Message(err)
		if errors.Is(err, records.ErrConditionFailed) {
			msg = rejected
		}
		res.Failed = append(res.Failed, Failure{ID: id, Error: msg, err: err})
		t.metrics.ObserveUpdate(action, "failed")
		t.logger.Warn("deposit update failed", "action", action, "invoice_id", id, "error", err)
	}
	t.logger.Info("deposit batch applied", "action", action, "updated", len(res.Updated), "failed", len(res.Failed))

	var errs []error
	if len(res.Failed) > 0 {
		errs = append(errs, &BatchError{Action: action, Failed: res.Failed, Total: len(ids)})
	}
	queue, err := t.ListUndeposited(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("deposits: refresh queue: %w", err))
	}
	res.Queue = queue
	return res, errors.Join(errs...)
}

func normaliseIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, shared.InvalidField("ids", "at least one invoice is required")
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, shared.InvalidField("ids", "must not contain empty ids")
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
