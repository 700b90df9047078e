package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/internal/optimistic"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/internal/tasks"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// Change feed event types.
const (
	EventUpdated = "invoice.updated"
	EventDeleted = "invoice.deleted"
)

var ErrAlreadyInvoiced = errors.New("consultation already has an invoice")

// PDFTrigger starts document generation for an issued invoice.
type PDFTrigger interface {
	Trigger(ctx context.Context, invoiceID string) error
}

// TransitionRecorder keeps the status history.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// Publisher broadcasts changes to connected editors.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Numberer hands out invoice numbers.
type Numberer interface {
	Next(ctx context.Context, year int) (string, error)
}

// ConsultationSource exposes what an invoice needs from a consultation.
type ConsultationSource interface {
	ForInvoice(ctx context.Context, consultationID string) (FromConsultation, error)
	LinkInvoice(ctx context.Context, consultationID, invoiceID string) error
}

type FromConsultation struct {
	PatientID string
	Date      string
	Amount    shared.Money
	Reason    string
	InvoiceID string
}

type Config struct {
	PaymentTermDays int
	CacheTTL        time.Duration
}

// Deps are the optional collaborators of Service. Nil fields disable the
// matching side effect.
type Deps struct {
	Numbers       Numberer
	PDF           PDFTrigger
	Audit         TransitionRecorder
	Publisher     Publisher
	Consultations ConsultationSource
	Tasks         *tasks.Runner
	Metrics       *metrics.InvoiceMetrics
	Logger        *logging.Logger
	Now           func() time.Time
}

type Service struct {
	table    *records.Table[Invoice]
	cache    *optimistic.Cache[Invoice]
	cfg      Config
	deps     Deps
	logger   *logging.Logger
	now      func() time.Time
	runner   *tasks.Runner
	numberer Numberer
}

func NewService(table *records.Table[Invoice], cfg Config, deps Deps) *Service {
	if table == nil {
		panic("invoices: table cannot be nil")
	}
	if cfg.PaymentTermDays <= 0 {
		cfg.PaymentTermDays = 30
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Component("invoices")
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	runner := deps.Tasks
	if runner == nil {
		runner = tasks.NewRunner(logger, nil, 0)
	}
	s := &Service{
		table:    table,
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		now:      func() time.Time { return now().UTC() },
		runner:   runner,
		numberer: deps.Numbers,
	}
	s.cache = optimistic.NewCache[Invoice](table.Get, cfg.CacheTTL).WithClock(s.now)
	s.cache.OnRevert(func(op string) {
		deps.Metrics.ObserveRevert("invoice", op)
		logger.Warn("invoice edit reverted after failed write", "op", op)
	})
	s.cache.DropOn(func(err error) bool { return errors.Is(err, records.ErrConditionFailed) })
	return s
}

// Cache exposes the working set so other writers (deposits, sweep) can
// refresh it.
func (s *Service) Cache() *optimistic.Cache[Invoice] { return s.cache }

type CreateInput struct {
	PatientID        string        `json:"patientId" validate:"required"`
	ConsultationID   string        `json:"consultationId"`
	InvoiceNumber    string        `json:"invoiceNumber"`
	Date             string        `json:"date" validate:"isodate"`
	DueDate          string        `json:"dueDate" validate:"isodate"`
	Total            shared.Money  `json:"total"`
	PaymentMethod    PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=CHECK BANK_TRANSFER CASH CARD"`
	PaymentReference string        `json:"paymentReference"`
	Notes            string        `json:"notes"`
}

// Create stores a new DRAFT invoice.
func (s *Service) Create(ctx context.Context, in CreateInput) (Invoice, error) {
	if err := shared.Validate(in); err != nil {
		return Invoice{}, err
	}
	if in.Total.IsNegative() {
		return Invoice{}, shared.InvalidField(FieldTotal, "must not be negative")
	}
	now := s.now()
	if in.Date == "" {
		in.Date = shared.Today(now)
	}
	if in.DueDate == "" {
		due, err := shared.AddDays(in.Date, s.cfg.PaymentTermDays)
		if err != nil {
			return Invoice{}, shared.InvalidField(FieldDate, err.Error())
		}
		in.DueDate = due
	}
	if in.DueDate < in.Date {
		return Invoice{}, shared.InvalidField(FieldDueDate, "must not be before the invoice date")
	}

	number := strings.TrimSpace(in.InvoiceNumber)
	if number == "" {
		year, _ := shared.ParseDate(in.Date)
		next, err := s.nextNumber(ctx, year.Year())
		if err != nil {
			return Invoice{}, err
		}
		number = next
	} else if err := s.ensureUniqueNumber(ctx, "", number); err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		ID:               uuid.NewString(),
		InvoiceNumber:    number,
		PatientID:        in.PatientID,
		ConsultationID:   in.ConsultationID,
		Date:             in.Date,
		DueDate:          in.DueDate,
		Total:            in.Total,
		Status:           StatusDraft,
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: in.PaymentReference,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	stored, err := s.table.Create(ctx, inv)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: create: %w", err)
	}
	s.cache.Put(stored.ID, stored)
	s.publish(EventUpdated, stored)
	s.logger.Info("invoice created", "invoice_id", stored.ID, "invoice_number", stored.InvoiceNumber)
	return stored, nil
}

// CreateFromConsultation drafts an invoice prefilled from a consultation and
// links it back.
func (s *Service) CreateFromConsultation(ctx context.Context, consultationID string) (Invoice, error) {
	if s.deps.Consultations == nil {
		return Invoice{}, errors.New("invoices: consultation source not configured")
	}
	src, err := s.deps.Consultations.ForInvoice(ctx, consultationID)
	if err != nil {
		return Invoice{}, err
	}
	if src.InvoiceID != "" {
		return Invoice{}, fmt.Errorf("%w: %s", ErrAlreadyInvoiced, src.InvoiceID)
	}
	inv, err := s.Create(ctx, CreateInput{
		PatientID:      src.PatientID,
		ConsultationID: consultationID,
		Date:           src.Date,
		Total:          src.Amount,
		Notes:          src.Reason,
	})
	if err != nil {
		return Invoice{}, err
	}
	if err := s.deps.Consultations.LinkInvoice(ctx, consultationID, inv.ID); err != nil {
		s.logger.Warn("failed to link invoice to consultation", "invoice_id", inv.ID, "consultation_id", consultationID, "error", err)
	}
	return inv, nil
}

// Get reads the stored invoice and refreshes the working set.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	inv, err := s.table.Get(ctx, id)
	if err != nil {
		return Invoice{}, shared.NotFoundIf(err, "invoice", id)
	}
	s.cache.Put(id, inv)
	return inv, nil
}

type ListQuery struct {
	Status    Status
	PatientID string
	Search    string
	From      string
	To        string
	Limit     int32
	PageToken string
}

func (q ListQuery) filter() records.Filter {
	var fs []records.Filter
	if q.Status != "" {
		fs = append(fs, records.Eq(FieldStatus, q.Status))
	}
	if q.PatientID != "" {
		fs = append(fs, records.Eq(FieldPatientID, q.PatientID))
	}
	if q.Search != "" {
		fs = append(fs, records.Contains(FieldInvoiceNumber, q.Search))
	}
	switch {
	case q.From != "" && q.To != "":
		fs = append(fs, records.Between(FieldDate, q.From, q.To))
	case q.From != "":
		fs = append(fs, records.Ge(FieldDate, q.From))
	case q.To != "":
		fs = append(fs, records.Le(FieldDate, q.To))
	}
	return records.And(fs...)
}

// List returns one page of invoices.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Invoice, string, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, "", shared.InvalidField(FieldStatus, "unknown status")
	}
	for field, d := range map[string]string{"from": q.From, "to": q.To} {
		if d != "" && !shared.IsDate(d) {
			return nil, "", shared.InvalidField(field, "must be a date formatted YYYY-MM-DD")
		}
	}
	return s.table.List(ctx, records.ListOptions{Filter: q.filter(), Limit: q.Limit, PageToken: q.PageToken})
}

// Delete removes an invoice and returns its last state, or nil when it did
// not exist.
func (s *Service) Delete(ctx context.Context, id string) (*Invoice, error) {
	gone, err := s.table.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("invoices: delete %s: %w", id, err)
	}
	s.cache.Forget(id)
	if gone != nil {
		s.publish(EventDeleted, map[string]string{"id": id})
		s.logger.Info("invoice deleted", "invoice_id", id, "invoice_number", gone.InvoiceNumber)
	}
	return gone, nil
}

// MarkAsPending issues the invoice. The first issue of a draft also starts
// PDF generation in the background. A draft is only issued while the store
// still holds it as a draft; when another writer got there first the call is
// replayed once against the stored copy.
func (s *Service) MarkAsPending(ctx context.Context, id string) (Invoice, error) {
	inv, from, err := s.mutate(ctx, id, "markAsPending", (*Invoice).markPending)
	if errors.Is(err, records.ErrConditionFailed) {
		inv, from, err = s.mutate(ctx, id, "markAsPending", (*Invoice).markPending)
	}
	if err != nil {
		return Invoice{}, err
	}
	if from == StatusDraft && s.deps.PDF != nil {
		s.runner.Go(ctx, "invoice.pdf", func(ctx context.Context) error {
			return s.deps.PDF.Trigger(ctx, id)
		})
	}
	return inv, nil
}

// MarkAsPaid records the payment. Re-applying it keeps the original paidAt.
func (s *Service) MarkAsPaid(ctx context.Context, id string) (Invoice, error) {
	inv, _, err := s.mutate(ctx, id, "markAsPaid", (*Invoice).markPaid)
	return inv, err
}

// UnmarkAsPaid moves a paid invoice back to PENDING and clears any deposit.
func (s *Service) UnmarkAsPaid(ctx context.Context, id string) (Invoice, error) {
	inv, _, err := s.mutate(ctx, id, "unmarkAsPaid", (*Invoice).unmarkPaid)
	return inv, err
}

// UpdateField writes one editable field. Editing the total of an issued,
// unpaid invoice sends it back to DRAFT in the same write.
func (s *Service) UpdateField(ctx context.Context, id, field string, raw any) (Invoice, error) {
	spec, ok := editable[field]
	if !ok {
		return Invoice{}, shared.InvalidField(field, "is not editable")
	}
	value, err := spec.parse(raw)
	if err != nil {
		return Invoice{}, shared.InvalidField(field, err.Error())
	}
	if field == FieldInvoiceNumber {
		if err := s.ensureUniqueNumber(ctx, id, value.(string)); err != nil {
			return Invoice{}, err
		}
	}
	inv, _, err := s.mutate(ctx, id, "updateField:"+field, func(inv *Invoice, now time.Time) (change, error) {
		return spec.apply(inv, value, now)
	})
	return inv, err
}

// Refresh replaces the working copy after a write made outside the cache.
func (s *Service) Refresh(inv Invoice) {
	s.cache.Put(inv.ID, inv)
	s.publish(EventUpdated, inv)
}

func (s *Service) mutate(ctx context.Context, id, op string, edit func(*Invoice, time.Time) (change, error)) (Invoice, Status, error) {
	var (
		from Status
		c    change
	)
	inv, err := s.cache.Mutate(ctx, id, optimistic.Mutation[Invoice]{
		Name: op,
		Apply: func(inv *Invoice) error {
			from = inv.Status
			var err error
			c, err = edit(inv, s.now())
			return err
		},
		Commit: func(ctx context.Context, _ Invoice) (Invoice, error) {
			return s.table.Update(ctx, id, c.fields, c.guard)
		},
	})
	if err != nil {
		var oerr *optimistic.Error
		if errors.As(err, &oerr) {
			s.logger.Warn("invoice write failed", "invoice_id", id, "op", op, "error", err)
			return Invoice{}, from, err
		}
		return Invoice{}, from, shared.NotFoundIf(err, "invoice", id)
	}
	s.committed(ctx, op, inv, from)
	return inv, from, nil
}

func (s *Service) committed(ctx context.Context, op string, inv Invoice, from Status) {
	s.publish(EventUpdated, inv)
	if from == inv.Status {
		return
	}
	s.deps.Metrics.ObserveTransition(string(from), string(inv.Status))
	s.logger.Info("invoice status changed", "invoice_id", inv.ID, "from", from, "to", inv.Status, "op", op)
	if s.deps.Audit == nil {
		return
	}
	t := Transition{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		From:          from,
		To:            inv.Status,
		Actor:         ActorUser,
		Op:            op,
		At:            inv.UpdatedAt,
	}
	s.runner.Go(ctx, "invoice.audit", func(ctx context.Context) error {
		return s.deps.Audit.RecordTransition(ctx, t)
	})
}

func (s *Service) publish(eventType string, payload any) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(eventType, payload)
	}
}

func (s *Service) nextNumber(ctx context.Context, year int) (string, error) {
	if s.numberer == nil {
		return "", errors.New("invoices: no invoice numberer configured")
	}
	number, err := s.numberer.Next(ctx, year)
	if err != nil {
		return "", fmt.Errorf("invoices: allocate number: %w", err)
	}
	return number, nil
}

func (s *Service) ensureUniqueNumber(ctx context.Context, id, number string) error {
	existing, err := s.table.ListAll(ctx, records.Eq(FieldInvoiceNumber, number))
	if err != nil {
		return fmt.Errorf("invoices: check number: %w", err)
	}
	for _, inv := range existing {
		if inv.ID != id {
			return &shared.ValidationError{
				Message: "invoice number already in use",
				Fields:  map[string]string{FieldInvoiceNumber: "is already used by another invoice"},
			}
		}
	}
	return nil
}
