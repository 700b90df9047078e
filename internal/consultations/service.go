// Package consultations records treatment sessions and feeds invoices.
package consultations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type Consultation struct {
	ID        string       `dynamodbav:"id" json:"id"`
	PatientID string       `dynamodbav:"patientId" json:"patientId"`
	Date      string       `dynamodbav:"date" json:"date"`
	Duration  int          `dynamodbav:"duration" json:"duration"`
	Reason    string       `dynamodbav:"reason,omitempty" json:"reason,omitempty"`
	Treatment string       `dynamodbav:"treatment,omitempty" json:"treatment,omitempty"`
	Notes     string       `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	Price     shared.Money `dynamodbav:"price" json:"price"`
	InvoiceID string       `dynamodbav:"invoiceId,omitempty" json:"invoiceId,omitempty"`
	CreatedAt time.Time    `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt time.Time    `dynamodbav:"updatedAt" json:"updatedAt"`
}

var ErrInvoiceLinked = errors.New("consultation is already linked to an invoice")

type Service struct {
	table  *records.Table[Consultation]
	logger *logging.Logger
	now    func() time.Time
}

var _ invoices.ConsultationSource = (*Service)(nil)

func NewService(table *records.Table[Consultation], logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		table:  table,
		logger: logger.Component("consultations"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type Input struct {
	PatientID string       `json:"patientId" validate:"required"`
	Date      string       `json:"date" validate:"required,isodate"`
	Duration  int          `json:"duration" validate:"min=0,max=480"`
	Reason    string       `json:"reason"`
	Treatment string       `json:"treatment"`
	Notes     string       `json:"notes"`
	Price     shared.Money `json:"price"`
}

func (s *Service) Create(ctx context.Context, in Input) (Consultation, error) {
	if err := validate(in); err != nil {
		return Consultation{}, err
	}
	now := s.now()
	c := Consultation{
		ID:        uuid.NewString(),
		PatientID: in.PatientID,
		Date:      in.Date,
		Duration:  in.Duration,
		Reason:    in.Reason,
		Treatment: in.Treatment,
		Notes:     in.Notes,
		Price:     in.Price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := s.table.Create(ctx, c)
	if err != nil {
		return Consultation{}, fmt.Errorf("consultations: create: %w", err)
	}
	return stored, nil
}

func (s *Service) Get(ctx context.Context, id string) (Consultation, error) {
	c, err := s.table.Get(ctx, id)
	if err != nil {
		return Consultation{}, shared.NotFoundIf(err, "consultation", id)
	}
	return c, nil
}

type ListQuery struct {
	PatientID string
	From      string
	To        string
	Limit     int32
	PageToken string
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]Consultation, string, error) {
	var fs []records.Filter
	if q.PatientID != "" {
		fs = append(fs, records.Eq("patientId", q.PatientID))
	}
	if q.From != "" {
		fs = append(fs, records.Ge("date", q.From))
	}
	if q.To != "" {
		fs = append(fs, records.Le("date", q.To))
	}
	return s.table.List(ctx, records.ListOptions{Filter: records.And(fs...), Limit: q.Limit, PageToken: q.PageToken})
}

// Update rewrites the editable fields of a consultation.
func (s *Service) Update(ctx context.Context, id string, in Input) (Consultation, error) {
	if err := validate(in); err != nil {
		return Consultation{}, err
	}
	c, err := s.table.Update(ctx, id, records.Fields{
		"patientId": in.PatientID,
		"date":      in.Date,
		"duration":  in.Duration,
		"reason":    in.Reason,
		"treatment": in.Treatment,
		"notes":     in.Notes,
		"price":     in.Price,
		"updatedAt": s.now(),
	}, nil)
	if err != nil {
		return Consultation{}, shared.NotFoundIf(err, "consultation", id)
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id string) (*Consultation, error) {
	gone, err := s.table.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("consultations: delete %s: %w", id, err)
	}
	return gone, nil
}

func (s *Service) ForInvoice(ctx context.Context, id string) (invoices.FromConsultation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return invoices.FromConsultation{}, err
	}
	return invoices.FromConsultation{
		PatientID: c.PatientID,
		Date:      c.Date,
		Amount:    c.Price,
		Reason:    c.Reason,
		InvoiceID: c.InvoiceID,
	}, nil
}

// LinkInvoice records the invoice drafted from a consultation. A consultation
// is invoiced at most once.
func (s *Service) LinkInvoice(ctx context.Context, id, invoiceID string) error {
	_, err := s.table.Update(ctx, id,
		records.Fields{"invoiceId": invoiceID, "updatedAt": s.now()},
		records.Or(records.NotExists("invoiceId"), records.Eq("invoiceId", "")),
	)
	if errors.Is(err, records.ErrConditionFailed) {
		return ErrInvoiceLinked
	}
	return shared.NotFoundIf(err, "consultation", id)
}

func validate(in Input) error {
	if err := shared.Validate(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return shared.InvalidField("price", "must not be negative")
	}
	return nil
}
