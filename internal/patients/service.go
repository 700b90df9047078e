package patients

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
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type Service struct {
	table   *records.Table[Patient]
	cache   *optimistic.Cache[Patient]
	names   *NameCache
	logger  *logging.Logger
	now     func() time.Time
	metrics *metrics.InvoiceMetrics
}

func NewService(table *records.Table[Patient], cacheTTL time.Duration, names *NameCache, m *metrics.InvoiceMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		table:   table,
		names:   names,
		logger:  logger.Component("patients"),
		now:     func() time.Time { return time.Now().UTC() },
		metrics: m,
	}
	s.cache = optimistic.NewCache[Patient](table.Get, cacheTTL)
	s.cache.OnRevert(func(op string) { m.ObserveRevert("patient", op) })
	return s
}

type CreateInput struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
	BirthDate  string `json:"birthDate" validate:"isodate"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Notes      string `json:"notes"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Patient, error) {
	if err := shared.Validate(in); err != nil {
		return Patient{}, err
	}
	now := s.now()
	p := Patient{
		ID:         uuid.NewString(),
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Email:      strings.TrimSpace(in.Email),
		Phone:      in.Phone,
		BirthDate:  in.BirthDate,
		Address:    in.Address,
		City:       in.City,
		PostalCode: in.PostalCode,
		Notes:      in.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.SearchKey = searchKey(p)
	stored, err := s.table.Create(ctx, p)
	if err != nil {
		return Patient{}, fmt.Errorf("patients: create: %w", err)
	}
	s.cache.Put(stored.ID, stored)
	return stored, nil
}

func (s *Service) Get(ctx context.Context, id string) (Patient, error) {
	p, err := s.table.Get(ctx, id)
	if err != nil {
		return Patient{}, shared.NotFoundIf(err, "patient", id)
	}
	s.cache.Put(id, p)
	return p, nil
}

// List searches first name, last name and email.
func (s *Service) List(ctx context.Context, search string, limit int32, pageToken string) ([]Patient, string, error) {
	var filter records.Filter
	if q := strings.ToLower(strings.TrimSpace(search)); q != "" {
		filter = records.Contains("searchKey", q)
	}
	return s.table.List(ctx, records.ListOptions{Filter: filter, Limit: limit, PageToken: pageToken})
}

var editable = map[string]bool{
	"firstName": true, "lastName": true, "email": true, "phone": true, "birthDate": true,
	"address": true, "city": true, "postalCode": true, "notes": true,
}

// UpdateField edits one patient field optimistically.
func (s *Service) UpdateField(ctx context.Context, id, field string, raw any) (Patient, error) {
	if !editable[field] {
		return Patient{}, shared.InvalidField(field, "is not editable")
	}
	value, ok := raw.(string)
	if !ok && raw != nil {
		return Patient{}, shared.InvalidField(field, "must be a string")
	}
	value = strings.TrimSpace(value)
	if err := validateField(field, value); err != nil {
		return Patient{}, err
	}

	var fields records.Fields
	p, err := s.cache.Mutate(ctx, id, optimistic.Mutation[Patient]{
		Name: "updateField:" + field,
		Apply: func(p *Patient) error {
			setField(p, field, value)
			p.UpdatedAt = s.now()
			p.SearchKey = searchKey(*p)
			fields = records.Fields{field: value, "searchKey": p.SearchKey, "updatedAt": p.UpdatedAt}
			return nil
		},
		Commit: func(ctx context.Context, _ Patient) (Patient, error) {
			return s.table.Update(ctx, id, fields, nil)
		},
	})
	if err != nil {
		var oerr *optimistic.Error
		if errors.As(err, &oerr) {
			return Patient{}, err
		}
		return Patient{}, shared.NotFoundIf(err, "patient", id)
	}
	if field == "firstName" || field == "lastName" {
		if err := s.names.Invalidate(ctx, id); err != nil {
			s.logger.Warn("failed to invalidate cached patient name", "patient_id", id, "error", err)
		}
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) (*Patient, error) {
	gone, err := s.table.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("patients: delete %s: %w", id, err)
	}
	s.cache.Forget(id)
	if gone != nil {
		if err := s.names.Invalidate(ctx, id); err != nil {
			s.logger.Warn("failed to invalidate cached patient name", "patient_id", id, "error", err)
		}
	}
	return gone, nil
}

// DisplayName resolves a patient name through the Redis cache, falling back
// to the record store. Cache errors are logged and bypassed.
func (s *Service) DisplayName(ctx context.Context, id string) (string, error) {
	name, ok, err := s.names.Get(ctx, id)
	if err != nil {
		s.logger.Warn("patient name cache unavailable", "patient_id", id, "error", err)
	}
	if ok {
		return name, nil
	}
	p, err := s.cache.Get(ctx, id)
	if err != nil {
		return "", shared.NotFoundIf(err, "patient", id)
	}
	name = p.DisplayName()
	if err := s.names.Set(ctx, id, name); err != nil {
		s.logger.Warn("failed to cache patient name", "patient_id", id, "error", err)
	}
	return name, nil
}

func validateField(field, value string) error {
	switch field {
	case "firstName", "lastName":
		if value == "" {
			return shared.InvalidField(field, "is required")
		}
	case "email":
		if value != "" && !strings.Contains(value, "@") {
			return shared.InvalidField(field, "must be a valid email address")
		}
	case "birthDate":
		if value != "" && !shared.IsDate(value) {
			return shared.InvalidField(field, "must be a date formatted YYYY-MM-DD")
		}
	}
	return nil
}

func setField(p *Patient, field, value string) {
	switch field {
	case "firstName":
		p.FirstName = value
	case "lastName":
		p.LastName = value
	case "email":
		p.Email = value
	case "phone":
		p.Phone = value
	case "birthDate":
		p.BirthDate = value
	case "address":
		p.Address = value
	case "city":
		p.City = value
	case "postalCode":
		p.PostalCode = value
	case "notes":
		p.Notes = value
	}
}
