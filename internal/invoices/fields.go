package invoices

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
)

type fieldSpec struct {
	parse func(raw any) (any, error)
	apply func(inv *Invoice, v any, now time.Time) (change, error)
}

// editable lists the fields UpdateField accepts. Status, payment and deposit
// fields only move through the dedicated operations.
var editable = map[string]fieldSpec{
	FieldInvoiceNumber: {
		parse: requiredString,
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			inv.InvoiceNumber = v.(string)
			return inv.touch(FieldInvoiceNumber, inv.InvoiceNumber, now), nil
		},
	},
	FieldDate: {
		parse: dateString,
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			date := v.(string)
			if inv.DueDate != "" && date > inv.DueDate {
				return change{}, shared.InvalidField(FieldDate, "must not be after the due date")
			}
			inv.Date = date
			return inv.touch(FieldDate, date, now), nil
		},
	},
	FieldDueDate: {
		parse: dateString,
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			due := v.(string)
			if due < inv.Date {
				return change{}, shared.InvalidField(FieldDueDate, "must not be before the invoice date")
			}
			inv.DueDate = due
			return inv.touch(FieldDueDate, due, now), nil
		},
	},
	FieldTotal: {
		parse: func(raw any) (any, error) {
			m, err := shared.ParseMoney(raw)
			if err != nil {
				return nil, err
			}
			if m.IsNegative() {
				return nil, errors.New("must not be negative")
			}
			return m, nil
		},
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			inv.Total = v.(shared.Money)
			c := inv.touch(FieldTotal, inv.Total, now)
			if inv.Status == StatusDraft || inv.Status == StatusPaid {
				return c, nil
			}
			if err := checkTransition(inv.Status, StatusDraft, ActorUser); err != nil {
				return change{}, err
			}
			c.guard = records.Eq(FieldStatus, inv.Status)
			inv.Status = StatusDraft
			inv.IsDeposited = false
			inv.DepositDate = nil
			c.fields[FieldStatus] = StatusDraft
			c.fields[FieldIsDeposited] = false
			c.fields[FieldDepositDate] = nil
			return c, nil
		},
	},
	FieldPaymentMethod: {
		parse: func(raw any) (any, error) {
			s, err := trimmedString(raw)
			if err != nil {
				return nil, err
			}
			m := PaymentMethod(strings.ToUpper(s))
			if m != "" && !m.Valid() {
				return nil, fmt.Errorf("must be one of %s %s %s %s", PaymentCheck, PaymentBankTransfer, PaymentCash, PaymentCard)
			}
			return m, nil
		},
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			m := v.(PaymentMethod)
			if inv.IsDeposited && m != PaymentCheck {
				return change{}, shared.InvalidField(FieldPaymentMethod, "deposited invoices must stay paid by check")
			}
			inv.PaymentMethod = m
			c := inv.touch(FieldPaymentMethod, m, now)
			if m != PaymentCheck {
				c.guard = records.Ne(FieldIsDeposited, true)
			}
			return c, nil
		},
	},
	FieldPaymentReference: {
		parse: optionalString,
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			inv.PaymentReference = v.(string)
			return inv.touch(FieldPaymentReference, inv.PaymentReference, now), nil
		},
	},
	FieldNotes: {
		parse: optionalString,
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			inv.Notes = v.(string)
			return inv.touch(FieldNotes, inv.Notes, now), nil
		},
	},
	FieldConsultationID: {
		parse: optionalString,
		apply: func(inv *Invoice, v any, now time.Time) (change, error) {
			inv.ConsultationID = v.(string)
			return inv.touch(FieldConsultationID, inv.ConsultationID, now), nil
		},
	},
}

// Editable reports whether UpdateField accepts field.
func Editable(field string) bool {
	_, ok := editable[field]
	return ok
}

func (inv *Invoice) touch(field string, value any, now time.Time) change {
	inv.UpdatedAt = now
	return change{fields: records.Fields{field: value, FieldUpdatedAt: now}}
}

func trimmedString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	}
	return "", errors.New("must be a string")
}

func optionalString(raw any) (any, error) {
	v, err := trimmedString(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func requiredString(raw any) (any, error) {
	v, err := trimmedString(raw)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, errors.New("is required")
	}
	return v, nil
}

func dateString(raw any) (any, error) {
	v, err := requiredString(raw)
	if err != nil {
		return nil, err
	}
	if !shared.IsDate(v.(string)) {
		return nil, errors.New("must be a date formatted YYYY-MM-DD")
	}
	return v, nil
}
