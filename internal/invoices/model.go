// Package invoices owns the invoice lifecycle: creation, numbering, status
// transitions and field edits.
package invoices

import (
	"fmt"
	"time"

	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
)

type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCheck        PaymentMethod = "CHECK"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentCash         PaymentMethod = "CASH"
	PaymentCard         PaymentMethod = "CARD"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCheck, PaymentBankTransfer, PaymentCash, PaymentCard:
		return true
	}
	return false
}

// Stored attribute names.
const (
	FieldID               = "id"
	FieldInvoiceNumber    = "invoiceNumber"
	FieldPatientID        = "patientId"
	FieldConsultationID   = "consultationId"
	FieldDate             = "date"
	FieldDueDate          = "dueDate"
	FieldTotal            = "total"
	FieldStatus           = "status"
	FieldPaymentMethod    = "paymentMethod"
	FieldPaymentReference = "paymentReference"
	FieldIsPaid           = "isPaid"
	FieldPaidAt           = "paidAt"
	FieldIsDeposited      = "isDeposited"
	FieldDepositDate      = "depositDate"
	FieldNotes            = "notes"
	FieldUpdatedAt        = "updatedAt"
)

type Invoice struct {
	ID               string        `dynamodbav:"id" json:"id"`
	InvoiceNumber    string        `dynamodbav:"invoiceNumber" json:"invoiceNumber"`
	PatientID        string        `dynamodbav:"patientId" json:"patientId"`
	ConsultationID   string        `dynamodbav:"consultationId,omitempty" json:"consultationId,omitempty"`
	Date             string        `dynamodbav:"date" json:"date"`
	DueDate          string        `dynamodbav:"dueDate" json:"dueDate"`
	Total            shared.Money  `dynamodbav:"total" json:"total"`
	Status           Status        `dynamodbav:"status" json:"status"`
	PaymentMethod    PaymentMethod `dynamodbav:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	PaymentReference string        `dynamodbav:"paymentReference,omitempty" json:"paymentReference,omitempty"`
	IsPaid           bool          `dynamodbav:"isPaid" json:"isPaid"`
	PaidAt           *time.Time    `dynamodbav:"paidAt" json:"paidAt"`
	IsDeposited      bool          `dynamodbav:"isDeposited" json:"isDeposited"`
	DepositDate      *string       `dynamodbav:"depositDate" json:"depositDate"`
	Notes            string        `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt        time.Time     `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time     `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with inv.
func (inv Invoice) Clone() Invoice {
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		inv.PaidAt = &t
	}
	if inv.DepositDate != nil {
		d := *inv.DepositDate
		inv.DepositDate = &d
	}
	return inv
}

// Check reports the first broken consistency rule, if any.
func (inv Invoice) Check(today string) error {
	paid := inv.Status == StatusPaid
	if paid != inv.IsPaid || paid != (inv.PaidAt != nil) {
		return fmt.Errorf("invoice %s: status %s with isPaid=%t and paidAt set=%t", inv.ID, inv.Status, inv.IsPaid, inv.PaidAt != nil)
	}
	if inv.Status == StatusDraft && (inv.IsDeposited || inv.DepositDate != nil) {
		return fmt.Errorf("invoice %s: draft invoice carries deposit data", inv.ID)
	}
	if inv.IsDeposited {
		if inv.PaymentMethod != PaymentCheck {
			return fmt.Errorf("invoice %s: deposited invoice paid by %s", inv.ID, inv.PaymentMethod)
		}
		if inv.DepositDate == nil || *inv.DepositDate > today {
			return fmt.Errorf("invoice %s: deposit date missing or in the future", inv.ID)
		}
	}
	return nil
}

// Transition describes one committed status change.
type Transition struct {
	InvoiceID     string
	InvoiceNumber string
	From          Status
	To            Status
	Actor         Actor
	Op            string
	At            time.Time
}
