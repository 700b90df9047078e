package invoices

import (
	"time"

	"github.com/Clem69B/deglingos-app-sub000/internal/records"
)

// OverdueCandidates matches pending invoices whose due date is strictly
// before today.
func OverdueCandidates(today string) records.Filter {
	return records.And(
		records.Eq(FieldStatus, StatusPending),
		records.Lt(FieldDueDate, today),
	)
}

// MarkOverdue is the system write flipping a pending invoice to OVERDUE.
// The guard makes it a no-op failure when the invoice moved meanwhile.
func MarkOverdue(now time.Time) (records.Fields, records.Filter) {
	return records.Fields{
			FieldStatus:    StatusOverdue,
			FieldUpdatedAt: now,
		},
		statusGuard(StatusOverdue, ActorSystem)
}

// UndepositedChecks matches paid check invoices not yet taken to the bank.
func UndepositedChecks() records.Filter {
	return records.And(
		records.Eq(FieldPaymentMethod, PaymentCheck),
		records.Eq(FieldStatus, StatusPaid),
		records.Ne(FieldIsDeposited, true),
	)
}

// MarkDeposited records a bank deposit on a paid check invoice.
func MarkDeposited(depositDate string, now time.Time) (records.Fields, records.Filter) {
	return records.Fields{
			FieldIsDeposited: true,
			FieldDepositDate: depositDate,
			FieldUpdatedAt:   now,
		},
		records.And(
			records.Eq(FieldPaymentMethod, PaymentCheck),
			records.Eq(FieldStatus, StatusPaid),
		)
}

// ClearDeposit reverts MarkDeposited.
func ClearDeposit(now time.Time) (records.Fields, records.Filter) {
	return records.Fields{
			FieldIsDeposited: false,
			FieldDepositDate: nil,
			FieldUpdatedAt:   now,
		},
		records.Eq(FieldIsDeposited, true)
}
