package invoices

import (
	"time"

	"github.com/Clem69B/deglingos-app-sub000/internal/records"
)

// change is the partial write produced by a local edit plus the precondition
// the stored record must satisfy for the write to apply.
type change struct {
	fields records.Fields
	guard  records.Filter
}

func statusGuard(to Status, actor Actor) records.Filter {
	from := sources(to, actor)
	filters := make([]records.Filter, 0, len(from))
	for _, s := range from {
		filters = append(filters, records.Eq(FieldStatus, s))
	}
	return records.Or(filters...)
}

func (inv *Invoice) markPending(now time.Time) (change, error) {
	if err := checkTransition(inv.Status, StatusPending, ActorUser); err != nil {
		return change{}, err
	}
	// Issuing a draft and re-applying PENDING are guarded apart so the
	// caller's view of "was a draft" always matches the store.
	guard := records.Eq(FieldStatus, StatusDraft)
	if inv.Status != StatusDraft {
		var others []records.Filter
		for _, from := range sources(StatusPending, ActorUser) {
			if from != StatusDraft {
				others = append(others, records.Eq(FieldStatus, from))
			}
		}
		guard = records.Or(others...)
	}
	inv.Status = StatusPending
	inv.IsPaid = false
	inv.PaidAt = nil
	inv.IsDeposited = false
	inv.DepositDate = nil
	inv.UpdatedAt = now
	return change{
		fields: records.Fields{
			FieldStatus:      StatusPending,
			FieldIsPaid:      false,
			FieldPaidAt:      nil,
			FieldIsDeposited: false,
			FieldDepositDate: nil,
			FieldUpdatedAt:   now,
		},
		guard: guard,
	}, nil
}

func (inv *Invoice) markPaid(now time.Time) (change, error) {
	if err := checkTransition(inv.Status, StatusPaid, ActorUser); err != nil {
		return change{}, err
	}
	paidAt := now
	if inv.Status == StatusPaid && inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	inv.Status = StatusPaid
	inv.IsPaid = true
	inv.PaidAt = &paidAt
	inv.UpdatedAt = now
	return change{
		fields: records.Fields{
			FieldStatus:    StatusPaid,
			FieldIsPaid:    true,
			FieldPaidAt:    paidAt,
			FieldUpdatedAt: now,
		},
		guard: statusGuard(StatusPaid, ActorUser),
	}, nil
}

// unmarkPaid only leaves PAID, or re-applies PENDING. It never recomputes
// OVERDUE; the next sweep does.
func (inv *Invoice) unmarkPaid(now time.Time) (change, error) {
	if inv.Status != StatusPaid && inv.Status != StatusPending {
		return change{}, &TransitionError{From: inv.Status, To: StatusPending, Actor: ActorUser}
	}
	c, err := inv.markPending(now)
	if err != nil {
		return change{}, err
	}
	c.guard = records.Or(records.Eq(FieldStatus, StatusPaid), records.Eq(FieldStatus, StatusPending))
	return c, nil
}
