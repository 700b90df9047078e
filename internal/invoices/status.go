package invoices

import (
	"errors"
	"fmt"
)

// Actor distinguishes edits made by staff from scheduled jobs.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorSystem Actor = "system"
)

// ErrIllegalTransition is matched by every *TransitionError.
var ErrIllegalTransition = errors.New("illegal invoice status transition")

type TransitionError struct {
	From  Status
	To    Status
	Actor Actor
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move invoice from %s to %s (%s)", e.From, e.To, e.Actor)
}

func (e *TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// transitions lists, per source status, the reachable statuses and who may
// move there. Self-transitions are idempotent re-applications. The moves to
// DRAFT come from editing the total of an issued invoice.
var transitions = map[Status]map[Status][]Actor{
	StatusDraft: {
		StatusPending: {ActorUser},
	},
	StatusPending: {
		StatusPending: {ActorUser},
		StatusPaid:    {ActorUser},
		StatusOverdue: {ActorSystem},
		StatusDraft:   {ActorUser},
	},
	StatusOverdue: {
		StatusPending: {ActorUser},
		StatusPaid:    {ActorUser},
		StatusDraft:   {ActorUser},
	},
	StatusPaid: {
		StatusPaid:    {ActorUser},
		StatusPending: {ActorUser},
	},
}

// CanTransition reports whether actor may move an invoice from one status to
// another.
func CanTransition(from, to Status, actor Actor) bool {
	for _, a := range transitions[from][to] {
		if a == actor {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status, actor Actor) error {
	if !CanTransition(from, to, actor) {
		return &TransitionError{From: from, To: to, Actor: actor}
	}
	return nil
}

// sources returns the statuses actor may leave to reach to.
func sources(to Status, actor Actor) []Status {
	var out []Status
	for _, from := range []Status{StatusDraft, StatusPending, StatusOverdue, StatusPaid} {
		if CanTransition(from, to, actor) {
			out = append(out, from)
		}
	}
	return out
}
