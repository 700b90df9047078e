// Package audit keeps the invoice status history in Postgres.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Event is one stored status change.
type Event struct {
	ID            int64     `json:"id"`
	InvoiceID     string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	FromStatus    string    `json:"from"`
	ToStatus      string    `json:"to"`
	Actor         string    `json:"actor"`
	Op            string    `json:"op"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Store struct {
	db querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("audit: pgx pool required")
	}
	return &Store{db: pool}
}

func newStoreWithQuerier(q querier) *Store {
	if q == nil {
		panic("audit: querier required")
	}
	return &Store{db: q}
}

// RecordTransition appends one status change.
func (s *Store) RecordTransition(ctx context.Context, t invoices.Transition) error {
	const query = `
		INSERT INTO invoice_status_events (invoice_id, invoice_number, from_status, to_status, actor, op, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, query, t.InvoiceID, t.InvoiceNumber, string(t.From), string(t.To), string(t.Actor), t.Op, at); err != nil {
		return fmt.Errorf("audit: record transition %s: %w", t.InvoiceID, err)
	}
	return nil
}

// ListForInvoice returns the history of one invoice, oldest first.
func (s *Store) ListForInvoice(ctx context.Context, invoiceID string) ([]Event, error) {
	const query = `
		SELECT id, invoice_id, invoice_number, from_status, to_status, actor, op, occurred_at
		FROM invoice_status_events
		WHERE invoice_id = $1
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("audit: list %s: %w", invoiceID, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.InvoiceNumber, &e.FromStatus, &e.ToStatus, &e.Actor, &e.Op, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return out, nil
}

var _ invoices.TransitionRecorder = (*Store)(nil)
