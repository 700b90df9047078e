package sweep

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresHistory stores run reports in sweep_runs.
type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func (h *PostgresHistory) Save(ctx context.Context, r Report) error {
	query := `
		INSERT INTO sweep_runs (
			id, run_date, started_at, duration_ms, found, succeeded, failed, failed_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := h.db.ExecContext(ctx, query,
		r.RunID,
		r.Today,
		r.StartedAt,
		r.DurationMS,
		r.Found,
		r.Succeeded,
		r.Failed,
		pq.Array(r.FailedIDs()),
	)
	if err != nil {
		return fmt.Errorf("sweep: save run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first. Failure messages are not
// kept, only the failed invoice ids.
func (h *PostgresHistory) Recent(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, run_date, started_at, duration_ms, found, succeeded, failed, failed_ids
		FROM sweep_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("sweep: list runs: %w", err)
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		var (
			r         Report
			runDate   time.Time
			failedIDs []string
		)
		if err := rows.Scan(&r.RunID, &runDate, &r.StartedAt, &r.DurationMS, &r.Found, &r.Succeeded, &r.Failed, pq.Array(&failedIDs)); err != nil {
			return nil, fmt.Errorf("sweep: scan run: %w", err)
		}
		r.Today = runDate.Format(time.DateOnly)
		r.Failures = make([]Failure, 0, len(failedIDs))
		for _, id := range failedIDs {
			r.Failures = append(r.Failures, Failure{InvoiceID: id})
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
