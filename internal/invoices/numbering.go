package invoices

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Clem69B/deglingos-app-sub000/internal/records"
)

// Sequence numbers invoices F{year}-{seq} from an atomic per-year counter.
type Sequence struct {
	backend records.Backend
	table   string
}

func NewSequence(backend records.Backend, table string) *Sequence {
	return &Sequence{backend: backend, table: table}
}

func (s *Sequence) Next(ctx context.Context, year int) (string, error) {
	n, err := s.backend.Increment(ctx, s.table, "invoice-"+strconv.Itoa(year), "value", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("F%d-%04d", year, n), nil
}
