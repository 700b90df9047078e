package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/sweep"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type SweepRunner interface {
	Run(ctx context.Context) (sweep.Report, error)
}

type SweepHistory interface {
	Recent(ctx context.Context, limit int) ([]sweep.Report, error)
}

// SweepHandler lets administrators run the overdue sweep on demand and
// inspect past runs.
type SweepHandler struct {
	runner  SweepRunner
	history SweepHistory
	logger  *logging.Logger
}

func NewSweepHandler(runner SweepRunner, history SweepHistory, logger *logging.Logger) *SweepHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SweepHandler{runner: runner, history: history, logger: logger}
}

func (h *SweepHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Run)
	r.Get("/runs", h.Runs)
	return r
}

// Run handles POST /api/admin/sweep. Per-invoice failures are part of the
// report; only a failed scan is an error.
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Run(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Runs handles GET /api/admin/sweep/runs?limit=
func (h *SweepHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, newPage([]sweep.Report(nil), ""))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(runs, ""))
}
