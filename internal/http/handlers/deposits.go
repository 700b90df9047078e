package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/deposits"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// DepositTracker is the check deposit queue used by DepositsHandler.
type DepositTracker interface {
	ListUndeposited(ctx context.Context) ([]deposits.Entry, error)
	MarkAsDeposited(ctx context.Context, ids []string, depositDate string) (deposits.Result, error)
	UnmarkDeposited(ctx context.Context, ids []string) (deposits.Result, error)
}

type DepositsHandler struct {
	tracker DepositTracker
	logger  *logging.Logger
}

func NewDepositsHandler(tracker DepositTracker, logger *logging.Logger) *DepositsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DepositsHandler{tracker: tracker, logger: logger}
}

func (h *DepositsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Deposit)
	r.Delete("/", h.Undeposit)
	return r
}

type depositRequest struct {
	InvoiceIDs  []string `json:"invoiceIds"`
	DepositDate string   `json:"depositDate"`
}

// batchResponse is a deposit batch outcome. Error is set when some invoices
// failed; the others stay updated.
type batchResponse struct {
	deposits.Result
	Error string `json:"error,omitempty"`
}

// List handles GET /api/deposits: paid checks not yet deposited, oldest first.
func (h *DepositsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.ListUndeposited(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(entries, ""))
}

// Deposit handles POST /api/deposits with {"invoiceIds","depositDate"}.
func (h *DepositsHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var body depositRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.tracker.MarkAsDeposited(r.Context(), body.InvoiceIDs, body.DepositDate)
	h.writeBatch(w, r, res, err)
}

// Undeposit handles DELETE /api/deposits with {"invoiceIds"}.
func (h *DepositsHandler) Undeposit(w http.ResponseWriter, r *http.Request) {
	var body depositRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.tracker.UnmarkDeposited(r.Context(), body.InvoiceIDs)
	h.writeBatch(w, r, res, err)
}

func (h *DepositsHandler) writeBatch(w http.ResponseWriter, r *http.Request, res deposits.Result, err error) {
	if errors.Is(err, shared.ErrValidation) {
		writeError(w, h.logger, r, err)
		return
	}
	if res.Updated == nil {
		res.Updated = []string{}
	}
	if res.Failed == nil {
		res.Failed = []deposits.Failure{}
	}
	if res.Queue == nil {
		res.Queue = []deposits.Entry{}
	}
	out := batchResponse{Result: res}
	if err != nil {
		var batch *deposits.BatchError
		if errors.As(err, &batch) {
			out.Error = batch.Error()
		} else {
			out.Error = "deposit queue could not be refreshed"
		}
		h.logger.Warn("deposit batch incomplete", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, http.StatusOK, out)
}
