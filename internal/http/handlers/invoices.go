package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/audit"
	"github.com/Clem69B/deglingos-app-sub000/internal/editguard"
	"github.com/Clem69B/deglingos-app-sub000/internal/http/middleware"
	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/pdf"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// InvoiceService is the invoice lifecycle used by InvoicesHandler.
type InvoiceService interface {
	Create(ctx context.Context, in invoices.CreateInput) (invoices.Invoice, error)
	CreateFromConsultation(ctx context.Context, consultationID string) (invoices.Invoice, error)
	Get(ctx context.Context, id string) (invoices.Invoice, error)
	List(ctx context.Context, q invoices.ListQuery) ([]invoices.Invoice, string, error)
	Delete(ctx context.Context, id string) (*invoices.Invoice, error)
	MarkAsPending(ctx context.Context, id string) (invoices.Invoice, error)
	MarkAsPaid(ctx context.Context, id string) (invoices.Invoice, error)
	UnmarkAsPaid(ctx context.Context, id string) (invoices.Invoice, error)
	UpdateField(ctx context.Context, id, field string, raw any) (invoices.Invoice, error)
}

// DocumentService produces and sends invoice PDFs.
type DocumentService interface {
	Generate(ctx context.Context, id string) (pdf.GenerateResult, error)
	Download(ctx context.Context, id string) (pdf.DownloadResult, error)
	EmailInvoice(ctx context.Context, id, to string) (pdf.EmailResult, error)
}

// HistoryReader lists the status changes of an invoice.
type HistoryReader interface {
	ListForInvoice(ctx context.Context, invoiceID string) ([]audit.Event, error)
}

type InvoicesHandler struct {
	invoices  InvoiceService
	documents DocumentService
	history   HistoryReader
	edits     editguard.Registry
	logger    *logging.Logger
}

// NewInvoicesHandler builds the handler. documents, history and edits may be
// nil; their routes then answer 503 or skip the side effect.
func NewInvoicesHandler(svc InvoiceService, documents DocumentService, history HistoryReader, edits editguard.Registry, logger *logging.Logger) *InvoicesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &InvoicesHandler{invoices: svc, documents: documents, history: history, edits: edits, logger: logger}
}

func (h *InvoicesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/from-consultation/{consultationID}", h.CreateFromConsultation)
	r.Route("/{invoiceID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.UpdateField)
		r.Delete("/", h.Delete)
		r.Post("/pending", h.MarkAsPending)
		r.Post("/paid", h.MarkAsPaid)
		r.Delete("/paid", h.UnmarkAsPaid)
		r.Post("/pdf", h.GeneratePDF)
		r.Get("/pdf/download", h.DownloadPDF)
		r.Post("/email", h.Email)
		r.Get("/history", h.History)
	})
	return r
}

// List handles GET /api/invoices?status=&patientId=&search=&from=&to=&limit=&pageToken=
func (h *InvoicesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, token := pageParams(r)
	items, next, err := h.invoices.List(r.Context(), invoices.ListQuery{
		Status:    invoices.Status(q.Get("status")),
		PatientID: q.Get("patientId"),
		Search:    q.Get("search"),
		From:      q.Get("from"),
		To:        q.Get("to"),
		Limit:     limit,
		PageToken: token,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(items, next))
}

func (h *InvoicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in invoices.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	inv, err := h.invoices.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// CreateFromConsultation handles POST /api/invoices/from-consultation/{consultationID}.
func (h *InvoicesHandler) CreateFromConsultation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.CreateFromConsultation(r.Context(), chi.URLParam(r, "consultationID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvoicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.Get(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Delete is idempotent: a missing invoice answers 204 too.
func (h *InvoicesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.invoices.Delete(r.Context(), chi.URLParam(r, "invoiceID")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvoicesHandler) MarkAsPending(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invoices.MarkAsPending)
}

func (h *InvoicesHandler) MarkAsPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invoices.MarkAsPaid)
}

func (h *InvoicesHandler) UnmarkAsPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invoices.UnmarkAsPaid)
}

func (h *InvoicesHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (invoices.Invoice, error)) {
	inv, err := op(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type fieldUpdate struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// UpdateField handles PATCH /api/invoices/{invoiceID} with {"field","value"}.
// A successful save releases the edit named by X-Edit-Token; a failed save
// keeps it.
func (h *InvoicesHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var body fieldUpdate
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Field == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "field is required", Fields: map[string]string{"field": "is required"}})
		return
	}
	inv, err := h.invoices.UpdateField(r.Context(), chi.URLParam(r, "invoiceID"), body.Field, body.Value)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	releaseEdit(r, h.edits, h.logger)
	writeJSON(w, http.StatusOK, inv)
}

// GeneratePDF handles POST /api/invoices/{invoiceID}/pdf.
func (h *InvoicesHandler) GeneratePDF(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		jsonError(w, "document generation is not configured", http.StatusServiceUnavailable)
		return
	}
	res, err := h.documents.Generate(r.Context(), chi.URLParam(r, "invoiceID"))
	h.writeResult(w, r, res, err)
}

// DownloadPDF handles GET /api/invoices/{invoiceID}/pdf/download.
func (h *InvoicesHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		jsonError(w, "document generation is not configured", http.StatusServiceUnavailable)
		return
	}
	res, err := h.documents.Download(r.Context(), chi.URLParam(r, "invoiceID"))
	h.writeResult(w, r, res, err)
}

// Email handles POST /api/invoices/{invoiceID}/email with an optional {"to"}.
func (h *InvoicesHandler) Email(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		jsonError(w, "document generation is not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		To string `json:"to"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.documents.EmailInvoice(r.Context(), chi.URLParam(r, "invoiceID"), body.To)
	h.writeResult(w, r, res, err)
}

// writeResult sends a document result with the status of err. The result
// body is kept so clients always get {success, message}.
func (h *InvoicesHandler) writeResult(w http.ResponseWriter, r *http.Request, res any, err error) {
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusBadGateway {
			h.logger.Error("invoice document request failed", "path", r.URL.Path, "error", err)
		}
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History handles GET /api/invoices/{invoiceID}/history.
func (h *InvoicesHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, newPage([]audit.Event(nil), ""))
		return
	}
	events, err := h.history.ListForInvoice(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(events, ""))
}

// releaseEdit drops the edit token carried by a successful save.
func releaseEdit(r *http.Request, edits editguard.Registry, logger *logging.Logger) {
	token := r.Header.Get("X-Edit-Token")
	if edits == nil || token == "" {
		return
	}
	if err := edits.Release(r.Context(), middleware.UserFromContext(r.Context()), token); err != nil {
		logger.Warn("failed to release edit token", "token", token, "error", err)
	}
}
