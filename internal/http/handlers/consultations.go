package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/consultations"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type ConsultationService interface {
	Create(ctx context.Context, in consultations.Input) (consultations.Consultation, error)
	Get(ctx context.Context, id string) (consultations.Consultation, error)
	List(ctx context.Context, q consultations.ListQuery) ([]consultations.Consultation, string, error)
	Update(ctx context.Context, id string, in consultations.Input) (consultations.Consultation, error)
	Delete(ctx context.Context, id string) (*consultations.Consultation, error)
}

type ConsultationsHandler struct {
	consultations ConsultationService
	logger        *logging.Logger
}

func NewConsultationsHandler(svc ConsultationService, logger *logging.Logger) *ConsultationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConsultationsHandler{consultations: svc, logger: logger}
}

func (h *ConsultationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{consultationID}", h.Get)
	r.Put("/{consultationID}", h.Update)
	r.Delete("/{consultationID}", h.Delete)
	return r
}

// List handles GET /api/consultations?patientId=&from=&to=&limit=&pageToken=
func (h *ConsultationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, token := pageParams(r)
	items, next, err := h.consultations.List(r.Context(), consultations.ListQuery{
		PatientID: q.Get("patientId"),
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

func (h *ConsultationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in consultations.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := h.consultations.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ConsultationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.consultations.Get(r.Context(), chi.URLParam(r, "consultationID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConsultationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in consultations.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := h.consultations.Update(r.Context(), chi.URLParam(r, "consultationID"), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConsultationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.consultations.Delete(r.Context(), chi.URLParam(r, "consultationID")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
