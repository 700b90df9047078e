package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/editguard"
	"github.com/Clem69B/deglingos-app-sub000/internal/patients"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type PatientService interface {
	Create(ctx context.Context, in patients.CreateInput) (patients.Patient, error)
	Get(ctx context.Context, id string) (patients.Patient, error)
	List(ctx context.Context, search string, limit int32, pageToken string) ([]patients.Patient, string, error)
	UpdateField(ctx context.Context, id, field string, raw any) (patients.Patient, error)
	Delete(ctx context.Context, id string) (*patients.Patient, error)
}

type PatientsHandler struct {
	patients PatientService
	edits    editguard.Registry
	logger   *logging.Logger
}

func NewPatientsHandler(svc PatientService, edits editguard.Registry, logger *logging.Logger) *PatientsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PatientsHandler{patients: svc, edits: edits, logger: logger}
}

func (h *PatientsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{patientID}", h.Get)
	r.Patch("/{patientID}", h.UpdateField)
	r.Delete("/{patientID}", h.Delete)
	return r
}

// List handles GET /api/patients?search=&limit=&pageToken=
func (h *PatientsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, token := pageParams(r)
	items, next, err := h.patients.List(r.Context(), r.URL.Query().Get("search"), limit, token)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(items, next))
}

func (h *PatientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in patients.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.patients.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PatientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.patients.Get(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PatientsHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var body fieldUpdate
	if !decodeJSON(w, r, &body) {
		return
	}
	p, err := h.patients.UpdateField(r.Context(), chi.URLParam(r, "patientID"), body.Field, body.Value)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	releaseEdit(r, h.edits, h.logger)
	writeJSON(w, http.StatusOK, p)
}

func (h *PatientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.patients.Delete(r.Context(), chi.URLParam(r, "patientID")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
