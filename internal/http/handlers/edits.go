package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/editguard"
	"github.com/Clem69B/deglingos-app-sub000/internal/http/middleware"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// EditsHandler exposes the caller's unsaved edits.
type EditsHandler struct {
	registry editguard.Registry
	logger   *logging.Logger
}

func NewEditsHandler(registry editguard.Registry, logger *logging.Logger) *EditsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &EditsHandler{registry: registry, logger: logger}
}

func (h *EditsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Active)
	r.Post("/", h.Register)
	r.Delete("/{token}", h.Release)
	return r
}

type editsResponse struct {
	Dirty bool             `json:"dirty"`
	Edits []editguard.Edit `json:"edits"`
}

// Active handles GET /api/edits.
func (h *EditsHandler) Active(w http.ResponseWriter, r *http.Request) {
	edits, err := h.registry.Active(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if edits == nil {
		edits = []editguard.Edit{}
	}
	writeJSON(w, http.StatusOK, editsResponse{Dirty: len(edits) > 0, Edits: edits})
}

// Register handles POST /api/edits with {"scope"}, e.g. "invoice:inv-1:total".
func (h *EditsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scope string `json:"scope"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Scope == "" {
		writeError(w, h.logger, r, shared.InvalidField("scope", "is required"))
		return
	}
	edit, err := h.registry.Register(r.Context(), middleware.UserFromContext(r.Context()), body.Scope)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, edit)
}

// Release handles DELETE /api/edits/{token}, used when the user discards.
func (h *EditsHandler) Release(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Release(r.Context(), middleware.UserFromContext(r.Context()), chi.URLParam(r, "token")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
