package clinic

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// Handler serves the practice profile.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetProfile)
	r.Put("/", h.UpdateProfile)
	return r
}

// GetProfile handles GET /api/practice.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get practice profile", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to load practice profile"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile handles PUT /api/practice. The body replaces the profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := shared.Validate(p); err != nil {
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "fields": verr.Fields})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.store.Set(r.Context(), p); err != nil {
		h.logger.Error("failed to save practice profile", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to save practice profile"})
		return
	}
	h.logger.Info("practice profile updated", "name", p.Name)
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
