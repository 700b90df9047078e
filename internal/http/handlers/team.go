package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clem69B/deglingos-app-sub000/internal/team"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type TeamDirectory interface {
	CreateUser(ctx context.Context, in team.CreateUserInput) (team.User, error)
	DeleteUser(ctx context.Context, username string) error
	AddUserToGroup(ctx context.Context, username, group string) error
	RemoveUserFromGroup(ctx context.Context, username, group string) error
	ListUsers(ctx context.Context, limit int32, pageToken string) ([]team.User, string, error)
	GetUser(ctx context.Context, username string) (team.User, error)
}

// TeamHandler administers staff accounts. Mount it behind an admins-only
// group check.
type TeamHandler struct {
	directory TeamDirectory
	logger    *logging.Logger
}

func NewTeamHandler(directory TeamDirectory, logger *logging.Logger) *TeamHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TeamHandler{directory: directory, logger: logger}
}

func (h *TeamHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Get("/users/{username}", h.GetUser)
	r.Delete("/users/{username}", h.DeleteUser)
	r.Post("/users/{username}/groups", h.AddToGroup)
	r.Delete("/users/{username}/groups/{group}", h.RemoveFromGroup)
	return r
}

func (h *TeamHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, token := pageParams(r)
	users, next, err := h.directory.ListUsers(r.Context(), limit, token)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(users, next))
}

func (h *TeamHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in team.CreateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	u, err := h.directory.CreateUser(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *TeamHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.directory.GetUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *TeamHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.DeleteUser(r.Context(), chi.URLParam(r, "username")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddToGroup handles POST /api/team/users/{username}/groups with {"group"}.
func (h *TeamHandler) AddToGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Group string `json:"group"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.directory.AddUserToGroup(r.Context(), chi.URLParam(r, "username"), body.Group); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamHandler) RemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.RemoveUserFromGroup(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "group")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
