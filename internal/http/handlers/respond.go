// Package handlers exposes the clinic services over JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Clem69B/deglingos-app-sub000/internal/consultations"
	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Page wraps one page of a list endpoint.
type Page[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func newPage[T any](items []T, next string) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, NextPageToken: next}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorBody{Error: msg})
}

// errorStatus maps a service error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, records.ErrInvalidPageToken):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrConditionFailed),
		errors.Is(err, records.ErrAlreadyExists),
		errors.Is(err, invoices.ErrIllegalTransition),
		errors.Is(err, invoices.ErrAlreadyInvoiced),
		errors.Is(err, consultations.ErrInvoiceLinked):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// writeError answers with the status of err. Store failures are logged and
// their detail kept out of the response.
func writeError(w http.ResponseWriter, logger *logging.Logger, r *http.Request, err error) {
	status := errorStatus(err)
	body := errorBody{Error: records.Message(err)}
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		body = errorBody{Error: verr.Message, Fields: verr.Fields}
	}
	if status == http.StatusBadGateway {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = "upstream store unavailable"
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into v, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// pageParams reads the limit and pageToken query parameters.
func pageParams(r *http.Request) (int32, string) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 0 || limit > 500 {
		limit = 0
	}
	return int32(limit), q.Get("pageToken")
}
