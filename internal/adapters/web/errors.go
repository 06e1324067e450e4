package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"backoffice/internal/core"
)

type errorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorDetails(w, r, message, code, status, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, message, code string, status int, details []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: requestIDFromContext(r.Context()),
	})
}

// writeServiceError maps the core error taxonomy to HTTP statuses. Unmatched
// errors become opaque 500s so internal detail never leaks to clients.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *core.ValidationError
		notFound   *core.NotFoundError
		conflict   *core.ConflictError
		state      *core.StateError
		permission *core.PermissionError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, r, validation.Msg, "VALIDATION", http.StatusBadRequest)
	case errors.As(err, &notFound):
		writeError(w, r, notFound.Msg, "NOT_FOUND", http.StatusNotFound)
	case errors.As(err, &conflict):
		writeErrorDetails(w, r, conflict.Msg, "CONFLICT", http.StatusConflict, conflict.Details)
	case errors.As(err, &state):
		writeError(w, r, state.Msg, "INVALID_STATE", http.StatusConflict)
	case errors.As(err, &permission):
		writeError(w, r, permission.Msg, "FORBIDDEN", http.StatusForbidden)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
