// Package httpapi implements the core's HTTP surface (§6): the auth endpoints and the
// per-database migrate/changes/run endpoints, generalized from the teacher's handler package's
// response-writing conventions.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/crrserver/core/internal/apperror"
)

// ErrorResponse is the standard error shape every endpoint returns on failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Error("failed to encode json response", slog.String("error", err.Error()))
	}
}

// writeError maps an apperror.AppError to the HTTP status §7 assigns its kind; a stream
// handler uses writeSSEError instead to keep the mapping inside an event:error frame.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := classify(appErr)
		message := appErr.Message
		if status == http.StatusInternalServerError {
			if logger != nil {
				logger.Error("internal error", slog.String("error", appErr.Error()))
			}
			message = "an internal error occurred"
		}
		writeJSON(w, logger, status, ErrorResponse{Error: kind, Message: message})
		return
	}
	if logger != nil {
		logger.Error("unclassified error", slog.String("error", err.Error()))
	}
	writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "an internal error occurred"})
}

// classify maps an AppError's sentinel to (HTTP status, machine-readable kind) per §7:
// Unauthorized → 401; ReservedName and request-parsing kinds → 400; everything else → 500 with
// the underlying message redacted from the client-visible text.
func classify(appErr *apperror.AppError) (int, string) {
	switch {
	case errors.Is(appErr.Err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(appErr.Err, apperror.ErrReservedName):
		return http.StatusBadRequest, "reserved_name"
	case errors.Is(appErr.Err, apperror.ErrJSON),
		errors.Is(appErr.Err, apperror.ErrBase64Decode),
		errors.Is(appErr.Err, apperror.ErrInvalidURL),
		errors.Is(appErr.Err, apperror.ErrParser),
		errors.Is(appErr.Err, apperror.ErrPathRejection):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
