package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stablelink/stable-core/internal/auth"
	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/feeding"
	"github.com/stablelink/stable-core/internal/horse"
	"github.com/stablelink/stable-core/internal/stream"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeValidation   = "validation_error"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
)

// classifyError maps a domain error to an HTTP status and error code.
// Clients distinguish outcomes by code, never by message text.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, feeding.ErrInvalidAmount),
		errors.Is(err, feeding.ErrNoFeeder),
		errors.Is(err, feeding.ErrNotAFeeder),
		errors.Is(err, feeding.ErrNotScheduled),
		errors.Is(err, stream.ErrNoCamera),
		errors.Is(err, stream.ErrNotACamera),
		errors.Is(err, device.ErrInvalidClass),
		errors.Is(err, device.ErrInvalidName):
		return http.StatusBadRequest, ErrCodeValidation

	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, horse.ErrHorseNotFound),
		errors.Is(err, feeding.ErrFeedingNotFound):
		return http.StatusNotFound, ErrCodeNotFound

	case errors.Is(err, horse.ErrNotOwner),
		errors.Is(err, feeding.ErrDeviceMismatch),
		errors.Is(err, feeding.ErrHorseMismatch),
		errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden

	case errors.Is(err, feeding.ErrAlreadyInProgress),
		errors.Is(err, stream.ErrStreamActive),
		errors.Is(err, stream.ErrNoActiveStream),
		errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, horse.ErrHorseExists):
		return http.StatusConflict, ErrCodeConflict

	case errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, ErrCodeUnauthorized

	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
