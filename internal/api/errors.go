package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/regsync/internal/auth"
	"github.com/nerrad567/regsync/internal/preset"
	"github.com/nerrad567/regsync/internal/register"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeInternal        = "internal_error"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeInvalidAddress  = "invalid_address"
	ErrCodeInvalidValue    = "invalid_value"
	ErrCodeAddressOverflow = "address_overflow"
	ErrCodeStaleBase       = "stale_base_unavailable"
	ErrCodeUnreachable     = "device_unreachable"
	ErrCodeIncomplete      = "incomplete_snapshot"
)

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

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorStatus maps a domain error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, register.ErrAddressOverflow):
		return http.StatusBadRequest, ErrCodeAddressOverflow
	case errors.Is(err, register.ErrInvalidAddress):
		return http.StatusBadRequest, ErrCodeInvalidAddress
	case errors.Is(err, register.ErrInvalidValue),
		errors.Is(err, preset.ErrInvalidName),
		errors.Is(err, preset.ErrInvalidScope):
		return http.StatusBadRequest, ErrCodeInvalidValue
	case errors.Is(err, register.ErrStaleBaseUnavailable):
		return http.StatusBadGateway, ErrCodeStaleBase
	case errors.Is(err, register.ErrDeviceUnreachable):
		return http.StatusBadGateway, ErrCodeUnreachable
	case errors.Is(err, preset.ErrIncompleteSnapshot):
		return http.StatusBadGateway, ErrCodeIncomplete
	case errors.Is(err, preset.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeDomainError writes err with the status its sentinel maps to. Internal
// errors are logged and reported without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}
