package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Envelope wraps every API response.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError is the error part of an Envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInvalidState     = "INVALID_STATE"
	CodeDuplicate        = "DUPLICATE"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeConflict         = "CONFLICT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: chimiddleware.GetReqID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: chimiddleware.GetReqID(r.Context()),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps a domain error kind to an HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, CodeDuplicate
	case shared.IsCapacityExceeded(err):
		return http.StatusConflict, CodeCapacityExceeded
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrStateTransition):
		return http.StatusConflict, CodeInvalidState
	case shared.IsConflict(err):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case shared.IsValidation(err):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeError renders err. Domain errors carry their own message; anything
// unexpected is logged and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		requestLogger(r).Error("request failed",
			errField(err),
			routeField(r),
		)
		writeJSONError(w, r, status, code, "An unexpected error occurred")
		return
	}

	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}
	writeJSONError(w, r, status, code, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewDomainError("http", "Decode", shared.ErrEmptyValue, "request body is required")
		}
		return shared.WrapError("http", "Decode", shared.ErrInvalidInput, "request body is not valid JSON: "+err.Error(), err)
	}
	return nil
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, shared.NewDomainError("http", "Query", shared.ErrInvalidInput, fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}
