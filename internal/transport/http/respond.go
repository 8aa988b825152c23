package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"msgcore/internal/domain"
	obsmw "msgcore/internal/observability/middleware"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError is the single place service errors become HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.Code(err)
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err,
			"request_id", obsmw.RequestIDFromContext(r.Context()),
			"trace_id", obsmw.TraceIDFromContext(r.Context()))
	} else {
		slog.Warn("request rejected", "code", code, "error", err,
			"request_id", obsmw.RequestIDFromContext(r.Context()),
			"trace_id", obsmw.TraceIDFromContext(r.Context()))
	}

	body := errorBody{Error: errorDetail{Code: code, Message: err.Error()}}
	if status == http.StatusInternalServerError {
		// Internals stay in the logs.
		body.Error.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
		Code:       domain.Code(domain.ErrFetchRateLimited),
		Message:    domain.ErrFetchRateLimited.Error(),
		RetryAfter: retryAfter,
	}})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidBundleFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrBundleNotFound),
		errors.Is(err, domain.ErrSenderKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDeviceNotRegistered):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrFetchRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
