package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"msgcore/internal/domain"
	"msgcore/internal/dto"
	obsmw "msgcore/internal/observability/middleware"
)

func (h *Handlers) uploadBundle(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	reqID := obsmw.RequestIDFromContext(r.Context())
	traceID := obsmw.TraceIDFromContext(r.Context())

	var req dto.UploadBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("bundle upload decode failed", "error", err, "request_id", reqID, "trace_id", traceID)
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid deviceId", domain.ErrInvalidRequest))
		return
	}

	res, err := h.Keys.Upload(r.Context(), userID, deviceID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("key bundle uploaded", "user_id", userID, "device_id", deviceID,
		"one_time_prekeys", res.OneTimePreKeys, "identity_rotated", res.IdentityRotated,
		"request_id", reqID, "trace_id", traceID)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) fetchBundle(w http.ResponseWriter, r *http.Request) {
	if _, ok := subject(w, r); !ok {
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid userId", domain.ErrInvalidRequest))
		return
	}

	res, err := h.Keys.Fetch(r.Context(), targetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) replenishKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	var req dto.ReplenishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid deviceId", domain.ErrInvalidRequest))
		return
	}

	res, err := h.Keys.Replenish(r.Context(), userID, deviceID, req.OneTimePreKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) countKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	deviceID, err := uuid.Parse(r.URL.Query().Get("deviceId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid deviceId", domain.ErrInvalidRequest))
		return
	}

	res, err := h.Keys.Count(r.Context(), userID, deviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
