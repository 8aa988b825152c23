package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"msgcore/internal/authz"
	"msgcore/internal/domain"
	"msgcore/internal/dto"
	obsmw "msgcore/internal/observability/middleware"
	"msgcore/internal/service"
)

// subject returns the authenticated user or writes 401.
func subject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := authz.SubjectFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code: "unauthenticated", Message: "missing or invalid credentials",
		}})
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handlers) pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 || pageSize > h.MaxPageSize {
		pageSize = h.DefaultPageSize
	}
	return page, pageSize
}

func (h *Handlers) publishNotification(w http.ResponseWriter, r *http.Request) {
	reqID := obsmw.RequestIDFromContext(r.Context())
	traceID := obsmw.TraceIDFromContext(r.Context())

	var req dto.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("publish decode failed", "error", err, "request_id", reqID, "trace_id", traceID)
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	var payload map[string]any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			writeError(w, r, fmt.Errorf("%w: payload must be a JSON object", domain.ErrInvalidRequest))
			return
		}
	}
	kind := domain.NotificationKind(req.Kind)

	if len(req.UserIDs) > 0 {
		userIDs := make([]uuid.UUID, 0, len(req.UserIDs))
		for _, raw := range req.UserIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: invalid userIds entry %q", domain.ErrInvalidRequest, raw))
				return
			}
			userIDs = append(userIDs, id)
		}
		published, delivered := h.Outbox.PublishMany(r.Context(), userIDs, kind, req.Title, req.Body, payload)
		writeJSON(w, http.StatusAccepted, dto.PublishResponse{Published: published, DeliveredTo: delivered})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid userId", domain.ErrInvalidRequest))
		return
	}
	notif, err := h.Outbox.Publish(r.Context(), userID, kind, req.Title, req.Body, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := service.NotificationToDTO(notif)
	writeJSON(w, http.StatusCreated, dto.PublishResponse{Notification: &out})
}

func (h *Handlers) pollNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	notifs, err := h.Outbox.Poll(r.Context(), userID, h.PollTimeout, h.PollInterval)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]dto.Notification, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, service.NotificationToDTO(n))
	}
	writeJSON(w, http.StatusOK, dto.PollResponse{Notifications: out, Timestamp: time.Now().UTC()})
}

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	page, pageSize := h.pageParams(r)
	notifs, total, err := h.Outbox.List(r.Context(), userID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]dto.Notification, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, service.NotificationToDTO(n))
	}
	writeJSON(w, http.StatusOK, dto.ListNotificationsResponse{
		Notifications: out,
		Page:          page,
		PageSize:      pageSize,
		Total:         total,
	})
}

func (h *Handlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid notification id", domain.ErrInvalidRequest))
		return
	}
	if err := h.Outbox.MarkRead(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	updated, err := h.Outbox.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *Handlers) deleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid notification id", domain.ErrInvalidRequest))
		return
	}
	if err := h.Outbox.Delete(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
