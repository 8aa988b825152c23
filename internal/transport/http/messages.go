package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"msgcore/internal/domain"
	"msgcore/internal/dto"
)

func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := subject(w, r)
	if !ok {
		return
	}
	chatID, err := uuid.Parse(chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid chatId", domain.ErrInvalidRequest))
		return
	}
	var req dto.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	msg, err := h.Relay.Send(r.Context(), chatID, senderID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	chatID, err := uuid.Parse(chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid chatId", domain.ErrInvalidRequest))
		return
	}
	page, pageSize := h.pageParams(r)

	before, err := timeParam(r, "before")
	if err != nil {
		writeError(w, r, err)
		return
	}
	after, err := timeParam(r, "after")
	if err != nil {
		writeError(w, r, err)
		return
	}

	msgs, err := h.Relay.List(r.Context(), chatID, userID, page, pageSize, before, after)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListMessagesResponse{
		Messages: msgs,
		Page:     page,
		PageSize: pageSize,
	})
}

func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrInvalidRequest, name)
	}
	return &t, nil
}

func (h *Handlers) markMessageRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	chatID, err := uuid.Parse(chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid chatId", domain.ErrInvalidRequest))
		return
	}
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid message id", domain.ErrInvalidRequest))
		return
	}

	if err := h.Relay.MarkRead(r.Context(), chatID, messageID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	chatID, err := uuid.Parse(chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid chatId", domain.ErrInvalidRequest))
		return
	}
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid message id", domain.ErrInvalidRequest))
		return
	}

	if err := h.Relay.Delete(r.Context(), chatID, messageID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
