package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"msgcore/internal/domain"
	"msgcore/internal/dto"
)

func (h *Handlers) distributeSenderKeys(w http.ResponseWriter, r *http.Request) {
	senderID, ok := subject(w, r)
	if !ok {
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid groupId", domain.ErrInvalidRequest))
		return
	}
	var req dto.DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	senderDeviceID, err := uuid.Parse(req.SenderDeviceID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid senderDeviceId", domain.ErrInvalidRequest))
		return
	}

	res, err := h.SenderKeys.Distribute(r.Context(), groupID, senderID, senderDeviceID, req.Keys)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) listSenderKeys(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := subject(w, r)
	if !ok {
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid groupId", domain.ErrInvalidRequest))
		return
	}
	var deviceID *uuid.UUID
	if raw := r.URL.Query().Get("deviceId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid deviceId", domain.ErrInvalidRequest))
			return
		}
		deviceID = &id
	}

	keys, err := h.SenderKeys.List(r.Context(), groupID, recipientID, deviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListSenderKeysResponse{Keys: keys})
}

func (h *Handlers) revokeUserSenderKeys(w http.ResponseWriter, r *http.Request) {
	if _, ok := subject(w, r); !ok {
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid groupId", domain.ErrInvalidRequest))
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid userId", domain.ErrInvalidRequest))
		return
	}

	revoked, err := h.SenderKeys.RevokeForUser(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.RevokeResponse{Revoked: revoked})
}

func (h *Handlers) revokeGroupSenderKeys(w http.ResponseWriter, r *http.Request) {
	if _, ok := subject(w, r); !ok {
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid groupId", domain.ErrInvalidRequest))
		return
	}

	revoked, err := h.SenderKeys.RevokeForGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.RevokeResponse{Revoked: revoked})
}
