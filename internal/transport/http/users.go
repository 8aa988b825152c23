package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"msgcore/internal/domain"
	obsmw "msgcore/internal/observability/middleware"
)

// deleteUserData erases the caller's delivery and key-exchange state. Only
// the subject may erase their own data.
func (h *Handlers) deleteUserData(w http.ResponseWriter, r *http.Request) {
	callerID, ok := subject(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid userId", domain.ErrInvalidRequest))
		return
	}
	if userID != callerID {
		writeError(w, r, fmt.Errorf("%w: data erasure is self-service", domain.ErrForbidden))
		return
	}

	counts, err := h.Cleanup.DeleteUserData(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user data erased", "user_id", userID, "counts", counts,
		"request_id", obsmw.RequestIDFromContext(r.Context()),
		"trace_id", obsmw.TraceIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": counts})
}
