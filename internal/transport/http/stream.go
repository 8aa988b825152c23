package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"msgcore/internal/channel"
	obsmw "msgcore/internal/observability/middleware"
	"msgcore/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Bearer auth is the access control here; origin enforcement belongs to
	// the CORS layer in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket, registers the caller's live channel
// and flushes anything published while they were offline.
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	reqID := obsmw.RequestIDFromContext(r.Context())
	traceID := obsmw.TraceIDFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", "error", err, "user_id", userID,
			"request_id", reqID, "trace_id", traceID)
		return
	}

	client := channel.NewClient(userID, conn)
	h.Hub.Register(client)
	go client.WritePump()

	h.Hub.Push(userID, "connected", map[string]any{
		"userId":    userID.String(),
		"timestamp": time.Now().UTC(),
	})

	// Everything published while the user was offline rides the fresh
	// channel now; pull marks it delivered.
	undelivered, err := h.Outbox.PullUndelivered(r.Context(), userID)
	if err != nil {
		slog.Error("stream backlog pull failed", "error", err, "user_id", userID,
			"request_id", reqID, "trace_id", traceID)
	}
	for _, notif := range undelivered {
		if !h.Hub.Push(userID, "notification", service.NotificationToDTO(notif)) {
			break
		}
	}

	done := make(chan struct{})
	go h.heartbeatLoop(userID, done)

	slog.Info("stream connected", "user_id", userID, "backlog", len(undelivered),
		"request_id", reqID, "trace_id", traceID)

	// Blocks until the peer goes away; unregisters on exit.
	client.ReadPump(h.Hub)
	close(done)
}

// heartbeatLoop emits heartbeat events until the connection that spawned it
// closes. A failed push also ends it: the channel is gone or superseded.
func (h *Handlers) heartbeatLoop(userID uuid.UUID, done <-chan struct{}) {
	ticker := time.NewTicker(h.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !h.Hub.Push(userID, "heartbeat", map[string]any{"timestamp": time.Now().UTC()}) {
				return
			}
		}
	}
}
