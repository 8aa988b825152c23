// Package channel maintains the process-local table of live client
// connections: at most one push sink per user. Scaling horizontally requires
// sticky routing of a user to one instance; the public contract would be
// unchanged if the table were replaced by a shared keyed broker.
package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"msgcore/internal/observability/metrics"
)

const (
	// DefaultStaleThreshold is how long a sink may sit idle before the
	// reaper removes it. The transport has no reliable mid-stream close
	// signal, so heartbeats are the only liveness evidence.
	DefaultStaleThreshold = 5 * time.Minute
	DefaultReapInterval   = time.Minute
)

// Event is the envelope every live push is wrapped in.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type entry struct {
	client   *Client
	lastSeen time.Time
}

type Hub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*entry
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*entry),
		now:     time.Now,
	}
}

// Register installs the sink for a user, superseding and closing any prior
// one. A stale handle left behind by a reconnect can therefore never receive
// a push again.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev, ok := h.clients[c.UserID]
	h.clients[c.UserID] = &entry{client: c, lastSeen: h.now()}
	h.mu.Unlock()

	if ok {
		prev.client.shutdown()
		slog.Info("live channel superseded", "user_id", c.UserID)
	}
	metrics.LiveConnections.Set(float64(h.Len()))
}

// Unregister removes the user's sink if it is still the given one. A client
// that was already superseded is a no-op, so a slow disconnect can never tear
// down its replacement.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	cur, ok := h.clients[c.UserID]
	if ok && cur.client == c {
		delete(h.clients, c.UserID)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if ok {
		c.shutdown()
	}
	metrics.LiveConnections.Set(float64(h.Len()))
}

func (h *Hub) IsReachable(userID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[userID]
	return ok
}

// Push attempts a non-blocking write to the user's sink. On success it
// refreshes last-activity and returns true; on a full or missing sink it
// evicts the connection and returns false. Callers treat false as "the event
// fell back to pull".
func (h *Hub) Push(userID uuid.UUID, event string, data any) bool {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		slog.Error("live push marshal failed", "event", event, "error", err)
		return false
	}

	h.mu.Lock()
	e, ok := h.clients[userID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	select {
	case e.client.send <- payload:
		e.lastSeen = h.now()
		h.mu.Unlock()
		return true
	default:
		// Send buffer full: the peer stopped draining. Tear it down and
		// let the durable record carry the event.
		delete(h.clients, userID)
		c := e.client
		h.mu.Unlock()
		c.shutdown()
		slog.Warn("live push failed, channel evicted", "user_id", userID, "event", event)
		metrics.LiveConnections.Set(float64(h.Len()))
		return false
	}
}

// PushMany pushes to each recipient independently; one dead connection never
// blocks delivery to the rest.
func (h *Hub) PushMany(userIDs []uuid.UUID, event string, data any) (delivered, missed []uuid.UUID) {
	for _, id := range userIDs {
		if h.Push(id, event, data) {
			delivered = append(delivered, id)
		} else {
			missed = append(missed, id)
		}
	}
	return delivered, missed
}

// Heartbeat refreshes last-activity for a connected user.
func (h *Hub) Heartbeat(userID uuid.UUID) {
	h.mu.Lock()
	if e, ok := h.clients[userID]; ok {
		e.lastSeen = h.now()
	}
	h.mu.Unlock()
}

// ReapStale removes sinks idle past the threshold and returns how many were
// evicted.
func (h *Hub) ReapStale(threshold time.Duration) int {
	cutoff := h.now().Add(-threshold)

	h.mu.Lock()
	var stale []*Client
	for id, e := range h.clients {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.client)
			delete(h.clients, id)
		}
	}
	h.mu.Unlock()

	for _, c := range stale {
		c.shutdown()
		slog.Info("stale live channel reaped", "user_id", c.UserID)
	}
	if len(stale) > 0 {
		metrics.LiveConnections.Set(float64(h.Len()))
	}
	return len(stale)
}

// StartReaper runs ReapStale on an interval until ctx is done.
func (h *Hub) StartReaper(ctx context.Context, interval, threshold time.Duration) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.ReapStale(threshold); n > 0 {
					slog.Info("reaper pass complete", "evicted", n)
				}
			}
		}
	}()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
