package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"msgcore/internal/channel"
	"msgcore/internal/domain"
	"msgcore/internal/dto"
	"msgcore/internal/msgjson"
	"msgcore/internal/observability/metrics"
	"msgcore/internal/store"
)

const (
	// DefaultMaxPayloadBytes caps the opaque payload attached to one
	// notification.
	DefaultMaxPayloadBytes = 64 * 1024

	DefaultPollTimeout  = 30 * time.Second
	DefaultPollInterval = time.Second
)

// Outbox durably records addressed events and best-effort pushes them live.
// Persistence always precedes the push attempt: a crash between the two
// leaves an undelivered row, never a lost event.
type Outbox struct {
	store      *store.Store
	hub        *channel.Hub
	now        func() time.Time
	maxPayload int
}

func NewOutbox(st *store.Store, hub *channel.Hub) *Outbox {
	return &Outbox{
		store:      st,
		hub:        hub,
		now:        time.Now,
		maxPayload: DefaultMaxPayloadBytes,
	}
}

func (o *Outbox) Publish(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, title, body string, payload map[string]any) (domain.Notification, error) {
	if err := kind.Validate(); err != nil {
		return domain.Notification{}, err
	}
	if userID == uuid.Nil {
		return domain.Notification{}, fmt.Errorf("%w: missing recipient", domain.ErrInvalidRequest)
	}
	if title == "" {
		title = kind.DefaultTitle()
	}

	var data msgjson.JSON
	if payload != nil {
		var err error
		data, err = msgjson.Marshal(payload)
		if err != nil {
			return domain.Notification{}, fmt.Errorf("%w: payload not serializable", domain.ErrInvalidRequest)
		}
		if len(data) > o.maxPayload {
			return domain.Notification{}, fmt.Errorf("%w: payload is %d bytes", domain.ErrPayloadTooLarge, len(data))
		}
	}

	notif := domain.Notification{
		ID:          uuid.New(),
		RecipientID: userID,
		Kind:        kind,
		Title:       title,
		Body:        body,
		Payload:     data,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.store.Notifications().Create(ctx, &notif); err != nil {
		metrics.NotificationsPublishedTotal.WithLabelValues(string(kind), "failure").Inc()
		return domain.Notification{}, err
	}
	metrics.NotificationsPublishedTotal.WithLabelValues(string(kind), "success").Inc()

	if o.hub.Push(userID, "notification", NotificationToDTO(notif)) {
		if err := o.store.Notifications().MarkDelivered(ctx, []uuid.UUID{notif.ID}); err != nil {
			// The push already happened; the row stays undelivered and
			// will surface again on pull. At-least-once, not exactly-once.
			slog.Warn("mark delivered after live push failed", "notification_id", notif.ID, "error", err)
		} else {
			notif.Delivered = true
			metrics.NotificationsDeliveredTotal.WithLabelValues("live").Inc()
		}
	}
	return notif, nil
}

// PublishMany publishes to each recipient independently: one failed persist
// or push never affects the others.
func (o *Outbox) PublishMany(ctx context.Context, userIDs []uuid.UUID, kind domain.NotificationKind, title, body string, payload map[string]any) (published, delivered int) {
	for _, id := range userIDs {
		notif, err := o.Publish(ctx, id, kind, title, body, payload)
		if err != nil {
			slog.Warn("publish failed for recipient", "user_id", id, "kind", kind, "error", err)
			continue
		}
		published++
		if notif.Delivered {
			delivered++
		}
	}
	return published, delivered
}

// PullUndelivered returns pending notifications oldest-first and marks them
// delivered: pull is an alternate delivery path, not a read receipt.
func (o *Outbox) PullUndelivered(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	notifs, err := o.store.Notifications().Undelivered(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(notifs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(notifs))
	for i := range notifs {
		ids[i] = notifs[i].ID
		notifs[i].Delivered = true
	}
	if err := o.store.Notifications().MarkDelivered(ctx, ids); err != nil {
		return nil, err
	}
	metrics.NotificationsDeliveredTotal.WithLabelValues("pull").Add(float64(len(ids)))
	return notifs, nil
}

// Poll blocks until at least one undelivered notification exists or the
// timeout elapses, rechecking on interval. Each iteration is an independent
// read; no lock is held across them.
func (o *Outbox) Poll(ctx context.Context, userID uuid.UUID, timeout, interval time.Duration) ([]domain.Notification, error) {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		notifs, err := o.PullUndelivered(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(notifs) > 0 {
			return notifs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-ticker.C:
		}
	}
}

func (o *Outbox) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	err := o.store.Notifications().MarkRead(ctx, id, userID)
	if err == store.ErrRecordNotFound {
		return fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	return err
}

func (o *Outbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return o.store.Notifications().MarkAllRead(ctx, userID)
}

func (o *Outbox) Delete(ctx context.Context, id, userID uuid.UUID) error {
	err := o.store.Notifications().Delete(ctx, id, userID)
	if err == store.ErrRecordNotFound {
		return fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	return err
}

func (o *Outbox) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return o.store.Notifications().List(ctx, userID, page, pageSize)
}

func NotificationToDTO(n domain.Notification) dto.Notification {
	return dto.Notification{
		ID:        n.ID.String(),
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Body,
		Data:      json.RawMessage(n.Payload),
		Delivered: n.Delivered,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
