package service

import (
	"context"

	"github.com/google/uuid"

	"msgcore/internal/domain"
)

// UserDirectory resolves display names for generic notification text. It is
// never handed ciphertext.
type UserDirectory interface {
	DisplayName(ctx context.Context, id uuid.UUID) string
}

// DeviceRegistry confirms a device belongs to a user before key material is
// accepted for it.
type DeviceRegistry interface {
	Owns(ctx context.Context, userID, deviceID uuid.UUID) (bool, error)
}

// Notifier is the durable publish path. The Outbox implements it; other
// services depend on the interface so notice dispatch stays an explicit
// post-commit step.
type Notifier interface {
	Publish(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, title, body string, payload map[string]any) (domain.Notification, error)
	PublishMany(ctx context.Context, userIDs []uuid.UUID, kind domain.NotificationKind, title, body string, payload map[string]any) (published, delivered int)
}
