package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"msgcore/internal/domain"
)

type NotificationStore struct{ db *gorm.DB }

func (s *Store) Notifications() *NotificationStore { return &NotificationStore{db: s.DB} }

func (n *NotificationStore) Create(ctx context.Context, notif *domain.Notification) error {
	return n.db.WithContext(ctx).Create(notif).Error
}

// Undelivered returns the recipient's pending notifications oldest-first.
func (n *NotificationStore) Undelivered(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	var notifs []domain.Notification
	err := n.db.WithContext(ctx).
		Where("recipient_id = ? AND delivered = ?", userID, false).
		Order("created_at ASC").
		Find(&notifs).Error
	return notifs, err
}

func (n *NotificationStore) MarkDelivered(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return n.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id IN ?", ids).
		Update("delivered", true).Error
}

// MarkRead is owner-scoped: a non-owner sees ErrRecordNotFound, never a
// permission error, so existence does not leak.
func (n *NotificationStore) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	res := n.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Updates(map[string]any{"read": true, "delivered": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (n *NotificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := n.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Updates(map[string]any{"read": true, "delivered": true})
	return res.RowsAffected, res.Error
}

func (n *NotificationStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res := n.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, userID).
		Delete(&domain.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (n *NotificationStore) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Notification, int64, error) {
	var total int64
	q := n.db.WithContext(ctx).Model(&domain.Notification{}).Where("recipient_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var notifs []domain.Notification
	err := n.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifs).Error
	return notifs, total, err
}

func (n *NotificationStore) DeleteForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := n.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}
