package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"msgcore/internal/domain"
)

type MessageStore struct{ db *gorm.DB }

func (s *Store) Messages() *MessageStore { return &MessageStore{db: s.DB} }

func (m *MessageStore) Create(ctx context.Context, msg *domain.Message) error {
	return m.db.WithContext(ctx).Create(msg).Error
}

func (m *MessageStore) Get(ctx context.Context, chatID, id uuid.UUID) (*domain.Message, error) {
	var msg domain.Message
	err := m.db.WithContext(ctx).
		First(&msg, "id = ? AND chat_id = ?", id, chatID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (m *MessageStore) List(ctx context.Context, chatID uuid.UUID, page, pageSize int, before, after *time.Time) ([]domain.Message, error) {
	q := m.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if before != nil {
		q = q.Where("sent_at < ?", *before)
	}
	if after != nil {
		q = q.Where("sent_at > ?", *after)
	}
	var msgs []domain.Message
	err := q.Order("sent_at ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&msgs).Error
	return msgs, err
}

// MarkRead appends to the read-by set; re-reads are no-ops.
func (m *MessageStore) MarkRead(ctx context.Context, messageID, userID uuid.UUID, at time.Time) error {
	receipt := domain.MessageReceipt{MessageID: messageID, UserID: userID, ReadAt: at}
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error
}

func (m *MessageStore) Receipts(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]domain.MessageReceipt, error) {
	out := make(map[uuid.UUID][]domain.MessageReceipt, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var receipts []domain.MessageReceipt
	err := m.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("read_at ASC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	for _, r := range receipts {
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	return out, nil
}

// Blank marks the message deleted and irreversibly overwrites the ciphertext.
// ID and metadata survive so clients can render a tombstone.
func (m *MessageStore) Blank(ctx context.Context, id uuid.UUID) error {
	return m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_deleted": true,
			"ciphertext": []byte{},
		}).Error
}

func (m *MessageStore) DeleteReceiptsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.MessageReceipt{})
	return res.RowsAffected, res.Error
}
