package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"msgcore/internal/domain"
)

type SenderKeyStore struct{ db *gorm.DB }

func (s *Store) SenderKeys() *SenderKeyStore { return &SenderKeyStore{db: s.DB} }

// Upsert replaces the wrapped key for the full tuple in a single statement.
// Concurrent upserts to the same tuple serialize on the conflict target, so
// the table never holds two rows for one tuple.
func (s *SenderKeyStore) Upsert(ctx context.Context, key domain.SenderKey) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "group_id"},
				{Name: "sender_id"},
				{Name: "sender_device_id"},
				{Name: "recipient_id"},
				{Name: "recipient_device_id"},
			},
			DoUpdates: clause.Assignments(map[string]any{
				"wrapped_key": key.WrappedKey,
				"version":     key.Version,
			}),
		}).
		Create(&key).Error
}

func (s *SenderKeyStore) ListForRecipient(ctx context.Context, groupID, recipientID uuid.UUID, recipientDeviceID *uuid.UUID) ([]domain.SenderKey, error) {
	q := s.db.WithContext(ctx).
		Where("group_id = ? AND recipient_id = ?", groupID, recipientID)
	if recipientDeviceID != nil {
		q = q.Where("recipient_device_id = ?", *recipientDeviceID)
	}
	var keys []domain.SenderKey
	err := q.Order("version DESC, updated_at DESC").Find(&keys).Error
	return keys, err
}

// DeleteForUser removes every row in the group where the user is sender or
// recipient. Rows in other groups are untouched.
func (s *SenderKeyStore) DeleteForUser(ctx context.Context, groupID, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("group_id = ? AND (sender_id = ? OR recipient_id = ?)", groupID, userID, userID).
		Delete(&domain.SenderKey{})
	return res.RowsAffected, res.Error
}

func (s *SenderKeyStore) DeleteForGroup(ctx context.Context, groupID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&domain.SenderKey{})
	return res.RowsAffected, res.Error
}

func (s *SenderKeyStore) DeleteEverywhereForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Delete(&domain.SenderKey{})
	return res.RowsAffected, res.Error
}
