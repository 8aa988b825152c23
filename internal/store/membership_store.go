package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"msgcore/internal/domain"
)

// MembershipStore reads the group membership table maintained by the CRUD
// layer. Groups and chats are the same concept at this layer.
type MembershipStore struct{ db *gorm.DB }

func (s *Store) Memberships() *MembershipStore { return &MembershipStore{db: s.DB} }

func (m *MembershipStore) Upsert(ctx context.Context, member domain.GroupMember) error {
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"role": member.Role}),
		}).
		Create(&member).Error
}

func (m *MembershipStore) Remove(ctx context.Context, groupID, userID uuid.UUID) error {
	return m.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&domain.GroupMember{}).Error
}

func (m *MembershipStore) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

func (m *MembershipStore) IsAdmin(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND role = ?", groupID, userID, domain.RoleAdmin).
		Count(&count).Error
	return count > 0, err
}

func (m *MembershipStore) MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
