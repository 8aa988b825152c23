package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"msgcore/internal/domain"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Ensure(ctx context.Context, id uuid.UUID) error {
	user := domain.User{ID: id}
	return u.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&user).Error
}

func (u *UserStore) Upsert(ctx context.Context, user domain.User) error {
	return u.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{"display_name": user.DisplayName}),
		}).
		Create(&user).Error
}

// DisplayName resolves a user's display name for notification text. Unknown
// users resolve to "Someone" rather than erroring: the notification path must
// stay best-effort.
func (u *UserStore) DisplayName(ctx context.Context, id uuid.UUID) string {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return "Someone"
	}
	if user.DisplayName == "" {
		return "Someone"
	}
	return user.DisplayName
}
