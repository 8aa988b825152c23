package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"msgcore/internal/domain"
)

type IdentityKeyStore struct{ db *gorm.DB }

func (s *Store) IdentityKeys() *IdentityKeyStore { return &IdentityKeyStore{db: s.DB} }

func (i *IdentityKeyStore) Upsert(ctx context.Context, key domain.IdentityKey) error {
	return i.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"public_key": key.PublicKey,
			}),
		}).
		Create(&key).Error
}

func (i *IdentityKeyStore) DeleteForDevice(ctx context.Context, deviceID uuid.UUID) error {
	return i.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Delete(&domain.IdentityKey{}).Error
}

func (i *IdentityKeyStore) GetByDevice(ctx context.Context, deviceID uuid.UUID) (*domain.IdentityKey, error) {
	var key domain.IdentityKey
	if err := i.db.WithContext(ctx).First(&key, "device_id = ?", deviceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}
