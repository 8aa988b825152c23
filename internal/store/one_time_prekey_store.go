package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"msgcore/internal/domain"
)

type OneTimePreKeyStore struct{ db *gorm.DB }

func (s *Store) OneTimePreKeys() *OneTimePreKeyStore { return &OneTimePreKeyStore{db: s.DB} }

func (o *OneTimePreKeyStore) AddBatch(ctx context.Context, keys []domain.OneTimePreKey) error {
	if len(keys) == 0 {
		return nil
	}
	return o.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&keys).Error
}

// ConsumeNext claims the oldest unconsumed key for the device, or nil when the
// pool is exhausted. The claim is a conditional single-row UPDATE: if a
// concurrent fetcher won the same row, RowsAffected is 0 and we move to the
// next candidate. No two callers can ever receive the same key.
func (o *OneTimePreKeyStore) ConsumeNext(ctx context.Context, deviceID uuid.UUID) (*domain.OneTimePreKey, error) {
	for {
		var key domain.OneTimePreKey
		err := o.db.WithContext(ctx).
			Where("device_id = ? AND consumed_at IS NULL", deviceID).
			Order("created_at ASC, id ASC").
			First(&key).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, nil
			}
			return nil, err
		}

		now := time.Now().UTC()
		res := o.db.WithContext(ctx).
			Model(&domain.OneTimePreKey{}).
			Where("id = ? AND consumed_at IS NULL", key.ID).
			Update("consumed_at", now)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			key.ConsumedAt = &now
			return &key, nil
		}
		// Lost the race for this row; try the next candidate.
	}
}

func (o *OneTimePreKeyStore) CountRemaining(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := o.db.WithContext(ctx).
		Model(&domain.OneTimePreKey{}).
		Where("device_id = ? AND consumed_at IS NULL", deviceID).
		Count(&count).Error
	return count, err
}

// DeleteForDevice clears the pool; used when a bundle is replaced wholesale.
func (o *OneTimePreKeyStore) DeleteForDevice(ctx context.Context, deviceID uuid.UUID) error {
	return o.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Delete(&domain.OneTimePreKey{}).Error
}
