package service

import (
	"context"

	"github.com/google/uuid"

	"msgcore/internal/store"
)

// Cleanup erases everything this core holds about a user: notifications, key
// material, sender keys and read receipts. Membership rows and the device
// registry belong to the CRUD layer and are left to it.
type Cleanup struct {
	store *store.Store
}

func NewCleanup(st *store.Store) *Cleanup {
	return &Cleanup{store: st}
}

func (c *Cleanup) DeleteUserData(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	deleted := map[string]int64{}

	err := c.store.WithTx(ctx, func(tx *store.Store) error {
		n, err := tx.Notifications().DeleteForUser(ctx, userID)
		if err != nil {
			return err
		}
		deleted["notifications"] = n

		devices, err := tx.Devices().ByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, dev := range devices {
			if err := tx.OneTimePreKeys().DeleteForDevice(ctx, dev.ID); err != nil {
				return err
			}
			if err := tx.SignedPreKeys().DeleteForDevice(ctx, dev.ID); err != nil {
				return err
			}
			if err := tx.IdentityKeys().DeleteForDevice(ctx, dev.ID); err != nil {
				return err
			}
			deleted["keyBundles"]++
		}

		n, err = tx.SenderKeys().DeleteEverywhereForUser(ctx, userID)
		if err != nil {
			return err
		}
		deleted["senderKeys"] = n

		n, err = tx.Messages().DeleteReceiptsForUser(ctx, userID)
		if err != nil {
			return err
		}
		deleted["readReceipts"] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
