package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"msgcore/internal/domain"
	"msgcore/internal/dto"
	"msgcore/internal/observability/metrics"
	"msgcore/internal/store"
)

// DefaultLowWaterMark is the remaining-pool size below which the owner is
// told to replenish.
const DefaultLowWaterMark = 25

// KeyStore brokers asynchronous key-agreement material per device: bundles
// are uploaded by owners and handed out under single-use consumption of
// one-time pre-keys. All key fields are opaque strings; the server never
// interprets them beyond presence checks.
type KeyStore struct {
	store    *store.Store
	devices  DeviceRegistry
	notifier Notifier
	lowWater int64
}

func NewKeyStore(st *store.Store, devices DeviceRegistry, notifier Notifier) *KeyStore {
	return &KeyStore{
		store:    st,
		devices:  devices,
		notifier: notifier,
		lowWater: DefaultLowWaterMark,
	}
}

// SetLowWaterMark overrides the replenish threshold.
func (k *KeyStore) SetLowWaterMark(n int64) {
	if n > 0 {
		k.lowWater = n
	}
}

// Upload replaces the device's bundle wholesale. A changed identity key is an
// observable rotation (re-install or possible compromise); the owner is
// notified so clients re-verify trust.
func (k *KeyStore) Upload(ctx context.Context, userID, deviceID uuid.UUID, req dto.UploadBundleRequest) (dto.UploadBundleResponse, error) {
	if req.IdentityKey == "" || req.SignedPreKey.PublicKey == "" || req.SignedPreKey.Signature == "" {
		return dto.UploadBundleResponse{}, fmt.Errorf("%w: missing key material", domain.ErrInvalidBundleFormat)
	}
	for _, otk := range req.OneTimePreKeys {
		if otk.PublicKey == "" {
			return dto.UploadBundleResponse{}, fmt.Errorf("%w: one-time pre-key missing publicKey", domain.ErrInvalidBundleFormat)
		}
	}

	owns, err := k.devices.Owns(ctx, userID, deviceID)
	if err != nil {
		return dto.UploadBundleResponse{}, err
	}
	if !owns {
		return dto.UploadBundleResponse{}, fmt.Errorf("%w: device %s", domain.ErrDeviceNotRegistered, deviceID)
	}

	prior, err := k.store.IdentityKeys().GetByDevice(ctx, deviceID)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return dto.UploadBundleResponse{}, err
	}
	rotated := prior != nil && prior.PublicKey != req.IdentityKey

	createdAt := req.SignedPreKey.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	otks := make([]domain.OneTimePreKey, 0, len(req.OneTimePreKeys))
	for _, otk := range req.OneTimePreKeys {
		otks = append(otks, domain.OneTimePreKey{
			ID:        uuid.New(),
			DeviceID:  deviceID,
			KeyID:     otk.ID,
			PublicKey: otk.PublicKey,
		})
	}

	err = k.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.IdentityKeys().Upsert(ctx, domain.IdentityKey{DeviceID: deviceID, PublicKey: req.IdentityKey}); err != nil {
			return err
		}
		if err := tx.SignedPreKeys().Upsert(ctx, domain.SignedPreKey{
			DeviceID:  deviceID,
			KeyID:     req.SignedPreKey.ID,
			PublicKey: req.SignedPreKey.PublicKey,
			Signature: req.SignedPreKey.Signature,
			CreatedAt: createdAt,
		}); err != nil {
			return err
		}
		if err := tx.OneTimePreKeys().DeleteForDevice(ctx, deviceID); err != nil {
			return err
		}
		return tx.OneTimePreKeys().AddBatch(ctx, otks)
	})
	if err != nil {
		return dto.UploadBundleResponse{}, err
	}

	if rotated {
		// Post-commit dispatch; a failure here is absorbed, the rotation
		// stays observable through the stored key itself.
		if _, err := k.notifier.Publish(ctx, userID, domain.KindKeyRotation, "", "A device re-registered its identity key.",
			map[string]any{"deviceId": deviceID.String()}); err != nil {
			slog.Warn("identity rotation notice failed", "user_id", userID, "device_id", deviceID, "error", err)
		}
	}

	return dto.UploadBundleResponse{
		DeviceID:        deviceID.String(),
		OneTimePreKeys:  len(otks),
		IdentityRotated: rotated,
	}, nil
}

// Fetch returns, per device owned by the target, the identity key, the signed
// pre-key and at most one atomically consumed one-time pre-key. A device with
// an exhausted pool still contributes identity + signed pre-key; exhaustion
// is not an error.
func (k *KeyStore) Fetch(ctx context.Context, targetUserID uuid.UUID) (dto.FetchBundleResponse, error) {
	devices, err := k.store.Devices().ByUser(ctx, targetUserID)
	if err != nil {
		metrics.PreKeyBundlesFetchedTotal.WithLabelValues("failure").Inc()
		return dto.FetchBundleResponse{}, err
	}

	resp := dto.FetchBundleResponse{UserID: targetUserID.String()}
	for _, dev := range devices {
		identity, err := k.store.IdentityKeys().GetByDevice(ctx, dev.ID)
		if errors.Is(err, store.ErrRecordNotFound) {
			continue // device registered, bundle never uploaded
		}
		if err != nil {
			return dto.FetchBundleResponse{}, err
		}
		signed, err := k.store.SignedPreKeys().GetByDevice(ctx, dev.ID)
		if errors.Is(err, store.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return dto.FetchBundleResponse{}, err
		}

		bundle := dto.DeviceBundle{
			DeviceID:    dev.ID.String(),
			IdentityKey: identity.PublicKey,
			SignedPreKey: dto.SignedPreKey{
				ID:        signed.KeyID,
				PublicKey: signed.PublicKey,
				Signature: signed.Signature,
				CreatedAt: signed.CreatedAt,
			},
		}

		otk, err := k.store.OneTimePreKeys().ConsumeNext(ctx, dev.ID)
		if err != nil {
			return dto.FetchBundleResponse{}, err
		}
		if otk != nil {
			metrics.OneTimePreKeysConsumedTotal.Inc()
			bundle.OneTimePreKey = &dto.OneTimePreKey{ID: otk.KeyID, PublicKey: otk.PublicKey}
			k.maybeWarnLowPool(ctx, targetUserID, dev.ID)
		}
		resp.Devices = append(resp.Devices, bundle)
	}

	if len(resp.Devices) == 0 {
		metrics.PreKeyBundlesFetchedTotal.WithLabelValues("failure").Inc()
		return dto.FetchBundleResponse{}, fmt.Errorf("%w: user %s", domain.ErrBundleNotFound, targetUserID)
	}
	metrics.PreKeyBundlesFetchedTotal.WithLabelValues("success").Inc()
	return resp, nil
}

// maybeWarnLowPool emits the low-pre-key notice exactly once: only the fetch
// whose consumption crosses the low-water mark fires it. Replenishing above
// the mark re-arms the notice.
func (k *KeyStore) maybeWarnLowPool(ctx context.Context, ownerID, deviceID uuid.UUID) {
	remaining, err := k.store.OneTimePreKeys().CountRemaining(ctx, deviceID)
	if err != nil {
		slog.Warn("low-pool check failed", "device_id", deviceID, "error", err)
		return
	}
	if remaining != k.lowWater-1 {
		return
	}
	if _, err := k.notifier.Publish(ctx, ownerID, domain.KindLowPreKeys, "",
		fmt.Sprintf("Only %d one-time pre-keys remain; upload more.", remaining),
		map[string]any{"deviceId": deviceID.String(), "remaining": remaining}); err != nil {
		slog.Warn("low-pre-key notice failed", "user_id", ownerID, "device_id", deviceID, "error", err)
	}
}

func (k *KeyStore) Replenish(ctx context.Context, userID, deviceID uuid.UUID, keys []dto.OneTimePreKey) (dto.ReplenishResponse, error) {
	owns, err := k.devices.Owns(ctx, userID, deviceID)
	if err != nil {
		return dto.ReplenishResponse{}, err
	}
	if !owns {
		return dto.ReplenishResponse{}, fmt.Errorf("%w: device %s", domain.ErrDeviceNotRegistered, deviceID)
	}

	otks := make([]domain.OneTimePreKey, 0, len(keys))
	for _, key := range keys {
		if key.PublicKey == "" {
			return dto.ReplenishResponse{}, fmt.Errorf("%w: one-time pre-key missing publicKey", domain.ErrInvalidBundleFormat)
		}
		otks = append(otks, domain.OneTimePreKey{
			ID:        uuid.New(),
			DeviceID:  deviceID,
			KeyID:     key.ID,
			PublicKey: key.PublicKey,
		})
	}
	if err := k.store.OneTimePreKeys().AddBatch(ctx, otks); err != nil {
		return dto.ReplenishResponse{}, err
	}
	remaining, err := k.store.OneTimePreKeys().CountRemaining(ctx, deviceID)
	if err != nil {
		return dto.ReplenishResponse{}, err
	}
	return dto.ReplenishResponse{
		DeviceID:  deviceID.String(),
		Added:     len(otks),
		Remaining: remaining,
	}, nil
}

func (k *KeyStore) Count(ctx context.Context, userID, deviceID uuid.UUID) (dto.CountResponse, error) {
	owns, err := k.devices.Owns(ctx, userID, deviceID)
	if err != nil {
		return dto.CountResponse{}, err
	}
	if !owns {
		return dto.CountResponse{}, fmt.Errorf("%w: device %s", domain.ErrDeviceNotRegistered, deviceID)
	}
	remaining, err := k.store.OneTimePreKeys().CountRemaining(ctx, deviceID)
	if err != nil {
		return dto.CountResponse{}, err
	}
	return dto.CountResponse{DeviceID: deviceID.String(), Remaining: remaining}, nil
}
