package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"msgcore/internal/channel"
	"msgcore/internal/domain"
	"msgcore/internal/dto"
	"msgcore/internal/observability/metrics"
	"msgcore/internal/store"
)

// SenderKeys coordinates the per-(group, sending device) symmetric sender
// key: one wrapped copy per recipient device, versioned per sender device.
// The server never mints keys; it stores what clients produce and signals
// when rotation is needed.
type SenderKeys struct {
	store    *store.Store
	hub      *channel.Hub
	notifier Notifier
}

func NewSenderKeys(st *store.Store, hub *channel.Hub, notifier Notifier) *SenderKeys {
	return &SenderKeys{store: st, hub: hub, notifier: notifier}
}

// Distribute upserts one wrapped key per recipient device. Each entry is
// idempotent on the full tuple: re-distribution replaces the key and bumps
// the version, never duplicating rows. Distinct recipients then get a
// content-free live cue to fetch.
func (s *SenderKeys) Distribute(ctx context.Context, groupID, senderID, senderDeviceID uuid.UUID, entries []dto.SenderKeyEntry) (dto.DistributeResponse, error) {
	member, err := s.store.Memberships().IsMember(ctx, groupID, senderID)
	if err != nil {
		return dto.DistributeResponse{}, err
	}
	if !member {
		return dto.DistributeResponse{}, fmt.Errorf("%w: user %s in group %s", domain.ErrNotParticipant, senderID, groupID)
	}

	recipients := make(map[uuid.UUID]struct{}, len(entries))
	for _, entry := range entries {
		recipientID, err := uuid.Parse(entry.RecipientID)
		if err != nil {
			return dto.DistributeResponse{}, fmt.Errorf("%w: invalid recipientId", domain.ErrInvalidRequest)
		}
		recipientDeviceID, err := uuid.Parse(entry.RecipientDeviceID)
		if err != nil {
			return dto.DistributeResponse{}, fmt.Errorf("%w: invalid recipientDeviceId", domain.ErrInvalidRequest)
		}
		if entry.WrappedKey == "" {
			return dto.DistributeResponse{}, fmt.Errorf("%w: missing wrappedKey", domain.ErrInvalidRequest)
		}

		err = s.store.SenderKeys().Upsert(ctx, domain.SenderKey{
			GroupID:           groupID,
			SenderID:          senderID,
			SenderDeviceID:    senderDeviceID,
			RecipientID:       recipientID,
			RecipientDeviceID: recipientDeviceID,
			WrappedKey:        entry.WrappedKey,
			Version:           entry.Version,
		})
		if err != nil {
			return dto.DistributeResponse{}, err
		}
		metrics.SenderKeysDistributedTotal.Inc()
		recipients[recipientID] = struct{}{}
	}

	// Content-free cue: "a key is waiting, go fetch". The wrapped key never
	// rides the live channel.
	notified := 0
	for recipientID := range recipients {
		if s.hub.Push(recipientID, "senderkey.available", map[string]any{
			"groupId":        groupID.String(),
			"senderId":       senderID.String(),
			"senderDeviceId": senderDeviceID.String(),
		}) {
			notified++
		}
	}

	return dto.DistributeResponse{Distributed: len(entries), Notified: notified}, nil
}

func (s *SenderKeys) List(ctx context.Context, groupID, recipientID uuid.UUID, recipientDeviceID *uuid.UUID) ([]dto.SenderKeyRecord, error) {
	keys, err := s.store.SenderKeys().ListForRecipient(ctx, groupID, recipientID, recipientDeviceID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SenderKeyRecord, 0, len(keys))
	for _, key := range keys {
		out = append(out, dto.SenderKeyRecord{
			GroupID:           key.GroupID.String(),
			SenderID:          key.SenderID.String(),
			SenderDeviceID:    key.SenderDeviceID.String(),
			RecipientID:       key.RecipientID.String(),
			RecipientDeviceID: key.RecipientDeviceID.String(),
			WrappedKey:        key.WrappedKey,
			Version:           key.Version,
			UpdatedAt:         key.UpdatedAt,
		})
	}
	return out, nil
}

// RevokeForUser purges every record in the group where the user is sender or
// recipient, then cues remaining members to rotate. Called on membership
// removal, before the removed member could be handed any future key.
func (s *SenderKeys) RevokeForUser(ctx context.Context, groupID, userID uuid.UUID) (int64, error) {
	revoked, err := s.store.SenderKeys().DeleteForUser(ctx, groupID, userID)
	if err != nil {
		return 0, err
	}

	members, err := s.store.Memberships().MemberIDs(ctx, groupID)
	if err != nil {
		return revoked, err
	}
	remaining := members[:0]
	for _, id := range members {
		if id != userID {
			remaining = append(remaining, id)
		}
	}
	s.notifier.PublishMany(ctx, remaining, domain.KindSenderKeyRotate, "",
		"Group membership changed; distribute a fresh sender key.",
		map[string]any{"groupId": groupID.String()})

	return revoked, nil
}

func (s *SenderKeys) RevokeForGroup(ctx context.Context, groupID uuid.UUID) (int64, error) {
	return s.store.SenderKeys().DeleteForGroup(ctx, groupID)
}
