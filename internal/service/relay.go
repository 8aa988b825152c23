package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"msgcore/internal/channel"
	"msgcore/internal/domain"
	"msgcore/internal/dto"
	"msgcore/internal/msgjson"
	"msgcore/internal/observability/metrics"
	"msgcore/internal/store"
)

// DefaultMaxCiphertextBytes caps one relayed message.
const DefaultMaxCiphertextBytes = 256 * 1024

// Relay stores opaque per-message ciphertext and fans it out. The ciphertext
// and all ratchet metadata pass through uninspected; only the type hint
// selects the wording of the content-free notification.
type Relay struct {
	store         *store.Store
	hub           *channel.Hub
	notifier      Notifier
	users         UserDirectory
	now           func() time.Time
	maxCiphertext int
}

func NewRelay(st *store.Store, hub *channel.Hub, notifier Notifier, users UserDirectory) *Relay {
	return &Relay{
		store:         st,
		hub:           hub,
		notifier:      notifier,
		users:         users,
		now:           time.Now,
		maxCiphertext: DefaultMaxCiphertextBytes,
	}
}

func (r *Relay) Send(ctx context.Context, chatID, senderID uuid.UUID, req dto.SendMessageRequest) (dto.Message, error) {
	senderDeviceID, err := uuid.Parse(req.SenderDeviceID)
	if err != nil {
		return dto.Message{}, fmt.Errorf("%w: invalid senderDeviceId", domain.ErrInvalidRequest)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil || len(ciphertext) == 0 {
		return dto.Message{}, fmt.Errorf("%w: invalid ciphertext", domain.ErrInvalidRequest)
	}
	if len(ciphertext) > r.maxCiphertext {
		return dto.Message{}, fmt.Errorf("%w: ciphertext is %d bytes", domain.ErrPayloadTooLarge, len(ciphertext))
	}

	member, err := r.store.Memberships().IsMember(ctx, chatID, senderID)
	if err != nil {
		return dto.Message{}, err
	}
	if !member {
		metrics.MessagesRelayedTotal.WithLabelValues("forbidden").Inc()
		return dto.Message{}, fmt.Errorf("%w: user %s in chat %s", domain.ErrNotParticipant, senderID, chatID)
	}

	var attachments msgjson.JSON
	if len(req.Attachments) > 0 {
		// Pointers only: url, mimetype, size. Content lives in blob storage.
		attachments, err = msgjson.Marshal(req.Attachments)
		if err != nil {
			return dto.Message{}, fmt.Errorf("%w: attachments not serializable", domain.ErrInvalidRequest)
		}
	}

	msg := domain.Message{
		ID:                  uuid.New(),
		ChatID:              chatID,
		SenderID:            senderID,
		SenderDeviceID:      senderDeviceID,
		Type:                req.Type,
		Ciphertext:          ciphertext,
		EphemeralKey:        req.EphemeralKey,
		OneTimePreKeyID:     req.OneTimePreKeyID,
		MessageNumber:       req.MessageNumber,
		PreviousChainLength: req.PreviousChainLength,
		Attachments:         attachments,
		SentAt:              r.now().UTC(),
	}
	if err := r.store.Messages().Create(ctx, &msg); err != nil {
		metrics.MessagesRelayedTotal.WithLabelValues("failure").Inc()
		return dto.Message{}, err
	}
	metrics.MessagesRelayedTotal.WithLabelValues("success").Inc()

	out := r.toDTO(msg, nil)

	members, err := r.store.Memberships().MemberIDs(ctx, chatID)
	if err == nil {
		others := members[:0]
		for _, id := range members {
			if id != senderID {
				others = append(others, id)
			}
		}
		// Live fan-out carries the full envelope to the recipients; the
		// durable notification below never sees it.
		r.hub.PushMany(others, "message.new", out)

		senderName := r.users.DisplayName(ctx, senderID)
		r.notifier.PublishMany(ctx, others, domain.KindMessageNew, "",
			notificationBody(req.Type, senderName),
			map[string]any{"chatId": chatID.String(), "messageId": msg.ID.String()})
	}

	return out, nil
}

// notificationBody selects generic wording by the type hint alone.
func notificationBody(msgType, senderName string) string {
	switch msgType {
	case "image", "photo":
		return senderName + " sent a photo"
	case "video":
		return senderName + " sent a video"
	case "audio", "voice":
		return senderName + " sent a voice message"
	case "file":
		return senderName + " sent a file"
	default:
		return "New message from " + senderName
	}
}

func (r *Relay) List(ctx context.Context, chatID, userID uuid.UUID, page, pageSize int, before, after *time.Time) ([]dto.Message, error) {
	member, err := r.store.Memberships().IsMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: user %s in chat %s", domain.ErrNotParticipant, userID, chatID)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	msgs, err := r.store.Messages().List(ctx, chatID, page, pageSize, before, after)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	receipts, err := r.store.Messages().Receipts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]dto.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, r.toDTO(msg, receipts[msg.ID]))
	}
	return out, nil
}

// MarkRead appends the user to the message's read-by set; repeats are no-ops.
func (r *Relay) MarkRead(ctx context.Context, chatID, messageID, userID uuid.UUID) error {
	member, err := r.store.Memberships().IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: user %s in chat %s", domain.ErrNotParticipant, userID, chatID)
	}
	if _, err := r.store.Messages().Get(ctx, chatID, messageID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
		}
		return err
	}
	return r.store.Messages().MarkRead(ctx, messageID, userID, r.now().UTC())
}

// Delete blanks the ciphertext irreversibly and marks the message deleted;
// id and metadata survive as a tombstone. Only the original sender or a group
// admin may delete.
func (r *Relay) Delete(ctx context.Context, chatID, messageID, userID uuid.UUID) error {
	msg, err := r.store.Messages().Get(ctx, chatID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
		}
		return err
	}

	if msg.SenderID != userID {
		admin, err := r.store.Memberships().IsAdmin(ctx, chatID, userID)
		if err != nil {
			return err
		}
		if !admin {
			return fmt.Errorf("%w: only the sender or an admin may delete", domain.ErrForbidden)
		}
	}

	if err := r.store.Messages().Blank(ctx, messageID); err != nil {
		return err
	}

	if members, err := r.store.Memberships().MemberIDs(ctx, chatID); err == nil {
		r.hub.PushMany(members, "message.deleted", map[string]any{
			"chatId":    chatID.String(),
			"messageId": messageID.String(),
		})
	}
	return nil
}

func (r *Relay) toDTO(msg domain.Message, receipts []domain.MessageReceipt) dto.Message {
	out := dto.Message{
		ID:                  msg.ID.String(),
		ChatID:              msg.ChatID.String(),
		SenderID:            msg.SenderID.String(),
		SenderDeviceID:      msg.SenderDeviceID.String(),
		Type:                msg.Type,
		Ciphertext:          base64.StdEncoding.EncodeToString(msg.Ciphertext),
		EphemeralKey:        msg.EphemeralKey,
		OneTimePreKeyID:     msg.OneTimePreKeyID,
		MessageNumber:       msg.MessageNumber,
		PreviousChainLength: msg.PreviousChainLength,
		IsDeleted:           msg.IsDeleted,
		SentAt:              msg.SentAt,
	}
	if msg.IsDeleted {
		out.Ciphertext = ""
	}
	if len(msg.Attachments) > 0 {
		var attachments []dto.Attachment
		if err := msg.Attachments.UnmarshalTo(&attachments); err == nil {
			out.Attachments = attachments
		}
	}
	for _, receipt := range receipts {
		out.ReadBy = append(out.ReadBy, dto.ReadReceipt{
			UserID: receipt.UserID.String(),
			ReadAt: receipt.ReadAt,
		})
	}
	return out
}
