package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"msgcore/internal/msgjson"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayName string    `gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
}

type Device struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// Notification is a durable addressed event. Delivered flips on a successful
// live push or a pull fetch; Read only on explicit client acknowledgment.
type Notification struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey"`
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_recipient_created,priority:1"`
	Kind        NotificationKind `gorm:"type:text;not null"`
	Title       string           `gorm:"type:text;not null"`
	Body        string           `gorm:"type:text;not null"`
	Payload     msgjson.JSON     `gorm:"type:jsonb"`
	Delivered   bool             `gorm:"not null;default:false"`
	Read        bool             `gorm:"not null;default:false"`
	CreatedAt   time.Time        `gorm:"not null;index:idx_notifications_recipient_created,priority:2"`
}

type IdentityKey struct {
	DeviceID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	PublicKey string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

type SignedPreKey struct {
	DeviceID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	KeyID     uint32    `gorm:"not null"`
	PublicKey string    `gorm:"type:text;not null"`
	Signature string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type OneTimePreKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DeviceID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	KeyID      uint32     `gorm:"not null"`
	PublicKey  string     `gorm:"type:text;not null"`
	ConsumedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime"`
}

// SenderKey is one wrapped copy of a group sender key, keyed by the full
// (group, sender device, recipient device) tuple. Exactly one live row per
// tuple; re-distribution replaces in place.
type SenderKey struct {
	GroupID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SenderID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	SenderDeviceID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RecipientID       uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	RecipientDeviceID uuid.UUID `gorm:"type:uuid;primaryKey"`
	WrappedKey        string    `gorm:"type:text;not null"`
	Version           uint32    `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime"`
}

// Message holds relayed ciphertext plus pass-through ratchet metadata. The
// server never inspects Ciphertext; deleting a message blanks it in place.
type Message struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ChatID              uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_chat_sent,priority:1"`
	SenderID            uuid.UUID      `gorm:"type:uuid;not null"`
	SenderDeviceID      uuid.UUID      `gorm:"type:uuid;not null"`
	Type                string         `gorm:"type:text;not null"`
	Ciphertext          []byte         `gorm:"not null"`
	EphemeralKey        string         `gorm:"type:text"`
	OneTimePreKeyID     *uint32        `gorm:""`
	MessageNumber       uint32         `gorm:"not null"`
	PreviousChainLength uint32         `gorm:"not null"`
	Attachments         msgjson.JSON   `gorm:"type:jsonb"`
	IsDeleted           bool           `gorm:"not null;default:false"`
	SentAt              time.Time      `gorm:"not null;index:idx_messages_chat_sent,priority:2"`
	DeletedAt           gorm.DeletedAt `gorm:"index"`
}

type MessageReceipt struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReadAt    time.Time `gorm:"not null"`
}

type GroupMember struct {
	GroupID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Role     string    `gorm:"type:text;not null;default:'member'"`
	JoinedAt time.Time `gorm:"not null;autoCreateTime"`
}

const RoleAdmin = "admin"

// All lists every model for automigration, in dependency order.
func All() []any {
	return []any{
		&User{},
		&Device{},
		&Notification{},
		&IdentityKey{},
		&SignedPreKey{},
		&OneTimePreKey{},
		&SenderKey{},
		&Message{},
		&MessageReceipt{},
		&GroupMember{},
	}
}
