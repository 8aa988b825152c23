package dto

import "time"

type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type SendMessageRequest struct {
	SenderDeviceID      string       `json:"senderDeviceId"`
	Type                string       `json:"type"`
	Ciphertext          string       `json:"ciphertext"`
	EphemeralKey        string       `json:"ephemeralKey,omitempty"`
	OneTimePreKeyID     *uint32      `json:"oneTimePreKeyId,omitempty"`
	MessageNumber       uint32       `json:"messageNumber"`
	PreviousChainLength uint32       `json:"previousChainLength"`
	Attachments         []Attachment `json:"attachments,omitempty"`
}

type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type Message struct {
	ID                  string        `json:"id"`
	ChatID              string        `json:"chatId"`
	SenderID            string        `json:"senderId"`
	SenderDeviceID      string        `json:"senderDeviceId"`
	Type                string        `json:"type"`
	Ciphertext          string        `json:"ciphertext"`
	EphemeralKey        string        `json:"ephemeralKey,omitempty"`
	OneTimePreKeyID     *uint32       `json:"oneTimePreKeyId,omitempty"`
	MessageNumber       uint32        `json:"messageNumber"`
	PreviousChainLength uint32        `json:"previousChainLength"`
	Attachments         []Attachment  `json:"attachments,omitempty"`
	ReadBy              []ReadReceipt `json:"readBy,omitempty"`
	IsDeleted           bool          `json:"isDeleted"`
	SentAt              time.Time     `json:"sentAt"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}
