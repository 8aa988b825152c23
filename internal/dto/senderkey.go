package dto

import "time"

type SenderKeyEntry struct {
	RecipientID       string `json:"recipientId"`
	RecipientDeviceID string `json:"recipientDeviceId"`
	WrappedKey        string `json:"wrappedKey"`
	Version           uint32 `json:"version"`
}

type DistributeRequest struct {
	SenderDeviceID string           `json:"senderDeviceId"`
	Keys           []SenderKeyEntry `json:"keys"`
}

type DistributeResponse struct {
	Distributed int `json:"distributed"`
	Notified    int `json:"notified"`
}

type SenderKeyRecord struct {
	GroupID           string    `json:"groupId"`
	SenderID          string    `json:"senderId"`
	SenderDeviceID    string    `json:"senderDeviceId"`
	RecipientID       string    `json:"recipientId"`
	RecipientDeviceID string    `json:"recipientDeviceId"`
	WrappedKey        string    `json:"wrappedKey"`
	Version           uint32    `json:"version"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type ListSenderKeysResponse struct {
	Keys []SenderKeyRecord `json:"keys"`
}

type RevokeResponse struct {
	Revoked int64 `json:"revoked"`
}
