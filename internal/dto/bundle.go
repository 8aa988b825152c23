package dto

import "time"

type SignedPreKey struct {
	ID        uint32    `json:"id"`
	PublicKey string    `json:"publicKey"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type OneTimePreKey struct {
	ID        uint32 `json:"id"`
	PublicKey string `json:"publicKey"`
}

type UploadBundleRequest struct {
	DeviceID       string          `json:"deviceId"`
	IdentityKey    string          `json:"identityKey"`
	SignedPreKey   SignedPreKey    `json:"signedPreKey"`
	OneTimePreKeys []OneTimePreKey `json:"oneTimePreKeys"`
}

type UploadBundleResponse struct {
	DeviceID        string `json:"deviceId"`
	OneTimePreKeys  int    `json:"oneTimePreKeys"`
	IdentityRotated bool   `json:"identityRotated"`
}

// DeviceBundle is one device's share of a fetch response. OneTimePreKey is
// nil when the pool is exhausted; callers fall back to a handshake without
// one.
type DeviceBundle struct {
	DeviceID      string         `json:"deviceId"`
	IdentityKey   string         `json:"identityKey"`
	SignedPreKey  SignedPreKey   `json:"signedPreKey"`
	OneTimePreKey *OneTimePreKey `json:"oneTimePreKey,omitempty"`
}

type FetchBundleResponse struct {
	UserID  string         `json:"userId"`
	Devices []DeviceBundle `json:"devices"`
}

type ReplenishRequest struct {
	DeviceID       string          `json:"deviceId"`
	OneTimePreKeys []OneTimePreKey `json:"oneTimePreKeys"`
}

type ReplenishResponse struct {
	DeviceID  string `json:"deviceId"`
	Added     int    `json:"added"`
	Remaining int64  `json:"remaining"`
}

type CountResponse struct {
	DeviceID  string `json:"deviceId"`
	Remaining int64  `json:"remaining"`
}
