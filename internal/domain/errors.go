package domain

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("not found")
	ErrBundleNotFound      = errors.New("key bundle not found")
	ErrSenderKeyNotFound   = errors.New("sender key not found")
	ErrNotParticipant      = errors.New("not a participant")
	ErrForbidden           = errors.New("forbidden")
	ErrDeviceNotRegistered = errors.New("device not registered")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrFetchRateLimited    = errors.New("fetch rate limited")
	ErrInvalidBundleFormat = errors.New("invalid bundle format")
)

// Code maps a sentinel to the stable machine-readable code surfaced to
// callers. Unknown errors map to internal-error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrBundleNotFound):
		return "key-bundle-not-found"
	case errors.Is(err, ErrSenderKeyNotFound):
		return "sender-key-not-found"
	case errors.Is(err, ErrNotParticipant):
		return "not-a-participant"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDeviceNotRegistered):
		return "device-not-registered"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload-too-large"
	case errors.Is(err, ErrFetchRateLimited):
		return "fetch-rate-limited"
	case errors.Is(err, ErrInvalidBundleFormat):
		return "invalid-bundle-format"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid-request"
	}
	return "internal-error"
}
