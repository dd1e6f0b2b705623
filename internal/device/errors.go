package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device UUID does not exist
	// (or the device has been soft-deleted).
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with a UUID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidUUID is returned when a device identifier is not a valid UUID.
	ErrInvalidUUID = errors.New("device: invalid uuid")

	// ErrInvalidAlias is returned when a device alias is empty or too long.
	ErrInvalidAlias = errors.New("device: invalid alias")

	// ErrBadCredentials is returned when an API key does not match the
	// device's stored credential hash.
	ErrBadCredentials = errors.New("device: bad credentials")

	// ErrRegistryUnavailable is returned when the credential source cannot
	// be reached and no cached entry exists. Callers should map this to a
	// retryable condition rather than an auth failure.
	ErrRegistryUnavailable = errors.New("device: registry unavailable")
)
