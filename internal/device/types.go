package device

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxAliasLength is the maximum length of a device alias.
const MaxAliasLength = 100

// Device represents a registered telemetry source.
//
// The UUID is the device's identity on the wire: telemetry submissions
// address it directly in the URL path. APIKeyHash holds the SHA-256 hex
// digest of the device's API key; the plaintext key is shown once at
// creation and never stored.
type Device struct {
	UUID       string     `json:"uuid"`
	Alias      string     `json:"alias"`
	APIKeyHash string     `json:"-"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the device has been soft-deleted.
func (d *Device) Deleted() bool {
	return d.DeletedAt != nil
}

// DeepCopy returns a copy of the device safe for the caller to mutate.
// Cached entries are always handed out as copies so concurrent readers
// never share pointers into the cache.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

// GenerateUUID returns a new random device identifier.
func GenerateUUID() string {
	return uuid.NewString()
}

// ValidateDevice checks that a device's identity fields are well-formed.
// Returns ErrInvalidUUID or ErrInvalidAlias wrapped in ErrInvalidDevice
// semantics via errors.Is.
func ValidateDevice(d *Device) error {
	if _, err := uuid.Parse(d.UUID); err != nil {
		return ErrInvalidUUID
	}
	alias := strings.TrimSpace(d.Alias)
	if alias == "" || len(alias) > MaxAliasLength {
		return ErrInvalidAlias
	}
	if d.APIKeyHash == "" {
		return ErrInvalidDevice
	}
	return nil
}
