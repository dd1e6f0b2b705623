package device

import (
	"context"
	"errors"
	"fmt"
)

// Logger defines the logging interface used by the Authenticator.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Authenticator verifies device credentials against the registry.
//
// Lookups are read-through: the cache is consulted first, and on a miss
// the repository is queried and the result cached. A repository failure
// on a cache miss surfaces as ErrRegistryUnavailable rather than an auth
// failure, so callers can return a retryable status instead of rejecting
// a possibly-valid device.
type Authenticator struct {
	repo   Repository
	cache  *Cache
	logger Logger
}

// NewAuthenticator creates an authenticator backed by the given repository
// and cache.
func NewAuthenticator(repo Repository, cache *Cache) *Authenticator {
	return &Authenticator{
		repo:   repo,
		cache:  cache,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the authenticator.
func (a *Authenticator) SetLogger(logger Logger) {
	a.logger = logger
}

// Authenticate verifies that apiKey belongs to the device with the given
// UUID. On success it returns the device's registry entry.
//
// Returns ErrDeviceNotFound for unknown or soft-deleted devices,
// ErrBadCredentials for a key mismatch, and ErrRegistryUnavailable when
// the registry cannot be consulted.
func (a *Authenticator) Authenticate(ctx context.Context, uuid, apiKey string) (*Device, error) {
	d, err := a.lookup(ctx, uuid)
	if err != nil {
		return nil, err
	}

	if !VerifyAPIKey(apiKey, d.APIKeyHash) {
		a.logger.Warn("credential mismatch", "device_uuid", uuid)
		return nil, ErrBadCredentials
	}

	return d, nil
}

// Lookup returns the registry entry for a device without verifying
// credentials. Used by read endpoints that only need existence.
func (a *Authenticator) Lookup(ctx context.Context, uuid string) (*Device, error) {
	return a.lookup(ctx, uuid)
}

// Invalidate drops a device's cached entry so the next lookup hits the
// repository. Called after admin mutations and on invalidation bus
// messages.
func (a *Authenticator) Invalidate(uuid string) {
	a.cache.Invalidate(uuid)
	a.logger.Debug("registry entry invalidated", "device_uuid", uuid)
}

// CacheStats exposes the underlying cache counters.
func (a *Authenticator) CacheStats() CacheStats {
	return a.cache.Stats()
}

func (a *Authenticator) lookup(ctx context.Context, uuid string) (*Device, error) {
	if cached := a.cache.Get(uuid); cached != nil {
		return cached, nil
	}

	d, err := a.repo.GetByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, ErrDeviceNotFound
		}
		a.logger.Error("registry lookup failed", "device_uuid", uuid, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	a.cache.Put(d)
	return d.DeepCopy(), nil
}
