package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/arguswatcher/argus-ingest/internal/admission"
	"github.com/arguswatcher/argus-ingest/internal/device"
	"github.com/arguswatcher/argus-ingest/internal/telemetry"
)

// Status is the terminal outcome of an ingestion attempt.
type Status int

const (
	// StatusAccepted means the reading was persisted (or already was).
	StatusAccepted Status = iota

	// StatusUnauthenticated covers both unknown devices and credential
	// mismatches. The two are deliberately indistinguishable so callers
	// cannot probe which UUIDs are registered.
	StatusUnauthenticated

	// StatusRateLimited means an admission budget was exhausted.
	StatusRateLimited

	// StatusInvalidPayload means the payload failed validation.
	StatusInvalidPayload

	// StatusUnavailable means a backing store could not be reached.
	// Retryable by the device.
	StatusUnavailable
)

// String returns the status name for logging.
func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusRateLimited:
		return "rate_limited"
	case StatusInvalidPayload:
		return "invalid_payload"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the terminal state of one ingestion attempt.
type Result struct {
	Status Status

	// Reading is set when Status is StatusAccepted.
	Reading *telemetry.Reading

	// Alias is the device's registered alias, set once authentication
	// succeeds.
	Alias string

	// Duplicate is set when the accepted reading had already been
	// persisted by an earlier delivery.
	Duplicate bool

	// RetryAfter is the wait hint for StatusRateLimited.
	RetryAfter time.Duration

	// Reason carries a caller-safe explanation for rejections.
	Reason string

	// Err is the underlying error for StatusUnavailable, for logging.
	Err error
}

// Authenticator verifies device credentials. Implemented by
// device.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, uuid, apiKey string) (*device.Device, error)
}

// Admitter bounds the rate of writes per device. Implemented by
// admission.Controller.
type Admitter interface {
	Admit(deviceUUID string) admission.Decision
}

// Observer is notified after a reading is newly persisted. Used to fan
// accepted readings out to mirrors (time-series store, message bus)
// without coupling the pipeline to them. Implementations must not block.
type Observer interface {
	ReadingAccepted(r *telemetry.Reading, alias string)
}

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Gateway runs the ingestion pipeline.
type Gateway struct {
	auth      Authenticator
	admitter  Admitter
	validator *telemetry.Validator
	store     telemetry.Store

	authTimeout  time.Duration
	writeTimeout time.Duration

	observers []Observer
	logger    Logger
}

// Config holds the per-stage timeouts enforced by the Gateway.
type Config struct {
	// AuthTimeout bounds the registry lookup on a cache miss.
	AuthTimeout time.Duration

	// WriteTimeout bounds the durable write.
	WriteTimeout time.Duration
}

// NewGateway creates a gateway over the given collaborators.
func NewGateway(auth Authenticator, admitter Admitter, validator *telemetry.Validator, store telemetry.Store, cfg Config) *Gateway {
	return &Gateway{
		auth:         auth,
		admitter:     admitter,
		validator:    validator,
		store:        store,
		authTimeout:  cfg.AuthTimeout,
		writeTimeout: cfg.WriteTimeout,
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// AddObserver registers an observer for newly persisted readings.
// Not safe to call concurrently with Ingest; register during startup.
func (g *Gateway) AddObserver(o Observer) {
	g.observers = append(g.observers, o)
}

// Ingest runs one submission through the pipeline and returns its
// terminal result. The caller maps the result to a transport response.
func (g *Gateway) Ingest(ctx context.Context, deviceUUID, apiKey string, payload telemetry.Payload) Result {
	// Stage 1: authenticate.
	authCtx, cancel := context.WithTimeout(ctx, g.authTimeout)
	dev, err := g.auth.Authenticate(authCtx, deviceUUID, apiKey)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, device.ErrBadCredentials):
			return Result{Status: StatusUnauthenticated, Reason: "invalid device or credentials"}
		default:
			g.logger.Error("authentication dependency failed", "device_uuid", deviceUUID, "error", err)
			return Result{Status: StatusUnavailable, Reason: "registry unavailable", Err: err}
		}
	}

	// Stage 2: admission. Runs only for authenticated traffic so forged
	// requests cannot drain a device's budget.
	decision := g.admitter.Admit(deviceUUID)
	if !decision.Allowed {
		g.logger.Debug("submission rate limited",
			"device_uuid", deviceUUID, "scope", decision.Scope, "retry_after", decision.RetryAfter)
		return Result{
			Status:     StatusRateLimited,
			Alias:      dev.Alias,
			RetryAfter: decision.RetryAfter,
			Reason:     "rate limit exceeded",
		}
	}

	// Stage 3: validate.
	reading, err := g.validator.Validate(deviceUUID, payload)
	if err != nil {
		g.logger.Debug("payload rejected", "device_uuid", deviceUUID, "error", err)
		return Result{Status: StatusInvalidPayload, Alias: dev.Alias, Reason: err.Error()}
	}

	// Stage 4: write. The parent context is detached so a client that
	// disconnects mid-write cannot leave the store in an ambiguous
	// half-committed state; only the write timeout bounds it.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.writeTimeout)
	outcome, err := g.store.Write(writeCtx, reading)
	cancel()
	if outcome == telemetry.Failed {
		g.logger.Error("durable write failed", "device_uuid", deviceUUID, "error", err)
		return Result{Status: StatusUnavailable, Alias: dev.Alias, Reason: "telemetry store unavailable", Err: err}
	}

	if outcome == telemetry.Written {
		for _, o := range g.observers {
			o.ReadingAccepted(reading, dev.Alias)
		}
	}

	g.logger.Debug("reading accepted",
		"device_uuid", deviceUUID, "ingestion_id", reading.IngestionID, "outcome", outcome.String())
	return Result{
		Status:    StatusAccepted,
		Reading:   reading,
		Alias:     dev.Alias,
		Duplicate: outcome == telemetry.Duplicate,
	}
}
