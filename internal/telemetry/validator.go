package telemetry

import (
	"fmt"
	"math"
	"time"
)

// ValidatorConfig holds the payload bounds enforced by a Validator.
type ValidatorConfig struct {
	// CoordinateMin and CoordinateMax bound both axes, inclusive.
	CoordinateMin float64
	CoordinateMax float64

	// MaxFuture is how far ahead of the gateway's clock a device_time
	// may be before it is rejected as clock skew.
	MaxFuture time.Duration

	// MaxAge is how far behind the gateway's clock a device_time may be.
	MaxAge time.Duration
}

// Validator checks telemetry payloads before they reach storage.
//
// Validation is pure: the only inputs are the payload, the configured
// bounds, and the clock. Out-of-range values are rejected, never clamped,
// so upstream bugs stay visible.
type Validator struct {
	cfg ValidatorConfig
	now func() time.Time
}

// NewValidator creates a validator with the given bounds.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg, now: time.Now}
}

// Validate checks a payload and, if well-formed, builds the Reading that
// the writer will persist. The returned error wraps one of the package's
// sentinel errors with field detail.
func (v *Validator) Validate(deviceUUID string, p Payload) (*Reading, error) {
	if p.XCoord == nil {
		return nil, fmt.Errorf("%w: x_coord", ErrMissingField)
	}
	if p.YCoord == nil {
		return nil, fmt.Errorf("%w: y_coord", ErrMissingField)
	}
	if p.DeviceTime == "" {
		return nil, fmt.Errorf("%w: device_time", ErrMissingField)
	}

	deviceTime, err := time.Parse(time.RFC3339, p.DeviceTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimestamp, p.DeviceTime)
	}
	deviceTime = deviceTime.UTC()

	now := v.now().UTC()
	if deviceTime.After(now.Add(v.cfg.MaxFuture)) {
		return nil, fmt.Errorf("%w: %s", ErrTimestampFuture, deviceTime.Format(time.RFC3339))
	}
	if deviceTime.Before(now.Add(-v.cfg.MaxAge)) {
		return nil, fmt.Errorf("%w: %s", ErrTimestampStale, deviceTime.Format(time.RFC3339))
	}

	if err := v.checkCoordinate("x_coord", *p.XCoord); err != nil {
		return nil, err
	}
	if err := v.checkCoordinate("y_coord", *p.YCoord); err != nil {
		return nil, err
	}

	return &Reading{
		IngestionID: IngestionID(deviceUUID, deviceTime),
		DeviceUUID:  deviceUUID,
		DeviceTime:  deviceTime,
		XCoord:      *p.XCoord,
		YCoord:      *p.YCoord,
		ReceivedAt:  now,
	}, nil
}

func (v *Validator) checkCoordinate(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s is not finite", ErrCoordinateRange, field)
	}
	if value < v.cfg.CoordinateMin || value > v.cfg.CoordinateMax {
		return fmt.Errorf("%w: %s = %g, bounds [%g, %g]",
			ErrCoordinateRange, field, value, v.cfg.CoordinateMin, v.cfg.CoordinateMax)
	}
	return nil
}
