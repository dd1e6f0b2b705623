package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrMissingField is returned when a required payload field is absent.
	ErrMissingField = errors.New("telemetry: missing field")

	// ErrBadTimestamp is returned when device_time does not parse as an
	// RFC 3339 UTC timestamp.
	ErrBadTimestamp = errors.New("telemetry: bad timestamp")

	// ErrTimestampFuture is returned when device_time is further in the
	// future than the configured skew tolerance.
	ErrTimestampFuture = errors.New("telemetry: timestamp too far in future")

	// ErrTimestampStale is returned when device_time is older than the
	// configured maximum age.
	ErrTimestampStale = errors.New("telemetry: timestamp too old")

	// ErrCoordinateRange is returned when a coordinate is non-finite or
	// outside the configured bounds.
	ErrCoordinateRange = errors.New("telemetry: coordinate out of range")

	// ErrNoReadings is returned when a device has no stored readings.
	ErrNoReadings = errors.New("telemetry: no readings")
)
