package mqtt

import "errors"

var (
	// ErrConnectionFailed is returned when the initial broker connection
	// cannot be established.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned when an operation requires an active
	// broker connection.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrInvalidTopic is returned for empty topic strings.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS is returned for QoS levels outside 0-2.
	ErrInvalidQoS = errors.New("mqtt: invalid qos")

	// ErrPublishFailed is returned when a publish times out or is
	// rejected by the broker.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscription cannot be
	// established.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe times out or
	// is rejected.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)
