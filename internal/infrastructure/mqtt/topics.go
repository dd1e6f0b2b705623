package mqtt

import "fmt"

// Topic prefixes for the Argus MQTT hierarchy.
const (
	// TopicPrefix is the base for all gateway topics.
	TopicPrefix = "argus"

	// TopicPrefixRegistry is the base for registry coordination topics.
	TopicPrefixRegistry = "argus/registry"

	// TopicPrefixTelemetry is the base for telemetry fan-out topics.
	TopicPrefixTelemetry = "argus/telemetry"

	// TopicPrefixSystem is the base for system status topics.
	TopicPrefixSystem = "argus/system"
)

// Topics provides builders for Argus MQTT topics. Using these helpers
// keeps topic naming consistent between publishers and subscribers.
type Topics struct{}

// RegistryInvalidate returns the topic carrying device invalidation
// messages. The payload is the device UUID whose cached registry entry
// must be dropped.
//
// Example: argus/registry/invalidate
func (Topics) RegistryInvalidate() string {
	return TopicPrefixRegistry + "/invalidate"
}

// DeviceTelemetry returns the fan-out topic for one device's accepted
// readings.
//
// Example: argus/telemetry/3f8a9c12-5b6d-4e7f-8a90-1b2c3d4e5f60
func (Topics) DeviceTelemetry(deviceUUID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixTelemetry, deviceUUID)
}

// AllDeviceTelemetry returns the wildcard pattern matching every device's
// telemetry topic.
//
// Example: argus/telemetry/+
func (Topics) AllDeviceTelemetry() string {
	return TopicPrefixTelemetry + "/+"
}

// SystemStatus returns the topic for gateway online/offline status.
// Retained so new subscribers immediately learn the current state.
//
// Example: argus/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
