// Package mqtt provides the message bus client for the ingestion gateway.
//
// The bus serves two purposes:
//
//   - Registry invalidation: administrative surfaces running elsewhere
//     publish device UUIDs to the invalidation topic after mutating the
//     registry, so every gateway instance drops its cached entry. The
//     cache TTL only bounds staleness when one of these messages is
//     missed.
//
//   - Telemetry fan-out: newly persisted readings are published per
//     device so downstream consumers (dashboards, alerting) can follow
//     the stream without polling the API.
//
// The client wraps paho.mqtt.golang with connection management,
// subscription restoration on reconnect, and panic-safe handler dispatch.
// The bus is optional; the gateway runs fine without it, falling back to
// TTL-only cache expiry and poll-based reads.
package mqtt
