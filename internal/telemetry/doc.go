// Package telemetry implements reading validation and durable storage for
// the ingestion gateway.
//
// A Reading is one accepted telemetry sample from a device: a coordinate
// pair stamped with the device's own clock. Readings are immutable once
// written; the ingestion path never updates or deletes them.
//
// # Idempotency
//
// The (device_uuid, device_time) pair uniquely identifies a reading. The
// store enforces this with a unique constraint, so a retransmitted reading
// collapses to a Duplicate outcome rather than a second row. The derived
// ingestion ID is a UUIDv5 over the same pair, making it stable across
// retries of the same reading.
package telemetry
