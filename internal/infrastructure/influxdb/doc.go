// Package influxdb mirrors accepted telemetry readings into InfluxDB.
//
// SQLite is the system of record; InfluxDB is an optional, best-effort
// mirror for dashboarding and retention beyond what the relational store
// keeps hot. Writes are non-blocking and batched, so a slow or absent
// InfluxDB never backpressures the ingestion path. Errors surface through
// an async callback, not through the write call.
//
// The package is disabled by configuration; when disabled, Connect returns
// ErrDisabled and callers simply skip wiring the mirror.
package influxdb
