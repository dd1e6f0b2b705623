// Package device implements the device registry for the Argus ingestion
// gateway.
//
// The registry is the system of record for device identity: each device has
// a UUID, a human-readable alias, and a hashed API key credential. Devices
// are soft-deleted so that historical telemetry stays attributable.
//
// # Architecture
//
// The package is layered:
//
//   - Repository: persistence interface with a SQLite implementation
//   - Cache: bounded TTL cache of registry entries for the hot auth path
//   - Authenticator: read-through credential verification combining both
//
// The Authenticator is what the ingestion pipeline calls. It consults the
// cache first, falls back to the repository on a miss, and distinguishes
// "device unknown" from "registry unavailable" so the HTTP layer can map
// them to different status codes.
//
// # Thread Safety
//
// Cache and Authenticator are safe for concurrent use. SQLiteRepository is
// safe for concurrent use through database/sql's connection pooling.
package device
