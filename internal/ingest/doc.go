// Package ingest orchestrates the telemetry ingestion pipeline.
//
// Each inbound submission flows through a fixed sequence of stages:
// authenticate, admit, validate, write. Any stage failure short-circuits
// to a terminal result; nothing is retried internally. Authentication
// runs before admission so unauthenticated traffic cannot consume a
// device's rate budget, and admission runs before validation so floods
// are rejected before parsing work is spent.
//
// The gateway is a pure pipeline over its collaborators; it holds no
// per-request state of its own and is safe for concurrent use.
package ingest
