// Package auth issues and validates administrative bearer tokens.
//
// Devices authenticate with per-device API keys on the ingestion path;
// this package covers only the registry mutation surface (creating,
// updating, and deleting devices), which is operated by humans and
// tooling rather than devices. Tokens are HS256-signed JWTs validated by
// signature and expiry alone, with no session store.
package auth
