package device

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// apiKeyBytes is the entropy of a generated API key (32 bytes = 256 bits).
const apiKeyBytes = 32

// GenerateAPIKey returns a new random API key as a hex string.
// The plaintext key is returned to the caller exactly once; only its
// hash is persisted.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIKey returns the SHA-256 hex digest of an API key.
// Keys are high-entropy random values, so an unsalted digest is
// sufficient; there is nothing to dictionary-attack.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey reports whether the presented key matches the stored hash.
// The comparison is constant-time over the digest.
func VerifyAPIKey(key, storedHash string) bool {
	sum := sha256.Sum256([]byte(key))
	presented := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
