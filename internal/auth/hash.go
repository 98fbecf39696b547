package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashClientKey derives the stable lookup key for a client-generated key.
// Only the hash is ever stored or compared server-side.
func HashClientKey(clientKey string) string {
	sum := sha256.Sum256([]byte(clientKey))
	return hex.EncodeToString(sum[:])
}
