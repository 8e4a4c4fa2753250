package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex digests input and returns it as lowercase hex. Idempotency keys
// are hashed this way before becoming Redis keys.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
