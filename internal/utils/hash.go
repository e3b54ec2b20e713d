package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashURL returns the hex SHA-256 of a long URL, used as its index key.
func HashURL(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}
