package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 12 hex chars of the sha256 of value; used in output filenames.
func ShortHash(value string) string {
	return SHA256Bytes([]byte(value))[:12]
}
