// Package hash provides content fingerprinting for fetched payloads.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex SHA-256 digest of data. Callers use it to
// detect payload changes across refetches of the same URL.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
