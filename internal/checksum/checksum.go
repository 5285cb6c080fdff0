// Package checksum fingerprints note content. The digest doubles as the
// If-Match token for optimistic locking and as the change detector for
// incremental reindexing, so every layer must derive it the same way.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Match reports whether sum is the digest of data.
func Match(data []byte, sum string) bool {
	return Sum(data) == sum
}
