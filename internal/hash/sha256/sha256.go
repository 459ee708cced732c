// Package sha256 provides content digests for stored page chunks.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex-encoded SHA-256 digest of data. Chunks carry it so
// downstream consumers can detect content changes across re-crawls without
// comparing full bodies.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
