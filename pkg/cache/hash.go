package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// keyRevision is mixed into every tree and artifact key. Bump it when a
// decoder or encoder changes its output, so that entries written by older
// builds miss instead of serving stale trees.
const keyRevision = 2

// hashKey returns "<kind>:<sha256>" over the key revision and parts. Parts
// are content hashes and option structs, which always marshal.
func hashKey(kind string, parts ...any) string {
	data, _ := json.Marshal(append([]any{keyRevision}, parts...))
	sum := sha256.Sum256(data)
	return kind + ":" + hex.EncodeToString(sum[:])
}

// ContentHash returns the hex SHA-256 of a morphology file's bytes. The
// same reconstruction uploaded under two names shares one tree key.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortHash abbreviates a content hash for log lines.
func ShortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
