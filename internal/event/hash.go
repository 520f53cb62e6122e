package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// sentinel stands in for a missing field in the canonical hash tuple. A
// field is treated as missing when it is the empty string, so an empty field
// and an absent one hash identically.
const sentinel = "\x00"

// ContentHash computes the SHA-256 dedup key over the fixed tuple
// (observed_at, source_address, target_service, action, target_path,
// session_id, serialized_payload), in that order. Missing fields serialize
// as the sentinel byte.
func ContentHash(e Event) string {
	var b strings.Builder

	write := func(s string) {
		if s == "" {
			b.WriteString(sentinel)
		} else {
			b.WriteString(s)
		}
		b.WriteByte('\x1f') // unit separator between fields
	}

	write(e.ObservedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"))
	write(e.SourceAddress)
	write(e.TargetService)
	write(e.Action)
	write(e.TargetPath)
	write(e.SessionID)
	write(string(e.Payload))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
