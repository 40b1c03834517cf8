package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRecordID computes a deterministic audit record id using SHA256.
// Formula: SHA256(op|user|ally_mint|amount|timestamp)
// Returns hex-encoded hash (64 characters). The same committed operation
// always hashes to the same id, so retried appends deduplicate in the
// audit sink.
func ComputeRecordID(op, user, allyMint string, amount uint64, timestamp int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d", op, user, allyMint, amount, timestamp)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
