package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(mint|strategy_id|venue_id|entry_timestamp)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(
	mint string,
	strategyID string,
	venueID string,
	entryTimestamp int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		mint,
		strategyID,
		venueID,
		entryTimestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// DerivePositionSeed derives a per-position random seed from the run seed.
// Formula: first 8 bytes (big endian) of SHA256(seed|position_id).
// Each position gets its own stream, independent of scheduling order.
func DerivePositionSeed(seed uint64, positionID string) uint64 {
	data := fmt.Sprintf("%d|%s", seed, positionID)
	hash := sha256.Sum256([]byte(data))
	return binary.BigEndian.Uint64(hash[:8])
}
