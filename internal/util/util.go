// Package util provides content hashing and timestamp helpers shared by
// the sync engine and the run journal.
package util

import (
	"encoding/hex"
	"time"

	"lukechampine.com/blake3"
)

// NowMs returns the current time in milliseconds since epoch.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Blake3Hash returns the 32-byte BLAKE3 digest of data.
func Blake3Hash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// Blake3HashHex returns the hex-encoded BLAKE3 digest of data.
func Blake3HashHex(data []byte) string {
	return hex.EncodeToString(Blake3Hash(data))
}
