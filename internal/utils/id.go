package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewHexID returns size random bytes hex encoded (2*size characters).
func NewHexID(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	ts := strconv.FormatInt(time.Now().UnixNano(), 16)
	if len(ts) > 2*size {
		ts = ts[len(ts)-2*size:]
	}
	return ts
}

// NewLobbyID returns a 12 character lobby identifier.
func NewLobbyID() string {
	return NewHexID(6)
}

// NewSyncID returns a 6 character synchronization packet identifier.
func NewSyncID() string {
	return NewHexID(3)
}
