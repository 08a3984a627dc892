// Package util holds small cross-cutting helpers with no natural home of
// their own.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewReqID generates a short (16 hex character) identifier used to
// correlate a session's log lines across its lifetime.
func NewReqID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
