package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken returns a random hex token, optionally prefixed for log
// readability. Entity IDs use uuid; this is for opaque secrets only.
func NewToken(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
