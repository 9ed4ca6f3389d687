package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// NewID returns a 32 character hex id, optionally prefixed. Unprefixed ids fit
// the backend's 36 character document and file id limit.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewSecret returns a random URL-safe bearer secret.
func NewSecret() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return base64.RawURLEncoding.EncodeToString(bytes)
}
