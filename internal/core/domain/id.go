package domain

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateID returns a 128-bit random identifier encoded as 22 chars of
// URL-safe base64. IDs appear in URLs and log lines, so no padding.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
