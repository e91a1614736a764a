package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the first n hex characters of a fresh UUIDv4, used as a
// collision-avoiding suffix for human-readable names.
func ShortID(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(hex) {
		return hex
	}
	return hex[:n]
}
