package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string
func New() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.Reader, 0)

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// NewMessageID returns the opaque identifier handed back to callers, e.g. msg_01j9...
func NewMessageID() string {
	return "msg_" + strings.ToLower(New())
}
