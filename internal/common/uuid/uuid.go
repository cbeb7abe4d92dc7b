// Package uuid generates the identifiers used for request correlation and
// server-side records. IDs are UUIDv7 so they sort by creation time.
package uuid

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// UUID represents a UUID, aliased from github.com/google/uuid.UUID
type UUID = uuid.UUID

// New returns a new UUIDv7, falling back to a random UUIDv4 if the clock
// based generator fails.
func New() UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// NewRequestID returns an ID for the X-Neekly-Request-ID header.
func NewRequestID() string {
	return New().String()
}

// NewID returns an ID for a stored record.
func NewID() string {
	return New().String()
}

// NewToken returns a random v4 UUID for opaque secrets such as refresh
// tokens.
func NewToken() string {
	return uuid.NewString()
}

// IsRequestID reports whether s is a well-formed v4 or v7 UUID. Anything
// else supplied by a client is replaced rather than logged.
func IsRequestID(s string) bool {
	if len(s) != 36 {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 7 || id.Version() == 4
}

// CreatedAt extracts the creation time of a v7 ID. It reports false for
// other versions or malformed input.
func CreatedAt(s string) (time.Time, bool) {
	id, err := uuid.Parse(s)
	if err != nil || id.Version() != 7 {
		return time.Time{}, false
	}
	tsMillis := binary.BigEndian.Uint64(id[0:8]) >> 16
	return time.UnixMilli(int64(tsMillis)), true
}
