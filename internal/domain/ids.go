package domain

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUID returns a random identifier for sessions, clients and traces.
func NewUUID() string {
	return uuid.NewString()
}

// NewULID returns a lexically sortable identifier for messages.
func NewULID() string {
	return ulid.Make().String()
}
