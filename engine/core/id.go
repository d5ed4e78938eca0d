package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID is the canonical identifier type for sessions, execution log entries
// and other engine entities. IDs are KSUIDs: sortable by creation time and
// safe to expose to callers.
type ID string

// NewID generates a new random ID.
func NewID() (ID, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}
	return ID(id.String()), nil
}

// MustNewID generates a new ID and panics on failure. Intended for tests
// and initialization paths where ID generation cannot reasonably fail.
func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// ParseID validates that the given string is a well-formed ID.
func ParseID(s string) (ID, error) {
	id, err := ksuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID %q: %w", s, err)
	}
	return ID(id.String()), nil
}

func (i ID) String() string {
	return string(i)
}

func (i ID) IsZero() bool {
	return i == ""
}
