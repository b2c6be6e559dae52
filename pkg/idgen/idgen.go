// Package idgen generates the identifiers used across the write model:
// ULIDs for aggregate ids (sortable, human-scannable) and UUIDv7 for outbox
// entries (time-ordered deduplication keys).
package idgen

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MustSortableID returns a new ULID. Panics only when the entropy source
// fails, which does not happen with a seeded math/rand reader.
func MustSortableID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// MustUUIDv7 returns a new time-ordered UUID.
func MustUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewAggregateID returns a prefixed sortable aggregate id, e.g. "var_01hx...".
func NewAggregateID(prefix string) string {
	return prefix + "_" + strings.ToLower(MustSortableID())
}
