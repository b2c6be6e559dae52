package domain

import (
	"encoding/json"
	"time"
)

// Event is an immutable record of one committed state change on one
// aggregate. Events are append-only; (AggregateID, Version) is unique.
type Event struct {
	// AggregateID is the identifier of the aggregate this event belongs to.
	AggregateID string `json:"aggregateId"`

	// Version is the aggregate version after applying this event.
	// The first event of an aggregate has version 0.
	Version int64 `json:"version"`

	// EventName is the closed-enumeration name (e.g. "variant.created").
	EventName string `json:"eventName"`

	// OccurredAt is when the mutation was applied, in UTC.
	OccurredAt time.Time `json:"occurredAt"`

	// CorrelationID traces related events across aggregates.
	CorrelationID string `json:"correlationId"`

	// UserID identifies the principal who triggered the mutation.
	UserID string `json:"userId"`

	// Payload carries the full aggregate state before and after the mutation.
	Payload Payload `json:"payload"`
}

// Payload is the {priorState, newState} pair carried by every event.
// PriorState is null for *created* events.
type Payload struct {
	PriorState json.RawMessage `json:"priorState"`
	NewState   json.RawMessage `json:"newState"`
}

// Snapshot is the latest-state projection of one aggregate, replaced in
// place on every mutation. Invariant: Version equals the version of the
// newest event for the aggregate.
type Snapshot struct {
	AggregateID   string `json:"aggregateId"`
	CorrelationID string `json:"correlationId"`
	Version       int64  `json:"version"`
	Payload       []byte `json:"payload"`
}

// TimeFunc returns the current time. Overridable for tests.
var TimeFunc = time.Now

// Now returns the current UTC time truncated to millisecond precision,
// the granularity persisted in ISO-8601 columns.
func Now() time.Time {
	return TimeFunc().UTC().Truncate(time.Millisecond)
}
