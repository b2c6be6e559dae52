package domain

import (
	"encoding/json"
	"time"
)

// Status is the shared aggregate lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// CanTransitionTo reports whether the lifecycle transition is allowed:
// draft -> {active, archived}, active -> {archived}, archived is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive || next == StatusArchived
	case StatusActive:
		return next == StatusArchived
	default:
		return false
	}
}

// Aggregate is the polymorphic contract every write model implements.
type Aggregate interface {
	// ID returns the aggregate's unique identifier.
	ID() string

	// Kind returns the aggregate kind name (e.g. "variant").
	Kind() string

	// Version returns the current version of the aggregate.
	Version() int64

	// UncommittedEvents returns events applied but not yet persisted.
	UncommittedEvents() []*Event

	// ClearUncommittedEvents clears the list after persistence.
	ClearUncommittedEvents()

	// ToSnapshot serializes the full aggregate state including version.
	ToSnapshot() (*Snapshot, error)
}

// Meta is the shared, serialisable part of every aggregate state.
type Meta struct {
	ID            string     `json:"id"`
	CorrelationID string     `json:"correlationId"`
	Version       int64      `json:"version"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
}

// Root provides the base mutation machinery for aggregates.
// Embed it in concrete aggregate types.
type Root struct {
	Meta
	uncommitted []*Event
}

// NewRoot creates the root for a freshly created aggregate: version 0,
// status draft, createdAt/updatedAt stamped now.
func NewRoot(id, correlationID string) Root {
	now := Now()
	return Root{Meta: Meta{
		ID:            id,
		CorrelationID: correlationID,
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
}

// RootFromMeta restores the root from persisted state.
func RootFromMeta(m Meta) Root {
	return Root{Meta: m}
}

func (r *Root) ID() string            { return r.Meta.ID }
func (r *Root) CorrelationID() string { return r.Meta.CorrelationID }
func (r *Root) Version() int64        { return r.Meta.Version }
func (r *Root) Status() Status        { return r.Meta.Status }

// UncommittedEvents returns events that haven't been persisted yet.
func (r *Root) UncommittedEvents() []*Event { return r.uncommitted }

// ClearUncommittedEvents clears the uncommitted events list.
func (r *Root) ClearUncommittedEvents() { r.uncommitted = nil }

// Emit appends one event carrying the prior and new state at the root's
// current version. Mutate is the usual entry point; Emit is exposed for
// *created* events where there is no prior state.
func (r *Root) Emit(eventName, userID string, prior, next json.RawMessage) {
	r.uncommitted = append(r.uncommitted, &Event{
		AggregateID:   r.Meta.ID,
		Version:       r.Meta.Version,
		EventName:     eventName,
		OccurredAt:    r.Meta.UpdatedAt,
		CorrelationID: r.Meta.CorrelationID,
		UserID:        userID,
		Payload:       Payload{PriorState: prior, NewState: next},
	})
}

// Mutate runs the shared mutation protocol: capture prior state, apply the
// change, advance the version, stamp updatedAt, capture the new state, and
// emit exactly one event. If apply returns an error the aggregate is left
// untouched apart from whatever apply itself modified, and no event is
// emitted; callers treat any returned error as a failed command.
func (r *Root) Mutate(eventName, userID string, state func() (json.RawMessage, error), apply func() error) error {
	prior, err := state()
	if err != nil {
		return err
	}
	if err := apply(); err != nil {
		return err
	}
	r.Meta.Version++
	r.Meta.UpdatedAt = Now()
	next, err := state()
	if err != nil {
		return err
	}
	r.Emit(eventName, userID, prior, next)
	return nil
}

// MarkPublished transitions to active and stamps publishedAt on the first
// transition only. The caller must have verified the transition is legal.
func (r *Root) MarkPublished() {
	r.Meta.Status = StatusActive
	if r.Meta.PublishedAt == nil {
		now := Now()
		r.Meta.PublishedAt = &now
	}
}

// Snapshot builds a snapshot from a serialized state payload.
func (r *Root) Snapshot(payload []byte) *Snapshot {
	return &Snapshot{
		AggregateID:   r.Meta.ID,
		CorrelationID: r.Meta.CorrelationID,
		Version:       r.Meta.Version,
		Payload:       payload,
	}
}
