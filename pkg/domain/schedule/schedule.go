// Package schedule implements the publish-schedule write model: a tree of
// child entries that move through pending -> active -> completed, with
// cancellation allowed from any non-terminal state. Paired entries own a
// start and an end instant; single entries own only a start.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/plaenen/commercecore/pkg/domain"
)

const AggregateKind = "schedule"

// Event names emitted by the schedule aggregate.
const (
	EventCreated        = "schedule.created"
	EventEntryAdded     = "schedule.entry_added"
	EventEntryActivated = "schedule.entry_activated"
	EventEntryCompleted = "schedule.entry_completed"
	EventEntryCancelled = "schedule.entry_cancelled"
)

// EventNames lists every event the aggregate can emit.
func EventNames() []string {
	return []string{EventCreated, EventEntryAdded, EventEntryActivated, EventEntryCompleted, EventEntryCancelled}
}

// EntryState is the child-entry lifecycle state.
type EntryState string

const (
	EntryPending   EntryState = "pending"
	EntryActive    EntryState = "active"
	EntryCompleted EntryState = "completed"
	EntryCancelled EntryState = "cancelled"
)

// EntryKind distinguishes paired (start+end) from single (start only)
// entries.
type EntryKind string

const (
	KindPaired EntryKind = "paired"
	KindSingle EntryKind = "single"
)

// Entry is one scheduled action.
type Entry struct {
	EntryID string     `json:"entryId"`
	Kind    EntryKind  `json:"kind"`
	StartAt time.Time  `json:"startAt"`
	EndAt   *time.Time `json:"endAt,omitempty"`
	State   EntryState `json:"state"`
}

// State is the serialisable schedule state.
type State struct {
	domain.Meta
	TargetID   string  `json:"targetId"`
	TargetKind string  `json:"targetKind"`
	Entries    []Entry `json:"entries,omitempty"`
}

// Schedule is the in-memory write model. TargetID names the aggregate the
// schedule acts on (product, collection, variant).
type Schedule struct {
	domain.Root
	TargetID   string
	TargetKind string
	Entries    []Entry
}

// CreateParams holds the initial state for a new schedule.
type CreateParams struct {
	ID            string
	CorrelationID string
	UserID        string
	TargetID      string
	TargetKind    string
}

// New constructs a schedule at version 0 with no entries.
func New(p CreateParams) (*Schedule, error) {
	if p.TargetID == "" || p.TargetKind == "" {
		return nil, domain.RuleViolation("schedule requires a target id and kind")
	}
	s := &Schedule{
		Root:       domain.NewRoot(p.ID, p.CorrelationID),
		TargetID:   p.TargetID,
		TargetKind: p.TargetKind,
	}
	next, err := s.state()
	if err != nil {
		return nil, err
	}
	s.Emit(EventCreated, p.UserID, nil, next)
	return s, nil
}

// Load rehydrates a schedule from its snapshot.
func Load(snap *domain.Snapshot) (*Schedule, error) {
	var st State
	if err := json.Unmarshal(snap.Payload, &st); err != nil {
		return nil, fmt.Errorf("failed to decode schedule snapshot: %w", err)
	}
	return &Schedule{
		Root:       domain.RootFromMeta(st.Meta),
		TargetID:   st.TargetID,
		TargetKind: st.TargetKind,
		Entries:    st.Entries,
	}, nil
}

func (s *Schedule) Kind() string { return AggregateKind }

// ToSnapshot serializes the full state including version.
func (s *Schedule) ToSnapshot() (*domain.Snapshot, error) {
	payload, err := s.state()
	if err != nil {
		return nil, err
	}
	return s.Root.Snapshot(payload), nil
}

// CurrentState returns the serialisable state document.
func (s *Schedule) CurrentState() State {
	return State{Meta: s.Root.Meta, TargetID: s.TargetID, TargetKind: s.TargetKind, Entries: s.Entries}
}

func (s *Schedule) state() (json.RawMessage, error) {
	return json.Marshal(s.CurrentState())
}

// AddEntry appends a pending entry. Paired entries require an end after the
// start; single entries must not carry an end.
func (s *Schedule) AddEntry(userID string, e Entry) error {
	if e.EntryID == "" {
		return domain.RuleViolation("entry id is required")
	}
	if s.entry(e.EntryID) != nil {
		return domain.RuleViolation("entry %q already exists", e.EntryID)
	}
	switch e.Kind {
	case KindPaired:
		if e.EndAt == nil {
			return domain.RuleViolation("paired entry requires an end date")
		}
		if !e.EndAt.After(e.StartAt) {
			return domain.RuleViolation("paired entry end must be after start")
		}
	case KindSingle:
		if e.EndAt != nil {
			return domain.RuleViolation("single entry cannot carry an end date")
		}
	default:
		return domain.RuleViolation("unknown entry kind %q", e.Kind)
	}
	e.State = EntryPending
	return s.Mutate(EventEntryAdded, userID, s.state, func() error {
		s.Entries = append(s.Entries, e)
		return nil
	})
}

// ActivateEntry moves pending -> active.
func (s *Schedule) ActivateEntry(userID, entryID string) error {
	return s.transition(userID, entryID, EventEntryActivated, EntryActive, EntryPending)
}

// CompleteEntry moves active -> completed. Completed is terminal.
func (s *Schedule) CompleteEntry(userID, entryID string) error {
	return s.transition(userID, entryID, EventEntryCompleted, EntryCompleted, EntryActive)
}

// CancelEntry moves any non-terminal state -> cancelled.
func (s *Schedule) CancelEntry(userID, entryID string) error {
	return s.transition(userID, entryID, EventEntryCancelled, EntryCancelled, EntryPending, EntryActive)
}

func (s *Schedule) transition(userID, entryID, eventName string, to EntryState, from ...EntryState) error {
	e := s.entry(entryID)
	if e == nil {
		return domain.RuleViolation("entry %q not found", entryID)
	}
	allowed := false
	for _, st := range from {
		if e.State == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.RuleViolation("entry %q cannot move from %s to %s", entryID, e.State, to)
	}
	return s.Mutate(eventName, userID, s.state, func() error {
		e.State = to
		return nil
	})
}

func (s *Schedule) entry(entryID string) *Entry {
	for i := range s.Entries {
		if s.Entries[i].EntryID == entryID {
			return &s.Entries[i]
		}
	}
	return nil
}
