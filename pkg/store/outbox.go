package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/plaenen/commercecore/pkg/domain"
)

// OutboxStatus is the closed delivery-state enumeration of an outbox row.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxInflight  OutboxStatus = "inflight"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxDead      OutboxStatus = "dead"
)

// OutboxEntry is one persisted domain event awaiting external delivery.
// ID is the consumer-side deduplication key; retries reuse it.
type OutboxEntry struct {
	ID             string
	AggregateID    string
	EventName      string
	OccurredAt     time.Time
	Payload        []byte
	Status         OutboxStatus
	Attempts       int
	LastError      string
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
}

// NewOutboxEntry builds a pending entry for a domain event with the given
// fresh id (UUIDv7 by convention).
func NewOutboxEntry(id string, ev *domain.Event) (*OutboxEntry, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbox payload: %w", err)
	}
	return &OutboxEntry{
		ID:            id,
		AggregateID:   ev.AggregateID,
		EventName:     ev.EventName,
		OccurredAt:    ev.OccurredAt,
		Payload:       payload,
		Status:        OutboxPending,
		NextAttemptAt: ev.OccurredAt,
	}, nil
}

// DeadLetter is an outbox entry moved to the dead-letter set after
// exhausting its attempts.
type DeadLetter struct {
	OutboxEntry
	DeadSince time.Time
}
