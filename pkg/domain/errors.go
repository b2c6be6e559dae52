package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the {ok}|{err:{kind,message}} envelopes
// returned by the command and query surfaces.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindUnknownQueryType    Kind = "UnknownQueryType"
	KindNotFound            Kind = "NotFound"
	KindConcurrencyConflict Kind = "ConcurrencyConflict"
	KindDomainRule          Kind = "DomainRuleViolation"
	KindBackPressure        Kind = "BackPressure"
	KindStorage             Kind = "StorageError"
	KindExternalDelivery    Kind = "ExternalDeliveryError"
	KindUnknown             Kind = "Unknown"
)

var (
	// ErrAggregateNotFound is returned when an aggregate has no snapshot.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrSnapshotNotFound is returned when a snapshot cannot be found.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrConcurrencyConflict is returned when expectedVersion doesn't match
	// the stored snapshot version.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate version mismatch")

	// ErrBackPressure is returned when the batcher queue is saturated.
	// Callers may retry after a delay.
	ErrBackPressure = errors.New("write queue saturated")

	// ErrDomainRule is the base error for aggregate invariant violations.
	ErrDomainRule = errors.New("domain rule violation")

	// ErrValidation is the base error for malformed command/query payloads.
	ErrValidation = errors.New("validation failed")

	// ErrStorage is the base error for failed physical commits.
	ErrStorage = errors.New("storage failure")

	// ErrExternalDelivery is the base error for failed outbox deliveries.
	ErrExternalDelivery = errors.New("external delivery failed")

	// ErrUnknownQueryType is returned for empty or unregistered query types.
	ErrUnknownQueryType = errors.New("unknown query type")
)

// ConcurrencyError carries the version numbers involved in a conflict.
type ConcurrencyError struct {
	Expected int64
	Found    int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("expected version %d but found version %d", e.Expected, e.Found)
}

func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// NewConcurrencyError creates a conflict error for a version mismatch.
func NewConcurrencyError(expected, found int64) error {
	return &ConcurrencyError{Expected: expected, Found: found}
}

// RuleViolation creates a domain rule error with a formatted message.
// Domain errors surface to the caller untouched and are never retried.
func RuleViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDomainRule, fmt.Sprintf(format, args...))
}

// Invalid creates a validation error with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf classifies an error into its envelope kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnknownQueryType):
		return KindUnknownQueryType
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAggregateNotFound), errors.Is(err, ErrSnapshotNotFound):
		return KindNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrDomainRule):
		return KindDomainRule
	case errors.Is(err, ErrBackPressure):
		return KindBackPressure
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrExternalDelivery):
		return KindExternalDelivery
	default:
		return KindUnknown
	}
}
