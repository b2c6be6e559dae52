// Package skuregistry implements the SKU reservation aggregate. It is a
// single registry aggregate whose state maps reserved SKUs to the variant
// that owns them; reserving a SKU in the same Unit-of-Work as the variant
// create makes the pair commit or fail together.
package skuregistry

import (
	"encoding/json"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
)

const AggregateKind = "skuregistry"

// RegistryID is the well-known aggregate id of the single registry.
const RegistryID = "sku-registry"

// Event names emitted by the registry aggregate.
const (
	EventCreated  = "sku.registry_created"
	EventReserved = "sku.reserved"
	EventReleased = "sku.released"
)

// EventNames lists every event the aggregate can emit.
func EventNames() []string {
	return []string{EventCreated, EventReserved, EventReleased}
}

// State is the serialisable registry state.
type State struct {
	domain.Meta
	Reservations map[string]string `json:"reservations"` // sku -> variant id
}

// Registry is the in-memory write model.
type Registry struct {
	domain.Root
	Reservations map[string]string
}

// New constructs the registry at version 0 and emits the created event.
func New(correlationID, userID string) (*Registry, error) {
	r := &Registry{
		Root:         domain.NewRoot(RegistryID, correlationID),
		Reservations: make(map[string]string),
	}
	next, err := r.state()
	if err != nil {
		return nil, err
	}
	r.Emit(EventCreated, userID, nil, next)
	return r, nil
}

// Load rehydrates the registry from its snapshot.
func Load(snap *domain.Snapshot) (*Registry, error) {
	var s State
	if err := json.Unmarshal(snap.Payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode sku registry snapshot: %w", err)
	}
	if s.Reservations == nil {
		s.Reservations = make(map[string]string)
	}
	return &Registry{
		Root:         domain.RootFromMeta(s.Meta),
		Reservations: s.Reservations,
	}, nil
}

func (r *Registry) Kind() string { return AggregateKind }

// ToSnapshot serializes the full state including version.
func (r *Registry) ToSnapshot() (*domain.Snapshot, error) {
	payload, err := r.state()
	if err != nil {
		return nil, err
	}
	return r.Root.Snapshot(payload), nil
}

func (r *Registry) state() (json.RawMessage, error) {
	return json.Marshal(State{Meta: r.Root.Meta, Reservations: r.Reservations})
}

// Owner returns the variant holding a SKU, if any.
func (r *Registry) Owner(sku string) (string, bool) {
	owner, ok := r.Reservations[sku]
	return owner, ok
}

// Reserve claims a SKU for a variant. A SKU already held by another variant
// is a rule violation; re-reserving by the same owner is a no-op error too,
// so each reservation maps to exactly one event.
func (r *Registry) Reserve(userID, sku, variantID string) error {
	if sku == "" {
		return domain.RuleViolation("SKU cannot be empty")
	}
	if owner, taken := r.Reservations[sku]; taken {
		return domain.RuleViolation("SKU %q is already reserved by variant %s", sku, owner)
	}
	return r.Mutate(EventReserved, userID, r.state, func() error {
		r.Reservations[sku] = variantID
		return nil
	})
}

// Release frees a SKU held by the given variant.
func (r *Registry) Release(userID, sku, variantID string) error {
	owner, taken := r.Reservations[sku]
	if !taken {
		return domain.RuleViolation("SKU %q is not reserved", sku)
	}
	if owner != variantID {
		return domain.RuleViolation("SKU %q is reserved by variant %s, not %s", sku, owner, variantID)
	}
	return r.Mutate(EventReleased, userID, r.state, func() error {
		delete(r.Reservations, sku)
		return nil
	})
}
