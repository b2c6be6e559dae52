// Package projection fans committed events out to the denormalised read
// models inside the same logical transaction that appends them. Dispatch is
// exhaustive: an event name without a registered projector is a programming
// error and panics rather than silently dropping a read-model update.
package projection

import (
	"context"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/uow"
)

// Projector updates read models for one event. It stages writes into the
// transaction's repositories; it never commits on its own.
type Projector func(ctx context.Context, repos *uow.Repositories, ev *domain.Event) error

// Router maps event names to projectors.
type Router struct {
	projectors map[string]Projector
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{projectors: make(map[string]Projector)}
}

// Register binds a projector to an event name. Registering the same name
// twice panics: a silent overwrite would hide a wiring mistake.
func (r *Router) Register(eventName string, p Projector) {
	if _, exists := r.projectors[eventName]; exists {
		panic(fmt.Sprintf("projector already registered for event %q", eventName))
	}
	r.projectors[eventName] = p
}

// EventNames returns the registered event names.
func (r *Router) EventNames() []string {
	names := make([]string, 0, len(r.projectors))
	for name := range r.projectors {
		names = append(names, name)
	}
	return names
}

// Apply dispatches one event to its projector. An unregistered event name
// panics.
func (r *Router) Apply(ctx context.Context, repos *uow.Repositories, ev *domain.Event) error {
	p, ok := r.projectors[ev.EventName]
	if !ok {
		panic(fmt.Sprintf("no projector registered for event %q", ev.EventName))
	}
	if err := p(ctx, repos, ev); err != nil {
		return fmt.Errorf("projection of %s failed: %w", ev.EventName, err)
	}
	return nil
}
