// Package collection implements the product-collection write model.
package collection

import (
	"encoding/json"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
)

const AggregateKind = "collection"

// Event names emitted by the collection aggregate.
const (
	EventCreated         = "collection.created"
	EventPublished       = "collection.published"
	EventArchived        = "collection.archived"
	EventDetailsUpdated  = "collection.details_updated"
	EventProductsUpdated = "collection.products_updated"
)

// EventNames lists every event the aggregate can emit.
func EventNames() []string {
	return []string{EventCreated, EventPublished, EventArchived, EventDetailsUpdated, EventProductsUpdated}
}

// State is the serialisable collection state.
type State struct {
	domain.Meta
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Handle      string   `json:"handle"`
	ProductIDs  []string `json:"productIds,omitempty"`
}

// Collection is the in-memory write model. ProductIDs is an ordered
// membership list.
type Collection struct {
	domain.Root
	Title       string
	Description string
	Handle      string
	ProductIDs  []string
}

// CreateParams holds the initial state for a new collection.
type CreateParams struct {
	ID            string
	CorrelationID string
	UserID        string
	Title         string
	Description   string
	Handle        string
}

// New constructs a collection at version 0 in draft status.
func New(p CreateParams) (*Collection, error) {
	if p.Title == "" {
		return nil, domain.RuleViolation("collection requires a title")
	}
	c := &Collection{
		Root:        domain.NewRoot(p.ID, p.CorrelationID),
		Title:       p.Title,
		Description: p.Description,
		Handle:      p.Handle,
	}
	next, err := c.state()
	if err != nil {
		return nil, err
	}
	c.Emit(EventCreated, p.UserID, nil, next)
	return c, nil
}

// Load rehydrates a collection from its snapshot.
func Load(snap *domain.Snapshot) (*Collection, error) {
	var s State
	if err := json.Unmarshal(snap.Payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode collection snapshot: %w", err)
	}
	return &Collection{
		Root:        domain.RootFromMeta(s.Meta),
		Title:       s.Title,
		Description: s.Description,
		Handle:      s.Handle,
		ProductIDs:  s.ProductIDs,
	}, nil
}

func (c *Collection) Kind() string { return AggregateKind }

// ToSnapshot serializes the full state including version.
func (c *Collection) ToSnapshot() (*domain.Snapshot, error) {
	payload, err := c.state()
	if err != nil {
		return nil, err
	}
	return c.Root.Snapshot(payload), nil
}

// CurrentState returns the serialisable state document.
func (c *Collection) CurrentState() State {
	return State{
		Meta:        c.Root.Meta,
		Title:       c.Title,
		Description: c.Description,
		Handle:      c.Handle,
		ProductIDs:  c.ProductIDs,
	}
}

func (c *Collection) state() (json.RawMessage, error) {
	return json.Marshal(c.CurrentState())
}

// Publish transitions draft -> active.
func (c *Collection) Publish(userID string) error {
	if c.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot publish an archived collection")
	}
	if c.Status() == domain.StatusActive {
		return domain.RuleViolation("collection is already published")
	}
	return c.Mutate(EventPublished, userID, c.state, func() error {
		c.MarkPublished()
		return nil
	})
}

// Archive transitions to the terminal archived status.
func (c *Collection) Archive(userID string) error {
	if !c.Status().CanTransitionTo(domain.StatusArchived) {
		return domain.RuleViolation("collection is already archived")
	}
	return c.Mutate(EventArchived, userID, c.state, func() error {
		c.Meta.Status = domain.StatusArchived
		return nil
	})
}

// UpdateDetails replaces title, description and handle.
func (c *Collection) UpdateDetails(userID, title, description, handle string) error {
	if c.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot update an archived collection")
	}
	if title == "" {
		return domain.RuleViolation("collection requires a title")
	}
	return c.Mutate(EventDetailsUpdated, userID, c.state, func() error {
		c.Title = title
		c.Description = description
		c.Handle = handle
		return nil
	})
}

// SetProducts replaces the ordered membership list. Duplicate ids are
// rejected.
func (c *Collection) SetProducts(userID string, productIDs []string) error {
	if c.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot update an archived collection")
	}
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if id == "" {
			return domain.RuleViolation("product id cannot be empty")
		}
		if _, dup := seen[id]; dup {
			return domain.RuleViolation("duplicate product id %q", id)
		}
		seen[id] = struct{}{}
	}
	return c.Mutate(EventProductsUpdated, userID, c.state, func() error {
		c.ProductIDs = productIDs
		return nil
	})
}
