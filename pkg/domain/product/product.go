// Package product implements the product write model.
package product

import (
	"encoding/json"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
)

const AggregateKind = "product"

// Event names emitted by the product aggregate.
const (
	EventCreated        = "product.created"
	EventPublished      = "product.published"
	EventArchived       = "product.archived"
	EventDetailsUpdated = "product.details_updated"
	EventImagesUpdated  = "product.images_updated"
)

// EventNames lists every event the aggregate can emit.
func EventNames() []string {
	return []string{EventCreated, EventPublished, EventArchived, EventDetailsUpdated, EventImagesUpdated}
}

// State is the serialisable product state.
type State struct {
	domain.Meta
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Handle      string                 `json:"handle"`
	Tags        []string               `json:"tags,omitempty"`
	Images      domain.ImageCollection `json:"images"`
}

// Product is the in-memory write model.
type Product struct {
	domain.Root
	Title       string
	Description string
	Handle      string
	Tags        []string
	Images      domain.ImageCollection
}

// CreateParams holds the initial state for a new product.
type CreateParams struct {
	ID            string
	CorrelationID string
	UserID        string
	Title         string
	Description   string
	Handle        string
	Tags          []string
}

// New constructs a product at version 0 in draft status.
func New(p CreateParams) (*Product, error) {
	if p.Title == "" {
		return nil, domain.RuleViolation("product requires a title")
	}
	prod := &Product{
		Root:        domain.NewRoot(p.ID, p.CorrelationID),
		Title:       p.Title,
		Description: p.Description,
		Handle:      p.Handle,
		Tags:        p.Tags,
	}
	next, err := prod.state()
	if err != nil {
		return nil, err
	}
	prod.Emit(EventCreated, p.UserID, nil, next)
	return prod, nil
}

// Load rehydrates a product from its snapshot.
func Load(snap *domain.Snapshot) (*Product, error) {
	var s State
	if err := json.Unmarshal(snap.Payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode product snapshot: %w", err)
	}
	return &Product{
		Root:        domain.RootFromMeta(s.Meta),
		Title:       s.Title,
		Description: s.Description,
		Handle:      s.Handle,
		Tags:        s.Tags,
		Images:      s.Images,
	}, nil
}

func (p *Product) Kind() string { return AggregateKind }

// ToSnapshot serializes the full state including version.
func (p *Product) ToSnapshot() (*domain.Snapshot, error) {
	payload, err := p.state()
	if err != nil {
		return nil, err
	}
	return p.Root.Snapshot(payload), nil
}

// CurrentState returns the serialisable state document.
func (p *Product) CurrentState() State {
	return State{
		Meta:        p.Root.Meta,
		Title:       p.Title,
		Description: p.Description,
		Handle:      p.Handle,
		Tags:        p.Tags,
		Images:      p.Images,
	}
}

func (p *Product) state() (json.RawMessage, error) {
	return json.Marshal(p.CurrentState())
}

// Publish transitions draft -> active. A handle is required to publish.
func (p *Product) Publish(userID string) error {
	if p.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot publish an archived product")
	}
	if p.Status() == domain.StatusActive {
		return domain.RuleViolation("product is already published")
	}
	if p.Handle == "" {
		return domain.RuleViolation("cannot publish a product without a handle")
	}
	return p.Mutate(EventPublished, userID, p.state, func() error {
		p.MarkPublished()
		return nil
	})
}

// Archive transitions to the terminal archived status.
func (p *Product) Archive(userID string) error {
	if !p.Status().CanTransitionTo(domain.StatusArchived) {
		return domain.RuleViolation("product is already archived")
	}
	return p.Mutate(EventArchived, userID, p.state, func() error {
		p.Meta.Status = domain.StatusArchived
		return nil
	})
}

// UpdateDetails replaces title, description, handle and tags.
func (p *Product) UpdateDetails(userID, title, description, handle string, tags []string) error {
	if p.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot update an archived product")
	}
	if title == "" {
		return domain.RuleViolation("product requires a title")
	}
	return p.Mutate(EventDetailsUpdated, userID, p.state, func() error {
		p.Title = title
		p.Description = description
		p.Handle = handle
		p.Tags = tags
		return nil
	})
}

// UpdateImages replaces the image collection with the result of op.
func (p *Product) UpdateImages(userID string, op func(domain.ImageCollection) (domain.ImageCollection, error)) error {
	if p.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot update an archived product")
	}
	images, err := op(p.Images)
	if err != nil {
		return err
	}
	return p.Mutate(EventImagesUpdated, userID, p.state, func() error {
		p.Images = images
		return nil
	})
}
