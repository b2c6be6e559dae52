package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/domain/collection"
	"github.com/plaenen/commercecore/pkg/domain/product"
	"github.com/plaenen/commercecore/pkg/domain/schedule"
	"github.com/plaenen/commercecore/pkg/domain/skuregistry"
	"github.com/plaenen/commercecore/pkg/domain/variant"
	"github.com/plaenen/commercecore/pkg/store"
	"github.com/plaenen/commercecore/pkg/uow"
)

// Default returns a router covering every event the write model emits. The
// read-model projectors rebuild the whole row from the event's newState, so
// they are trivially idempotent per version.
func Default() *Router {
	r := NewRouter()
	for _, name := range variant.EventNames() {
		r.Register(name, projectVariant)
	}
	for _, name := range product.EventNames() {
		r.Register(name, projectProduct)
	}
	for _, name := range collection.EventNames() {
		r.Register(name, projectCollection)
	}
	for _, name := range schedule.EventNames() {
		r.Register(name, projectSchedule)
	}
	// The SKU registry has no read model; queries answer from variants.
	for _, name := range skuregistry.EventNames() {
		r.Register(name, projectNothing)
	}
	return r
}

func projectNothing(ctx context.Context, repos *uow.Repositories, ev *domain.Event) error {
	return nil
}

// encodeJSON marshals v, substituting empty for a nil value so the read
// models never store the literal "null".
func encodeJSON(v any, empty string) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(out) == "null" {
		return []byte(empty), nil
	}
	return out, nil
}

func projectVariant(ctx context.Context, repos *uow.Repositories, ev *domain.Event) error {
	var s variant.State
	if err := json.Unmarshal(ev.Payload.NewState, &s); err != nil {
		return fmt.Errorf("failed to decode variant state: %w", err)
	}
	options, err := encodeJSON(s.Options, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode variant options: %w", err)
	}
	images, err := json.Marshal(s.Images)
	if err != nil {
		return fmt.Errorf("failed to encode variant images: %w", err)
	}
	repos.Variants.Save(&store.VariantRow{
		AggregateID:   s.ID,
		CorrelationID: s.CorrelationID,
		Version:       s.Version,
		ProductID:     s.ProductID,
		SKU:           s.SKU,
		Price:         s.Price,
		Inventory:     s.Inventory,
		Status:        string(s.Status),
		OptionsJSON:   options,
		ImagesJSON:    images,
		HasAsset:      s.Asset != nil,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		PublishedAt:   s.PublishedAt,
	})
	return nil
}

func projectProduct(ctx context.Context, repos *uow.Repositories, ev *domain.Event) error {
	var s product.State
	if err := json.Unmarshal(ev.Payload.NewState, &s); err != nil {
		return fmt.Errorf("failed to decode product state: %w", err)
	}
	tags, err := encodeJSON(s.Tags, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode product tags: %w", err)
	}
	images, err := json.Marshal(s.Images)
	if err != nil {
		return fmt.Errorf("failed to encode product images: %w", err)
	}
	repos.Products.Save(&store.ProductRow{
		AggregateID:   s.ID,
		CorrelationID: s.CorrelationID,
		Version:       s.Version,
		Title:         s.Title,
		Description:   s.Description,
		Handle:        s.Handle,
		TagsJSON:      tags,
		ImagesJSON:    images,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		PublishedAt:   s.PublishedAt,
	})
	return nil
}

func projectCollection(ctx context.Context, repos *uow.Repositories, ev *domain.Event) error {
	var s collection.State
	if err := json.Unmarshal(ev.Payload.NewState, &s); err != nil {
		return fmt.Errorf("failed to decode collection state: %w", err)
	}
	productIDs, err := encodeJSON(s.ProductIDs, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode collection members: %w", err)
	}
	repos.Collections.Save(&store.CollectionRow{
		AggregateID:    s.ID,
		CorrelationID:  s.CorrelationID,
		Version:        s.Version,
		Title:          s.Title,
		Description:    s.Description,
		Handle:         s.Handle,
		ProductIDsJSON: productIDs,
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		PublishedAt:    s.PublishedAt,
	})
	return nil
}

func projectSchedule(ctx context.Context, repos *uow.Repositories, ev *domain.Event) error {
	var s schedule.State
	if err := json.Unmarshal(ev.Payload.NewState, &s); err != nil {
		return fmt.Errorf("failed to decode schedule state: %w", err)
	}
	entries, err := encodeJSON(s.Entries, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode schedule entries: %w", err)
	}
	repos.Schedules.Save(&store.ScheduleRow{
		AggregateID:   s.ID,
		CorrelationID: s.CorrelationID,
		Version:       s.Version,
		TargetID:      s.TargetID,
		TargetKind:    s.TargetKind,
		EntriesJSON:   entries,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	})
	return nil
}
