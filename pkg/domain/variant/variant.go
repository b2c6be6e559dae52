// Package variant implements the product-variant write model, including the
// digital-downloadable extension (an attachable asset reference).
package variant

import (
	"encoding/json"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/shopspring/decimal"
)

// AggregateKind tags events emitted by this aggregate.
const AggregateKind = "variant"

// Event names emitted by the variant aggregate.
const (
	EventCreated           = "variant.created"
	EventPublished         = "variant.published"
	EventArchived          = "variant.archived"
	EventDetailsUpdated    = "variant.details_updated"
	EventPriceUpdated      = "variant.price_updated"
	EventInventoryAdjusted = "variant.inventory_adjusted"
	EventImagesUpdated     = "variant.images_updated"
	EventAssetAttached     = "variant.asset_attached"
	EventAssetDetached     = "variant.asset_detached"
)

// EventNames lists every event the aggregate can emit, for projector
// registration.
func EventNames() []string {
	return []string{
		EventCreated, EventPublished, EventArchived, EventDetailsUpdated,
		EventPriceUpdated, EventInventoryAdjusted, EventImagesUpdated,
		EventAssetAttached, EventAssetDetached,
	}
}

// DigitalAsset references downloadable content stored in the asset bucket.
type DigitalAsset struct {
	AssetID     string `json:"assetId"`
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// State is the full serialisable variant state; it is the document stored in
// snapshots and carried as priorState/newState in event payloads.
type State struct {
	domain.Meta
	ProductID string                 `json:"productId"`
	SKU       string                 `json:"sku"`
	Price     decimal.Decimal        `json:"price"`
	Inventory int64                  `json:"inventory"`
	Options   map[string]string      `json:"options,omitempty"`
	Images    domain.ImageCollection `json:"images"`
	Asset     *DigitalAsset          `json:"asset,omitempty"`
}

// Variant is the in-memory write model.
type Variant struct {
	domain.Root
	ProductID string
	SKU       string
	Price     decimal.Decimal
	Inventory int64
	Options   map[string]string
	Images    domain.ImageCollection
	Asset     *DigitalAsset
}

// CreateParams holds the initial state for a new variant.
type CreateParams struct {
	ID            string
	CorrelationID string
	UserID        string
	ProductID     string
	SKU           string
	Price         decimal.Decimal
	Inventory     int64
	Options       map[string]string
}

// New constructs a variant at version 0 in draft status and emits the
// created event.
func New(p CreateParams) (*Variant, error) {
	if p.ProductID == "" {
		return nil, domain.RuleViolation("variant requires a product id")
	}
	if p.Price.IsNegative() {
		return nil, domain.RuleViolation("price cannot be negative")
	}
	if p.Inventory < 0 {
		return nil, domain.RuleViolation("inventory cannot be negative")
	}
	v := &Variant{
		Root:      domain.NewRoot(p.ID, p.CorrelationID),
		ProductID: p.ProductID,
		SKU:       p.SKU,
		Price:     p.Price,
		Inventory: p.Inventory,
		Options:   p.Options,
	}
	next, err := v.state()
	if err != nil {
		return nil, err
	}
	v.Emit(EventCreated, p.UserID, nil, next)
	return v, nil
}

// Load rehydrates a variant from its snapshot with no uncommitted events.
func Load(snap *domain.Snapshot) (*Variant, error) {
	var s State
	if err := json.Unmarshal(snap.Payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode variant snapshot: %w", err)
	}
	return &Variant{
		Root:      domain.RootFromMeta(s.Meta),
		ProductID: s.ProductID,
		SKU:       s.SKU,
		Price:     s.Price,
		Inventory: s.Inventory,
		Options:   s.Options,
		Images:    s.Images,
		Asset:     s.Asset,
	}, nil
}

func (v *Variant) Kind() string { return AggregateKind }

// ToSnapshot serializes the full state including version.
func (v *Variant) ToSnapshot() (*domain.Snapshot, error) {
	payload, err := v.state()
	if err != nil {
		return nil, err
	}
	return v.Root.Snapshot(payload), nil
}

// CurrentState returns the serialisable state document.
func (v *Variant) CurrentState() State {
	return State{
		Meta:      v.Root.Meta,
		ProductID: v.ProductID,
		SKU:       v.SKU,
		Price:     v.Price,
		Inventory: v.Inventory,
		Options:   v.Options,
		Images:    v.Images,
		Asset:     v.Asset,
	}
}

func (v *Variant) state() (json.RawMessage, error) {
	return json.Marshal(v.CurrentState())
}

// Publish transitions draft -> active. A SKU is required to publish.
func (v *Variant) Publish(userID string) error {
	if v.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot publish an archived variant")
	}
	if v.Status() == domain.StatusActive {
		return domain.RuleViolation("variant is already published")
	}
	if v.SKU == "" {
		return domain.RuleViolation("Cannot publish variant without a SKU")
	}
	return v.Mutate(EventPublished, userID, v.state, func() error {
		v.MarkPublished()
		return nil
	})
}

// Archive transitions to the terminal archived status.
func (v *Variant) Archive(userID string) error {
	if !v.Status().CanTransitionTo(domain.StatusArchived) {
		return domain.RuleViolation("variant is already archived")
	}
	return v.Mutate(EventArchived, userID, v.state, func() error {
		v.Meta.Status = domain.StatusArchived
		return nil
	})
}

// UpdateDetails replaces the SKU and option set.
func (v *Variant) UpdateDetails(userID, sku string, options map[string]string) error {
	if err := v.mutable(); err != nil {
		return err
	}
	if v.Status() == domain.StatusActive && sku == "" {
		return domain.RuleViolation("cannot remove the SKU of a published variant")
	}
	return v.Mutate(EventDetailsUpdated, userID, v.state, func() error {
		v.SKU = sku
		v.Options = options
		return nil
	})
}

// UpdatePrice replaces the price.
func (v *Variant) UpdatePrice(userID string, price decimal.Decimal) error {
	if err := v.mutable(); err != nil {
		return err
	}
	if price.IsNegative() {
		return domain.RuleViolation("price cannot be negative")
	}
	return v.Mutate(EventPriceUpdated, userID, v.state, func() error {
		v.Price = price
		return nil
	})
}

// AdjustInventory applies a signed inventory delta.
func (v *Variant) AdjustInventory(userID string, delta int64) error {
	if err := v.mutable(); err != nil {
		return err
	}
	if v.Inventory+delta < 0 {
		return domain.RuleViolation("inventory cannot go below zero")
	}
	return v.Mutate(EventInventoryAdjusted, userID, v.state, func() error {
		v.Inventory += delta
		return nil
	})
}

// AddImage appends an image to the collection.
func (v *Variant) AddImage(userID string, img domain.Image) error {
	return v.updateImages(userID, func() (domain.ImageCollection, error) {
		return v.Images.Add(img)
	})
}

// RemoveImage drops an image from the collection.
func (v *Variant) RemoveImage(userID, imageID string) error {
	return v.updateImages(userID, func() (domain.ImageCollection, error) {
		return v.Images.Remove(imageID)
	})
}

// ReorderImages rearranges the collection; orderedIDs must be a permutation
// of the current image id set.
func (v *Variant) ReorderImages(userID string, orderedIDs []string) error {
	return v.updateImages(userID, func() (domain.ImageCollection, error) {
		return v.Images.Reorder(orderedIDs)
	})
}

// UpdateImageAltText replaces one image's alt text.
func (v *Variant) UpdateImageAltText(userID, imageID, altText string) error {
	return v.updateImages(userID, func() (domain.ImageCollection, error) {
		return v.Images.UpdateAltText(imageID, altText)
	})
}

func (v *Variant) updateImages(userID string, op func() (domain.ImageCollection, error)) error {
	if err := v.mutable(); err != nil {
		return err
	}
	images, err := op()
	if err != nil {
		return err
	}
	return v.Mutate(EventImagesUpdated, userID, v.state, func() error {
		v.Images = images
		return nil
	})
}

// AttachDigitalAsset links downloadable content to the variant.
func (v *Variant) AttachDigitalAsset(userID string, asset DigitalAsset) error {
	if err := v.mutable(); err != nil {
		return err
	}
	if asset.AssetID == "" || asset.Key == "" {
		return domain.RuleViolation("digital asset requires an id and a storage key")
	}
	if v.Asset != nil {
		return domain.RuleViolation("variant already has a digital asset attached")
	}
	return v.Mutate(EventAssetAttached, userID, v.state, func() error {
		a := asset
		v.Asset = &a
		return nil
	})
}

// DetachDigitalAsset removes the asset reference.
func (v *Variant) DetachDigitalAsset(userID string) error {
	if err := v.mutable(); err != nil {
		return err
	}
	if v.Asset == nil {
		return domain.RuleViolation("variant has no digital asset attached")
	}
	return v.Mutate(EventAssetDetached, userID, v.state, func() error {
		v.Asset = nil
		return nil
	})
}

func (v *Variant) mutable() error {
	if v.Status() == domain.StatusArchived {
		return domain.RuleViolation("cannot update an archived variant")
	}
	return nil
}
