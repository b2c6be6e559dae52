package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/plaenen/commercecore/pkg/assets"
	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/domain/skuregistry"
	"github.com/plaenen/commercecore/pkg/domain/variant"
	"github.com/plaenen/commercecore/pkg/idgen"
	"github.com/plaenen/commercecore/pkg/projection"
	"github.com/plaenen/commercecore/pkg/uow"
)

// VariantService handles variant commands, including cross-aggregate SKU
// reservation and digital-asset attachment.
type VariantService struct {
	*core
	assets *assets.Store
}

// NewVariantService creates the variant command service. The asset store is
// optional; without one the asset commands fail with a domain-rule error.
func NewVariantService(m *uow.Manager, router *projection.Router, logger *slog.Logger, store *assets.Store) *VariantService {
	return &VariantService{core: newCore(m, router, logger), assets: store}
}

type CreateVariant struct {
	Envelope
	VariantID string
	ProductID string `valid:"required"`
	SKU       string
	Price     decimal.Decimal
	Inventory int64
	Options   map[string]string
}

type PublishVariant struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
}

type ArchiveVariant struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
}

type UpdateVariantDetails struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	SKU             string
	Options         map[string]string
}

type UpdateVariantPrice struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	Price           decimal.Decimal
}

type AdjustVariantInventory struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	Delta           int64
}

type AddVariantImage struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	Image           domain.Image
}

type RemoveVariantImage struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	ImageID         string `valid:"required"`
}

type ReorderVariantImages struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	OrderedIDs      []string
}

type UpdateVariantImageAltText struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	ImageID         string `valid:"required"`
	AltText         string
}

type AttachVariantAsset struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
	Filename        string `valid:"required"`
	ContentType     string `valid:"required"`
	Content         []byte
}

type DetachVariantAsset struct {
	Envelope
	VariantID       string `valid:"required"`
	ExpectedVersion int64
}

// Create builds a new variant and, when a SKU is given, reserves it in the
// registry within the same transaction. A reservation conflict fails the
// whole command and nothing is persisted.
func (s *VariantService) Create(ctx context.Context, cmd CreateVariant) (string, error) {
	if err := validate(&cmd); err != nil {
		return "", err
	}
	id := cmd.VariantID
	if id == "" {
		id = idgen.NewAggregateID("var")
	}

	err := s.handle(ctx, "variant.create", func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			v, err := variant.New(variant.CreateParams{
				ID:            id,
				CorrelationID: cmd.CorrelationID,
				UserID:        cmd.UserID,
				ProductID:     cmd.ProductID,
				SKU:           cmd.SKU,
				Price:         cmd.Price,
				Inventory:     cmd.Inventory,
				Options:       cmd.Options,
			})
			if err != nil {
				return err
			}
			if cmd.SKU != "" {
				if err := s.reserveSKU(ctx, repos, cmd.Envelope, cmd.SKU, id); err != nil {
					return err
				}
			}
			return s.persist(ctx, repos, v)
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *VariantService) Publish(ctx context.Context, cmd PublishVariant) error {
	return s.mutate(ctx, "variant.publish", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			return v.Publish(cmd.UserID)
		})
}

// Archive retires the variant and releases its SKU reservation.
func (s *VariantService) Archive(ctx context.Context, cmd ArchiveVariant) error {
	return s.mutate(ctx, "variant.archive", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			sku := v.SKU
			if err := v.Archive(cmd.UserID); err != nil {
				return err
			}
			if sku != "" {
				return s.releaseSKU(ctx, repos, cmd.Envelope, sku, v.ID())
			}
			return nil
		})
}

// UpdateDetails changes the SKU and options. A SKU change atomically
// releases the old reservation and takes the new one.
func (s *VariantService) UpdateDetails(ctx context.Context, cmd UpdateVariantDetails) error {
	return s.mutate(ctx, "variant.update_details", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			oldSKU := v.SKU
			if err := v.UpdateDetails(cmd.UserID, cmd.SKU, cmd.Options); err != nil {
				return err
			}
			if oldSKU == cmd.SKU {
				return nil
			}
			return s.moveSKU(ctx, repos, cmd.Envelope, oldSKU, cmd.SKU, v.ID())
		})
}

func (s *VariantService) UpdatePrice(ctx context.Context, cmd UpdateVariantPrice) error {
	return s.mutate(ctx, "variant.update_price", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			return v.UpdatePrice(cmd.UserID, cmd.Price)
		})
}

func (s *VariantService) AdjustInventory(ctx context.Context, cmd AdjustVariantInventory) error {
	return s.mutate(ctx, "variant.adjust_inventory", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			return v.AdjustInventory(cmd.UserID, cmd.Delta)
		})
}

func (s *VariantService) AddImage(ctx context.Context, cmd AddVariantImage) error {
	return s.mutate(ctx, "variant.add_image", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			return v.AddImage(cmd.UserID, cmd.Image)
		})
}

func (s *VariantService) RemoveImage(ctx context.Context, cmd RemoveVariantImage) error {
	return s.mutate(ctx, "variant.remove_image", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			return v.RemoveImage(cmd.UserID, cmd.ImageID)
		})
}

func (s *VariantService) ReorderImages(ctx context.Context, cmd ReorderVariantImages) error {
	return s.mutate(ctx, "variant.reorder_images", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			return v.ReorderImages(cmd.UserID, cmd.OrderedIDs)
		})
}

func (s *VariantService) UpdateImageAltText(ctx context.Context, cmd UpdateVariantImageAltText) error {
	return s.mutate(ctx, "variant.update_image_alt_text", cmd.VariantID, cmd.ExpectedVersion, &cmd,
		func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error {
			return v.UpdateImageAltText(cmd.UserID, cmd.ImageID, cmd.AltText)
		})
}

// AttachAsset uploads the content first, then records the attachment. When
// the transaction fails the uploaded blob is removed again.
func (s *VariantService) AttachAsset(ctx context.Context, cmd AttachVariantAsset) error {
	if s.assets == nil {
		return domain.RuleViolation("asset storage is not configured")
	}
	if err := validate(&cmd); err != nil {
		return err
	}
	if len(cmd.Content) == 0 {
		return domain.Invalid("asset content cannot be empty")
	}

	asset := variant.DigitalAsset{
		AssetID:     idgen.NewAggregateID("ast"),
		Filename:    cmd.Filename,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Content)),
	}
	asset.Key = fmt.Sprintf("variants/%s/%s/%s", cmd.VariantID, asset.AssetID, cmd.Filename)

	return s.handle(ctx, "variant.attach_asset", func(ctx context.Context) error {
		if err := s.assets.Upload(ctx, asset.Key, cmd.ContentType, cmd.Content); err != nil {
			return fmt.Errorf("%v: %w", err, domain.ErrStorage)
		}

		err := s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			v, err := s.load(ctx, repos, cmd.VariantID, cmd.ExpectedVersion)
			if err != nil {
				return err
			}
			if err := v.AttachDigitalAsset(cmd.UserID, asset); err != nil {
				return err
			}
			return s.persist(ctx, repos, v)
		})
		if err != nil {
			if cleanupErr := s.assets.Delete(ctx, asset.Key); cleanupErr != nil {
				s.logger.Warn("failed to remove orphaned asset", "key", asset.Key, "error", cleanupErr)
			}
			return err
		}
		return nil
	})
}

// DetachAsset records the detachment and then deletes the blob. A failed
// blob delete leaves an orphan, never a dangling reference.
func (s *VariantService) DetachAsset(ctx context.Context, cmd DetachVariantAsset) error {
	if s.assets == nil {
		return domain.RuleViolation("asset storage is not configured")
	}
	if err := validate(&cmd); err != nil {
		return err
	}

	return s.handle(ctx, "variant.detach_asset", func(ctx context.Context) error {
		var key string
		err := s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			v, err := s.load(ctx, repos, cmd.VariantID, cmd.ExpectedVersion)
			if err != nil {
				return err
			}
			if v.Asset != nil {
				key = v.Asset.Key
			}
			if err := v.DetachDigitalAsset(cmd.UserID); err != nil {
				return err
			}
			return s.persist(ctx, repos, v)
		})
		if err != nil {
			return err
		}
		if key != "" {
			if err := s.assets.Delete(ctx, key); err != nil {
				s.logger.Warn("failed to delete detached asset", "key", key, "error", err)
			}
		}
		return nil
	})
}

// mutate is the shared load-check-act-persist path for single-variant
// commands.
func (s *VariantService) mutate(ctx context.Context, name, variantID string, expectedVersion int64, cmd any,
	fn func(ctx context.Context, repos *uow.Repositories, v *variant.Variant) error) error {
	if err := validate(cmd); err != nil {
		return err
	}
	return s.handle(ctx, name, func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			v, err := s.load(ctx, repos, variantID, expectedVersion)
			if err != nil {
				return err
			}
			if err := fn(ctx, repos, v); err != nil {
				return err
			}
			return s.persist(ctx, repos, v)
		})
	})
}

func (s *VariantService) load(ctx context.Context, repos *uow.Repositories, variantID string, expectedVersion int64) (*variant.Variant, error) {
	snap, err := getSnapshot(ctx, repos, variantID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(expectedVersion, snap.Version); err != nil {
		return nil, err
	}
	return variant.Load(snap)
}

func (s *VariantService) reserveSKU(ctx context.Context, repos *uow.Repositories, env Envelope, sku, variantID string) error {
	return s.moveSKU(ctx, repos, env, "", sku, variantID)
}

func (s *VariantService) releaseSKU(ctx context.Context, repos *uow.Repositories, env Envelope, sku, variantID string) error {
	return s.moveSKU(ctx, repos, env, sku, "", variantID)
}

// moveSKU releases oldSKU and reserves newSKU against one registry load, so
// a swap stages a single consistent run of registry events.
func (s *VariantService) moveSKU(ctx context.Context, repos *uow.Repositories, env Envelope, oldSKU, newSKU, variantID string) error {
	reg, err := s.loadRegistry(ctx, repos, env)
	if err != nil {
		return err
	}
	if oldSKU != "" {
		if err := reg.Release(env.UserID, oldSKU, variantID); err != nil {
			return err
		}
	}
	if newSKU != "" {
		if err := reg.Reserve(env.UserID, newSKU, variantID); err != nil {
			return err
		}
	}
	return s.persist(ctx, repos, reg)
}

// loadRegistry loads the singleton SKU registry, creating it on first use.
func (s *VariantService) loadRegistry(ctx context.Context, repos *uow.Repositories, env Envelope) (*skuregistry.Registry, error) {
	snap, err := repos.Snapshots.Get(ctx, skuregistry.RegistryID)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return skuregistry.New(env.CorrelationID, env.UserID)
	}
	if err != nil {
		return nil, err
	}
	return skuregistry.Load(snap)
}
