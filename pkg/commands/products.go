package commands

import (
	"context"
	"log/slog"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/domain/product"
	"github.com/plaenen/commercecore/pkg/idgen"
	"github.com/plaenen/commercecore/pkg/projection"
	"github.com/plaenen/commercecore/pkg/uow"
)

// ProductService handles product commands.
type ProductService struct {
	*core
}

func NewProductService(m *uow.Manager, router *projection.Router, logger *slog.Logger) *ProductService {
	return &ProductService{core: newCore(m, router, logger)}
}

type CreateProduct struct {
	Envelope
	ProductID   string
	Title       string `valid:"required"`
	Description string
	Handle      string
	Tags        []string
}

type PublishProduct struct {
	Envelope
	ProductID       string `valid:"required"`
	ExpectedVersion int64
}

type ArchiveProduct struct {
	Envelope
	ProductID       string `valid:"required"`
	ExpectedVersion int64
}

type UpdateProductDetails struct {
	Envelope
	ProductID       string `valid:"required"`
	ExpectedVersion int64
	Title           string `valid:"required"`
	Description     string
	Handle          string
	Tags            []string
}

type AddProductImage struct {
	Envelope
	ProductID       string `valid:"required"`
	ExpectedVersion int64
	Image           domain.Image
}

type RemoveProductImage struct {
	Envelope
	ProductID       string `valid:"required"`
	ExpectedVersion int64
	ImageID         string `valid:"required"`
}

type ReorderProductImages struct {
	Envelope
	ProductID       string `valid:"required"`
	ExpectedVersion int64
	OrderedIDs      []string
}

func (s *ProductService) Create(ctx context.Context, cmd CreateProduct) (string, error) {
	if err := validate(&cmd); err != nil {
		return "", err
	}
	id := cmd.ProductID
	if id == "" {
		id = idgen.NewAggregateID("prod")
	}

	err := s.handle(ctx, "product.create", func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			p, err := product.New(product.CreateParams{
				ID:            id,
				CorrelationID: cmd.CorrelationID,
				UserID:        cmd.UserID,
				Title:         cmd.Title,
				Description:   cmd.Description,
				Handle:        cmd.Handle,
				Tags:          cmd.Tags,
			})
			if err != nil {
				return err
			}
			return s.persist(ctx, repos, p)
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *ProductService) Publish(ctx context.Context, cmd PublishProduct) error {
	return s.mutate(ctx, "product.publish", cmd.ProductID, cmd.ExpectedVersion, &cmd,
		func(p *product.Product) error { return p.Publish(cmd.UserID) })
}

func (s *ProductService) Archive(ctx context.Context, cmd ArchiveProduct) error {
	return s.mutate(ctx, "product.archive", cmd.ProductID, cmd.ExpectedVersion, &cmd,
		func(p *product.Product) error { return p.Archive(cmd.UserID) })
}

func (s *ProductService) UpdateDetails(ctx context.Context, cmd UpdateProductDetails) error {
	return s.mutate(ctx, "product.update_details", cmd.ProductID, cmd.ExpectedVersion, &cmd,
		func(p *product.Product) error {
			return p.UpdateDetails(cmd.UserID, cmd.Title, cmd.Description, cmd.Handle, cmd.Tags)
		})
}

func (s *ProductService) AddImage(ctx context.Context, cmd AddProductImage) error {
	return s.mutate(ctx, "product.add_image", cmd.ProductID, cmd.ExpectedVersion, &cmd,
		func(p *product.Product) error {
			return p.UpdateImages(cmd.UserID, func(c domain.ImageCollection) (domain.ImageCollection, error) {
				return c.Add(cmd.Image)
			})
		})
}

func (s *ProductService) RemoveImage(ctx context.Context, cmd RemoveProductImage) error {
	return s.mutate(ctx, "product.remove_image", cmd.ProductID, cmd.ExpectedVersion, &cmd,
		func(p *product.Product) error {
			return p.UpdateImages(cmd.UserID, func(c domain.ImageCollection) (domain.ImageCollection, error) {
				return c.Remove(cmd.ImageID)
			})
		})
}

func (s *ProductService) ReorderImages(ctx context.Context, cmd ReorderProductImages) error {
	return s.mutate(ctx, "product.reorder_images", cmd.ProductID, cmd.ExpectedVersion, &cmd,
		func(p *product.Product) error {
			return p.UpdateImages(cmd.UserID, func(c domain.ImageCollection) (domain.ImageCollection, error) {
				return c.Reorder(cmd.OrderedIDs)
			})
		})
}

func (s *ProductService) mutate(ctx context.Context, name, productID string, expectedVersion int64, cmd any,
	fn func(p *product.Product) error) error {
	if err := validate(cmd); err != nil {
		return err
	}
	return s.handle(ctx, name, func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			snap, err := getSnapshot(ctx, repos, productID)
			if err != nil {
				return err
			}
			if err := checkVersion(expectedVersion, snap.Version); err != nil {
				return err
			}
			p, err := product.Load(snap)
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
			return s.persist(ctx, repos, p)
		})
	})
}
