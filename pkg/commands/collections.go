package commands

import (
	"context"
	"log/slog"

	"github.com/plaenen/commercecore/pkg/domain/collection"
	"github.com/plaenen/commercecore/pkg/idgen"
	"github.com/plaenen/commercecore/pkg/projection"
	"github.com/plaenen/commercecore/pkg/uow"
)

// CollectionService handles collection commands.
type CollectionService struct {
	*core
}

func NewCollectionService(m *uow.Manager, router *projection.Router, logger *slog.Logger) *CollectionService {
	return &CollectionService{core: newCore(m, router, logger)}
}

type CreateCollection struct {
	Envelope
	CollectionID string
	Title        string `valid:"required"`
	Description  string
	Handle       string
}

type PublishCollection struct {
	Envelope
	CollectionID    string `valid:"required"`
	ExpectedVersion int64
}

type ArchiveCollection struct {
	Envelope
	CollectionID    string `valid:"required"`
	ExpectedVersion int64
}

type UpdateCollectionDetails struct {
	Envelope
	CollectionID    string `valid:"required"`
	ExpectedVersion int64
	Title           string `valid:"required"`
	Description     string
	Handle          string
}

type SetCollectionProducts struct {
	Envelope
	CollectionID    string `valid:"required"`
	ExpectedVersion int64
	ProductIDs      []string
}

func (s *CollectionService) Create(ctx context.Context, cmd CreateCollection) (string, error) {
	if err := validate(&cmd); err != nil {
		return "", err
	}
	id := cmd.CollectionID
	if id == "" {
		id = idgen.NewAggregateID("col")
	}

	err := s.handle(ctx, "collection.create", func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			c, err := collection.New(collection.CreateParams{
				ID:            id,
				CorrelationID: cmd.CorrelationID,
				UserID:        cmd.UserID,
				Title:         cmd.Title,
				Description:   cmd.Description,
				Handle:        cmd.Handle,
			})
			if err != nil {
				return err
			}
			return s.persist(ctx, repos, c)
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *CollectionService) Publish(ctx context.Context, cmd PublishCollection) error {
	return s.mutate(ctx, "collection.publish", cmd.CollectionID, cmd.ExpectedVersion, &cmd,
		func(c *collection.Collection) error { return c.Publish(cmd.UserID) })
}

func (s *CollectionService) Archive(ctx context.Context, cmd ArchiveCollection) error {
	return s.mutate(ctx, "collection.archive", cmd.CollectionID, cmd.ExpectedVersion, &cmd,
		func(c *collection.Collection) error { return c.Archive(cmd.UserID) })
}

func (s *CollectionService) UpdateDetails(ctx context.Context, cmd UpdateCollectionDetails) error {
	return s.mutate(ctx, "collection.update_details", cmd.CollectionID, cmd.ExpectedVersion, &cmd,
		func(c *collection.Collection) error {
			return c.UpdateDetails(cmd.UserID, cmd.Title, cmd.Description, cmd.Handle)
		})
}

// SetProducts replaces the ordered membership list.
func (s *CollectionService) SetProducts(ctx context.Context, cmd SetCollectionProducts) error {
	return s.mutate(ctx, "collection.set_products", cmd.CollectionID, cmd.ExpectedVersion, &cmd,
		func(c *collection.Collection) error { return c.SetProducts(cmd.UserID, cmd.ProductIDs) })
}

func (s *CollectionService) mutate(ctx context.Context, name, collectionID string, expectedVersion int64, cmd any,
	fn func(c *collection.Collection) error) error {
	if err := validate(cmd); err != nil {
		return err
	}
	return s.handle(ctx, name, func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			snap, err := getSnapshot(ctx, repos, collectionID)
			if err != nil {
				return err
			}
			if err := checkVersion(expectedVersion, snap.Version); err != nil {
				return err
			}
			c, err := collection.Load(snap)
			if err != nil {
				return err
			}
			if err := fn(c); err != nil {
				return err
			}
			return s.persist(ctx, repos, c)
		})
	})
}
