package variant_test

import (
	"testing"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/domain/variant"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newVariant(t *testing.T, sku string) *variant.Variant {
	t.Helper()
	v, err := variant.New(variant.CreateParams{
		ID:            "V1",
		CorrelationID: "corr-1",
		UserID:        "u1",
		ProductID:     "P1",
		SKU:           sku,
		Price:         decimal.NewFromInt(10),
		Inventory:     5,
		Options:       map[string]string{"Size": "M"},
	})
	require.NoError(t, err)
	return v
}

func TestCreateThenPublish(t *testing.T) {
	v := newVariant(t, "SKU-1")

	require.Equal(t, int64(0), v.Version())
	require.Equal(t, domain.StatusDraft, v.Status())
	require.Len(t, v.UncommittedEvents(), 1)
	require.Equal(t, variant.EventCreated, v.UncommittedEvents()[0].EventName)
	require.Nil(t, v.UncommittedEvents()[0].Payload.PriorState)

	require.NoError(t, v.Publish("u1"))
	require.Equal(t, int64(1), v.Version())
	require.Equal(t, domain.StatusActive, v.Status())
	require.NotNil(t, v.Meta.PublishedAt)
	require.Len(t, v.UncommittedEvents(), 2)
	require.Equal(t, int64(1), v.UncommittedEvents()[1].Version)
}

func TestPublishWithoutSKU(t *testing.T) {
	v := newVariant(t, "")
	err := v.Publish("u1")
	require.ErrorIs(t, err, domain.ErrDomainRule)
	require.Contains(t, err.Error(), "Cannot publish variant without a SKU")
	require.Len(t, v.UncommittedEvents(), 1, "failed publish must not emit")
	require.Equal(t, int64(0), v.Version())
}

func TestPublishedAtSetOnce(t *testing.T) {
	v := newVariant(t, "SKU-1")
	require.NoError(t, v.Publish("u1"))
	first := *v.Meta.PublishedAt

	require.NoError(t, v.Archive("u1"))
	require.Equal(t, first, *v.Meta.PublishedAt, "publishedAt is never cleared")
}

func TestArchivedIsTerminal(t *testing.T) {
	v := newVariant(t, "SKU-1")
	require.NoError(t, v.Archive("u1"))

	require.ErrorIs(t, v.Publish("u1"), domain.ErrDomainRule)
	require.ErrorIs(t, v.UpdatePrice("u1", decimal.NewFromInt(1)), domain.ErrDomainRule)
	require.ErrorIs(t, v.Archive("u1"), domain.ErrDomainRule)
}

func TestReorderImages(t *testing.T) {
	v := newVariant(t, "SKU-1")
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, v.AddImage("u1", domain.Image{ImageID: id, UploadedAt: domain.Now()}))
	}

	before := len(v.UncommittedEvents())
	require.NoError(t, v.ReorderImages("u1", []string{"C", "A", "B"}))
	require.Equal(t, []string{"C", "A", "B"}, v.Images.IDs())

	events := v.UncommittedEvents()
	require.Len(t, events, before+1)
	require.Equal(t, variant.EventImagesUpdated, events[len(events)-1].EventName)

	err := v.ReorderImages("u1", []string{"C", "A"})
	require.ErrorIs(t, err, domain.ErrDomainRule)
	require.Len(t, v.UncommittedEvents(), before+1)
}

func TestDigitalAssetLifecycle(t *testing.T) {
	v := newVariant(t, "SKU-1")
	asset := variant.DigitalAsset{
		AssetID:     "A1",
		Key:         "assets/V1/A1",
		Filename:    "track.flac",
		ContentType: "audio/flac",
		SizeBytes:   1024,
	}

	require.NoError(t, v.AttachDigitalAsset("u1", asset))
	require.ErrorIs(t, v.AttachDigitalAsset("u1", asset), domain.ErrDomainRule, "double attach")

	require.NoError(t, v.DetachDigitalAsset("u1"))
	require.Nil(t, v.Asset)
	require.ErrorIs(t, v.DetachDigitalAsset("u1"), domain.ErrDomainRule, "double detach")
}

func TestSnapshotRoundTrip(t *testing.T) {
	v := newVariant(t, "SKU-1")
	require.NoError(t, v.Publish("u1"))
	require.NoError(t, v.AddImage("u1", domain.Image{ImageID: "A"}))

	snap, err := v.ToSnapshot()
	require.NoError(t, err)
	require.Equal(t, v.Version(), snap.Version)

	loaded, err := variant.Load(snap)
	require.NoError(t, err)
	require.Empty(t, loaded.UncommittedEvents())
	require.Equal(t, v.Version(), loaded.Version())
	require.Equal(t, v.SKU, loaded.SKU)
	require.Equal(t, domain.StatusActive, loaded.Status())
	require.True(t, v.Price.Equal(loaded.Price))
	require.Equal(t, []string{"A"}, loaded.Images.IDs())
}

func TestInventoryFloor(t *testing.T) {
	v := newVariant(t, "SKU-1")
	require.NoError(t, v.AdjustInventory("u1", -5))
	require.ErrorIs(t, v.AdjustInventory("u1", -1), domain.ErrDomainRule)
	require.Equal(t, int64(0), v.Inventory)
}
