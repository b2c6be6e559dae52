package projection

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/domain/collection"
	"github.com/plaenen/commercecore/pkg/domain/product"
	"github.com/plaenen/commercecore/pkg/domain/schedule"
	"github.com/plaenen/commercecore/pkg/domain/skuregistry"
	"github.com/plaenen/commercecore/pkg/domain/variant"
	"github.com/plaenen/commercecore/pkg/store"
	"github.com/plaenen/commercecore/pkg/uow"
)

type capturingRepos struct {
	variants    []*store.VariantRow
	products    []*store.ProductRow
	collections []*store.CollectionRow
	schedules   []*store.ScheduleRow
}

func (c *capturingRepos) repos() *uow.Repositories {
	return &uow.Repositories{
		Variants:    variantCapture{c},
		Products:    productCapture{c},
		Collections: collectionCapture{c},
		Schedules:   scheduleCapture{c},
	}
}

type variantCapture struct{ c *capturingRepos }

func (w variantCapture) Save(row *store.VariantRow) { w.c.variants = append(w.c.variants, row) }

type productCapture struct{ c *capturingRepos }

func (w productCapture) Save(row *store.ProductRow) { w.c.products = append(w.c.products, row) }

type collectionCapture struct{ c *capturingRepos }

func (w collectionCapture) Save(row *store.CollectionRow) {
	w.c.collections = append(w.c.collections, row)
}

type scheduleCapture struct{ c *capturingRepos }

func (w scheduleCapture) Save(row *store.ScheduleRow) { w.c.schedules = append(w.c.schedules, row) }

func TestDefaultCoversEveryEventName(t *testing.T) {
	r := Default()
	registered := make(map[string]bool)
	for _, name := range r.EventNames() {
		registered[name] = true
	}

	var all []string
	all = append(all, variant.EventNames()...)
	all = append(all, product.EventNames()...)
	all = append(all, collection.EventNames()...)
	all = append(all, schedule.EventNames()...)
	all = append(all, skuregistry.EventNames()...)

	for _, name := range all {
		assert.True(t, registered[name], "missing projector for %s", name)
	}
	assert.Len(t, registered, len(all))
}

func TestApplyPanicsOnUnknownEvent(t *testing.T) {
	r := Default()
	assert.Panics(t, func() {
		r.Apply(context.Background(), &uow.Repositories{}, &domain.Event{EventName: "variant.renamed"})
	})
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRouter()
	r.Register("x", projectNothing)
	assert.Panics(t, func() { r.Register("x", projectNothing) })
}

func eventFor(t *testing.T, name string, state any) *domain.Event {
	t.Helper()
	payload, err := json.Marshal(state)
	require.NoError(t, err)
	return &domain.Event{
		AggregateID:   "agg_1",
		Version:       0,
		EventName:     name,
		OccurredAt:    domain.Now(),
		CorrelationID: "corr_1",
		UserID:        "user_1",
		Payload:       domain.Payload{NewState: payload},
	}
}

func TestProjectVariantBuildsRowFromNewState(t *testing.T) {
	now := domain.Now()
	state := variant.State{
		Meta: domain.Meta{
			ID: "var_1", CorrelationID: "corr_1", Version: 2,
			Status: domain.StatusActive, CreatedAt: now, UpdatedAt: now, PublishedAt: &now,
		},
		ProductID: "prod_1",
		SKU:       "SKU-1",
		Price:     decimal.RequireFromString("12.50"),
		Inventory: 3,
		Asset:     &variant.DigitalAsset{AssetID: "ast_1", Key: "k", Filename: "f.pdf", ContentType: "application/pdf", SizeBytes: 10},
	}

	c := &capturingRepos{}
	err := Default().Apply(context.Background(), c.repos(), eventFor(t, variant.EventPriceUpdated, state))
	require.NoError(t, err)
	require.Len(t, c.variants, 1)

	row := c.variants[0]
	assert.Equal(t, "var_1", row.AggregateID)
	assert.Equal(t, int64(2), row.Version)
	assert.Equal(t, "prod_1", row.ProductID)
	assert.True(t, row.Price.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, "active", row.Status)
	assert.True(t, row.HasAsset)
	assert.JSONEq(t, `{}`, string(row.OptionsJSON))
	require.NotNil(t, row.PublishedAt)
	assert.Equal(t, now, *row.PublishedAt)
}

func TestProjectProductAndCollection(t *testing.T) {
	now := domain.Now()
	c := &capturingRepos{}
	r := Default()

	err := r.Apply(context.Background(), c.repos(), eventFor(t, product.EventCreated, product.State{
		Meta:  domain.Meta{ID: "prod_1", CorrelationID: "corr_1", Status: domain.StatusDraft, CreatedAt: now, UpdatedAt: now},
		Title: "Shirt",
		Tags:  []string{"summer"},
	}))
	require.NoError(t, err)
	require.Len(t, c.products, 1)
	assert.Equal(t, "Shirt", c.products[0].Title)
	assert.JSONEq(t, `["summer"]`, string(c.products[0].TagsJSON))

	err = r.Apply(context.Background(), c.repos(), eventFor(t, collection.EventProductsUpdated, collection.State{
		Meta:       domain.Meta{ID: "col_1", CorrelationID: "corr_1", Status: domain.StatusDraft, CreatedAt: now, UpdatedAt: now},
		Title:      "Summer",
		ProductIDs: []string{"prod_1", "prod_2"},
	}))
	require.NoError(t, err)
	require.Len(t, c.collections, 1)
	assert.JSONEq(t, `["prod_1","prod_2"]`, string(c.collections[0].ProductIDsJSON))
}

func TestProjectScheduleAndRegistry(t *testing.T) {
	now := domain.Now()
	c := &capturingRepos{}
	r := Default()

	err := r.Apply(context.Background(), c.repos(), eventFor(t, schedule.EventEntryAdded, schedule.State{
		Meta:       domain.Meta{ID: "sch_1", CorrelationID: "corr_1", Status: domain.StatusDraft, CreatedAt: now, UpdatedAt: now},
		TargetID:   "prod_1",
		TargetKind: "product",
		Entries: []schedule.Entry{
			{EntryID: "ent_1", Kind: schedule.KindSingle, StartAt: now, State: schedule.EntryPending},
		},
	}))
	require.NoError(t, err)
	require.Len(t, c.schedules, 1)
	assert.Equal(t, "prod_1", c.schedules[0].TargetID)

	// Registry events project nothing but must still dispatch.
	err = r.Apply(context.Background(), c.repos(), eventFor(t, skuregistry.EventReserved, skuregistry.State{
		Meta:         domain.Meta{ID: skuregistry.RegistryID, CorrelationID: "corr_1", Status: domain.StatusDraft, CreatedAt: now, UpdatedAt: now},
		Reservations: map[string]string{"SKU-1": "var_1"},
	}))
	require.NoError(t, err)
	assert.Empty(t, c.variants)
}
