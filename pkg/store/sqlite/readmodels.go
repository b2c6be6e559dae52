package sqlite

import (
	"github.com/plaenen/commercecore/pkg/store"
)

// Read-model writers stage upserts keyed on aggregate_id. Version is stored
// but never used for conflict ordering; single-process writes are already
// serialised by the batcher.

// VariantWriter stages upserts against the variants table.
type VariantWriter struct {
	batch *store.Batch
}

func NewVariantWriter(batch *store.Batch) *VariantWriter {
	return &VariantWriter{batch: batch}
}

const upsertVariantSQL = `INSERT INTO variants
	(aggregate_id, correlation_id, version, product_id, sku, price, inventory,
	 status, options_json, images_json, has_asset, created_at, updated_at, published_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (aggregate_id) DO UPDATE SET
		correlation_id = excluded.correlation_id,
		version        = excluded.version,
		product_id     = excluded.product_id,
		sku            = excluded.sku,
		price          = excluded.price,
		inventory      = excluded.inventory,
		status         = excluded.status,
		options_json   = excluded.options_json,
		images_json    = excluded.images_json,
		has_asset      = excluded.has_asset,
		updated_at     = excluded.updated_at,
		published_at   = excluded.published_at`

func (w *VariantWriter) Save(row *store.VariantRow) {
	w.batch.Add(store.StatementUpsert, upsertVariantSQL,
		row.AggregateID, row.CorrelationID, row.Version, row.ProductID, row.SKU,
		row.Price.String(), row.Inventory, row.Status, string(row.OptionsJSON),
		string(row.ImagesJSON), boolToInt(row.HasAsset),
		formatTime(row.CreatedAt), formatTime(row.UpdatedAt), formatTimePtr(row.PublishedAt))
}

// ProductWriter stages upserts against the products table.
type ProductWriter struct {
	batch *store.Batch
}

func NewProductWriter(batch *store.Batch) *ProductWriter {
	return &ProductWriter{batch: batch}
}

const upsertProductSQL = `INSERT INTO products
	(aggregate_id, correlation_id, version, title, description, handle,
	 tags_json, images_json, status, created_at, updated_at, published_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (aggregate_id) DO UPDATE SET
		correlation_id = excluded.correlation_id,
		version        = excluded.version,
		title          = excluded.title,
		description    = excluded.description,
		handle         = excluded.handle,
		tags_json      = excluded.tags_json,
		images_json    = excluded.images_json,
		status         = excluded.status,
		updated_at     = excluded.updated_at,
		published_at   = excluded.published_at`

func (w *ProductWriter) Save(row *store.ProductRow) {
	w.batch.Add(store.StatementUpsert, upsertProductSQL,
		row.AggregateID, row.CorrelationID, row.Version, row.Title, row.Description,
		row.Handle, string(row.TagsJSON), string(row.ImagesJSON), row.Status,
		formatTime(row.CreatedAt), formatTime(row.UpdatedAt), formatTimePtr(row.PublishedAt))
}

// CollectionWriter stages upserts against the collections table.
type CollectionWriter struct {
	batch *store.Batch
}

func NewCollectionWriter(batch *store.Batch) *CollectionWriter {
	return &CollectionWriter{batch: batch}
}

const upsertCollectionSQL = `INSERT INTO collections
	(aggregate_id, correlation_id, version, title, description, handle,
	 product_ids_json, status, created_at, updated_at, published_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (aggregate_id) DO UPDATE SET
		correlation_id   = excluded.correlation_id,
		version          = excluded.version,
		title            = excluded.title,
		description      = excluded.description,
		handle           = excluded.handle,
		product_ids_json = excluded.product_ids_json,
		status           = excluded.status,
		updated_at       = excluded.updated_at,
		published_at     = excluded.published_at`

func (w *CollectionWriter) Save(row *store.CollectionRow) {
	w.batch.Add(store.StatementUpsert, upsertCollectionSQL,
		row.AggregateID, row.CorrelationID, row.Version, row.Title, row.Description,
		row.Handle, string(row.ProductIDsJSON), row.Status,
		formatTime(row.CreatedAt), formatTime(row.UpdatedAt), formatTimePtr(row.PublishedAt))
}

// ScheduleWriter stages upserts against the schedules table.
type ScheduleWriter struct {
	batch *store.Batch
}

func NewScheduleWriter(batch *store.Batch) *ScheduleWriter {
	return &ScheduleWriter{batch: batch}
}

const upsertScheduleSQL = `INSERT INTO schedules
	(aggregate_id, correlation_id, version, target_id, target_kind,
	 entries_json, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (aggregate_id) DO UPDATE SET
		correlation_id = excluded.correlation_id,
		version        = excluded.version,
		target_id      = excluded.target_id,
		target_kind    = excluded.target_kind,
		entries_json   = excluded.entries_json,
		status         = excluded.status,
		updated_at     = excluded.updated_at`

func (w *ScheduleWriter) Save(row *store.ScheduleRow) {
	w.batch.Add(store.StatementUpsert, upsertScheduleSQL,
		row.AggregateID, row.CorrelationID, row.Version, row.TargetID, row.TargetKind,
		string(row.EntriesJSON), row.Status,
		formatTime(row.CreatedAt), formatTime(row.UpdatedAt))
}
