package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Read-model rows mirror snapshot fields in denormalised form, keyed by
// aggregate_id. The write path only ever upserts them; all reads happen in
// the query selectors.

// VariantRow is the variants read-model row.
type VariantRow struct {
	AggregateID   string
	CorrelationID string
	Version       int64
	ProductID     string
	SKU           string
	Price         decimal.Decimal
	Inventory     int64
	Status        string
	OptionsJSON   []byte
	ImagesJSON    []byte
	HasAsset      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

// ProductRow is the products read-model row.
type ProductRow struct {
	AggregateID   string
	CorrelationID string
	Version       int64
	Title         string
	Description   string
	Handle        string
	TagsJSON      []byte
	ImagesJSON    []byte
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

// CollectionRow is the collections read-model row.
type CollectionRow struct {
	AggregateID    string
	CorrelationID  string
	Version        int64
	Title          string
	Description    string
	Handle         string
	ProductIDsJSON []byte
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PublishedAt    *time.Time
}

// ScheduleRow is the schedules read-model row.
type ScheduleRow struct {
	AggregateID   string
	CorrelationID string
	Version       int64
	TargetID      string
	TargetKind    string
	EntriesJSON   []byte
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VariantWriter stages upserts against the variants table.
type VariantWriter interface {
	Save(row *VariantRow)
}

// ProductWriter stages upserts against the products table.
type ProductWriter interface {
	Save(row *ProductRow)
}

// CollectionWriter stages upserts against the collections table.
type CollectionWriter interface {
	Save(row *CollectionRow)
}

// ScheduleWriter stages upserts against the schedules table.
type ScheduleWriter interface {
	Save(row *ScheduleRow)
}
