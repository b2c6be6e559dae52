package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/store/sqlite"
)

// Query type names served by the default router.
const (
	TypeGetVariant      = "getVariant"
	TypeListVariants    = "listVariants"
	TypeGetProduct      = "getProduct"
	TypeListProducts    = "listProducts"
	TypeGetCollection   = "getCollection"
	TypeListCollections = "listCollections"
	TypeGetSchedule     = "getSchedule"
	TypeListSchedules   = "listSchedules"
	TypeListDeadLetters = "listDeadLetters"
)

// New builds the default router over the read models and the dead-letter
// store.
func New(db *sql.DB) *Router {
	s := &selectors{db: db, outbox: sqlite.NewOutboxStore(db)}
	r := &Router{handlers: make(map[string]handler)}
	r.register(TypeGetVariant, s.getVariant)
	r.register(TypeListVariants, s.listVariants)
	r.register(TypeGetProduct, s.getProduct)
	r.register(TypeListProducts, s.listProducts)
	r.register(TypeGetCollection, s.getCollection)
	r.register(TypeListCollections, s.listCollections)
	r.register(TypeGetSchedule, s.getSchedule)
	r.register(TypeListSchedules, s.listSchedules)
	r.register(TypeListDeadLetters, s.listDeadLetters)
	return r
}

type selectors struct {
	db     *sql.DB
	outbox *sqlite.OutboxStore
}

// GetParams identifies a single aggregate.
type GetParams struct {
	ID string `json:"id"`
}

// ListParams is the shared pagination and status filter. Limit zero means
// unbounded; Offset applies regardless.
type ListParams struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ListVariantsParams adds the product filter.
type ListVariantsParams struct {
	ListParams
	ProductID string `json:"productId,omitempty"`
}

// ListSchedulesParams adds the target filter.
type ListSchedulesParams struct {
	ListParams
	TargetID string `json:"targetId,omitempty"`
}

// VariantView is the query-side variant representation.
type VariantView struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"price"`
	Inventory   int64           `json:"inventory"`
	Status      string          `json:"status"`
	Options     json.RawMessage `json:"options"`
	Images      json.RawMessage `json:"images"`
	HasAsset    bool            `json:"hasAsset"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	PublishedAt *time.Time      `json:"publishedAt,omitempty"`
}

// ProductView is the query-side product representation.
type ProductView struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Handle      string          `json:"handle"`
	Tags        json.RawMessage `json:"tags"`
	Images      json.RawMessage `json:"images"`
	Status      string          `json:"status"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	PublishedAt *time.Time      `json:"publishedAt,omitempty"`
}

// CollectionView is the query-side collection representation.
type CollectionView struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Handle      string          `json:"handle"`
	ProductIDs  json.RawMessage `json:"productIds"`
	Status      string          `json:"status"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	PublishedAt *time.Time      `json:"publishedAt,omitempty"`
}

// ScheduleView is the query-side schedule representation.
type ScheduleView struct {
	ID         string          `json:"id"`
	TargetID   string          `json:"targetId"`
	TargetKind string          `json:"targetKind"`
	Entries    json.RawMessage `json:"entries"`
	Status     string          `json:"status"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// DeadLetterView is the query-side dead-letter representation.
type DeadLetterView struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregateId"`
	EventName   string          `json:"eventName"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError"`
	DeadSince   time.Time       `json:"deadSince"`
}

const variantColumns = `aggregate_id, product_id, sku, price, inventory, status,
	options_json, images_json, has_asset, version, created_at, updated_at, published_at`

func (s *selectors) getVariant(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[GetParams](params)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, domain.Invalid("id is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE aggregate_id = ?`, p.ID)
	view, err := scanVariant(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("variant %s: %w", p.ID, domain.ErrAggregateNotFound)
	}
	return view, err
}

func (s *selectors) listVariants(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[ListVariantsParams](params)
	if err != nil {
		return nil, err
	}
	where, args := buildFilter(map[string]string{
		"status":     p.Status,
		"product_id": p.ProductID,
	})
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM variants`+where+` ORDER BY aggregate_id`+limitClause(p.ListParams),
		args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	views := []*VariantView{}
	for rows.Next() {
		view, err := scanVariant(rows.Scan)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func scanVariant(scan func(...any) error) (*VariantView, error) {
	var (
		view                   VariantView
		price                  string
		options, images        string
		hasAsset               int64
		createdAt, updatedAt   string
		publishedAt            sql.NullString
	)
	err := scan(&view.ID, &view.ProductID, &view.SKU, &price, &view.Inventory,
		&view.Status, &options, &images, &hasAsset, &view.Version,
		&createdAt, &updatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}
	if view.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("failed to parse price %q: %w", price, err)
	}
	view.Options = json.RawMessage(options)
	view.Images = json.RawMessage(images)
	view.HasAsset = hasAsset != 0
	return &view, fillTimes(&view.CreatedAt, &view.UpdatedAt, &view.PublishedAt, createdAt, updatedAt, publishedAt)
}

const productColumns = `aggregate_id, title, description, handle, tags_json,
	images_json, status, version, created_at, updated_at, published_at`

func (s *selectors) getProduct(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[GetParams](params)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, domain.Invalid("id is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE aggregate_id = ?`, p.ID)
	view, err := scanProduct(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", p.ID, domain.ErrAggregateNotFound)
	}
	return view, err
}

func (s *selectors) listProducts(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[ListParams](params)
	if err != nil {
		return nil, err
	}
	where, args := buildFilter(map[string]string{"status": p.Status})
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products`+where+` ORDER BY aggregate_id`+limitClause(p),
		args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	views := []*ProductView{}
	for rows.Next() {
		view, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func scanProduct(scan func(...any) error) (*ProductView, error) {
	var (
		view                 ProductView
		tags, images         string
		createdAt, updatedAt string
		publishedAt          sql.NullString
	)
	err := scan(&view.ID, &view.Title, &view.Description, &view.Handle, &tags,
		&images, &view.Status, &view.Version, &createdAt, &updatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}
	view.Tags = json.RawMessage(tags)
	view.Images = json.RawMessage(images)
	return &view, fillTimes(&view.CreatedAt, &view.UpdatedAt, &view.PublishedAt, createdAt, updatedAt, publishedAt)
}

const collectionColumns = `aggregate_id, title, description, handle,
	product_ids_json, status, version, created_at, updated_at, published_at`

func (s *selectors) getCollection(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[GetParams](params)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, domain.Invalid("id is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE aggregate_id = ?`, p.ID)
	view, err := scanCollection(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("collection %s: %w", p.ID, domain.ErrAggregateNotFound)
	}
	return view, err
}

func (s *selectors) listCollections(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[ListParams](params)
	if err != nil {
		return nil, err
	}
	where, args := buildFilter(map[string]string{"status": p.Status})
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections`+where+` ORDER BY aggregate_id`+limitClause(p),
		args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	views := []*CollectionView{}
	for rows.Next() {
		view, err := scanCollection(rows.Scan)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func scanCollection(scan func(...any) error) (*CollectionView, error) {
	var (
		view                 CollectionView
		productIDs           string
		createdAt, updatedAt string
		publishedAt          sql.NullString
	)
	err := scan(&view.ID, &view.Title, &view.Description, &view.Handle,
		&productIDs, &view.Status, &view.Version, &createdAt, &updatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}
	view.ProductIDs = json.RawMessage(productIDs)
	return &view, fillTimes(&view.CreatedAt, &view.UpdatedAt, &view.PublishedAt, createdAt, updatedAt, publishedAt)
}

const scheduleColumns = `aggregate_id, target_id, target_kind, entries_json,
	status, version, created_at, updated_at`

func (s *selectors) getSchedule(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[GetParams](params)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, domain.Invalid("id is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE aggregate_id = ?`, p.ID)
	view, err := scanSchedule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schedule %s: %w", p.ID, domain.ErrAggregateNotFound)
	}
	return view, err
}

func (s *selectors) listSchedules(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[ListSchedulesParams](params)
	if err != nil {
		return nil, err
	}
	where, args := buildFilter(map[string]string{
		"status":    p.Status,
		"target_id": p.TargetID,
	})
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules`+where+` ORDER BY aggregate_id`+limitClause(p.ListParams),
		args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	views := []*ScheduleView{}
	for rows.Next() {
		view, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func scanSchedule(scan func(...any) error) (*ScheduleView, error) {
	var (
		view                 ScheduleView
		entries              string
		createdAt, updatedAt string
	)
	err := scan(&view.ID, &view.TargetID, &view.TargetKind, &entries,
		&view.Status, &view.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	view.Entries = json.RawMessage(entries)
	var discard *time.Time
	return &view, fillTimes(&view.CreatedAt, &view.UpdatedAt, &discard, createdAt, updatedAt, sql.NullString{})
}

func (s *selectors) listDeadLetters(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decodeParams[ListParams](params)
	if err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	letters, err := s.outbox.DeadLetters(ctx, limit)
	if err != nil {
		return nil, storageErr(err)
	}

	views := []*DeadLetterView{}
	for _, l := range letters {
		views = append(views, &DeadLetterView{
			ID:          l.ID,
			AggregateID: l.AggregateID,
			EventName:   l.EventName,
			OccurredAt:  l.OccurredAt,
			Payload:     json.RawMessage(l.Payload),
			Attempts:    l.Attempts,
			LastError:   l.LastError,
			DeadSince:   l.DeadSince,
		})
	}
	return views, nil
}

// buildFilter assembles a WHERE clause from non-empty equality filters in
// deterministic column order.
func buildFilter(filters map[string]string) (string, []any) {
	columns := make([]string, 0, len(filters))
	for col, val := range filters {
		if val != "" {
			columns = append(columns, col)
		}
	}
	if len(columns) == 0 {
		return "", nil
	}
	// Map iteration order is random; sort for stable SQL.
	for i := range columns {
		for j := i + 1; j < len(columns); j++ {
			if columns[j] < columns[i] {
				columns[i], columns[j] = columns[j], columns[i]
			}
		}
	}
	clauses := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		clauses[i] = col + " = ?"
		args[i] = filters[col]
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// limitClause renders pagination. SQLite needs a LIMIT before OFFSET, so an
// offset without a limit uses the -1 sentinel (no limit).
func limitClause(p ListParams) string {
	if p.Limit <= 0 && p.Offset <= 0 {
		return ""
	}
	limit := p.Limit
	if limit <= 0 {
		limit = -1
	}
	clause := fmt.Sprintf(" LIMIT %d", limit)
	if p.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", p.Offset)
	}
	return clause
}

func storageErr(err error) error {
	return fmt.Errorf("%v: %w", err, domain.ErrStorage)
}

func fillTimes(createdAt, updatedAt *time.Time, publishedAt **time.Time, created, updated string, published sql.NullString) error {
	var err error
	if *createdAt, err = sqlite.ParseTime(created); err != nil {
		return err
	}
	if *updatedAt, err = sqlite.ParseTime(updated); err != nil {
		return err
	}
	if publishedAt != nil {
		if *publishedAt, err = sqlite.ParseTimePtr(published); err != nil {
			return err
		}
	}
	return nil
}
