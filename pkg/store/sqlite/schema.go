package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ddl is the idempotent statement list run on every startup. Forward-only;
// rollbacks are not supported.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS events (
		aggregate_id   TEXT    NOT NULL,
		version        INTEGER NOT NULL,
		event_name     TEXT    NOT NULL,
		occurred_at    TEXT    NOT NULL,
		correlation_id TEXT    NOT NULL,
		user_id        TEXT    NOT NULL,
		payload_json   TEXT    NOT NULL,
		PRIMARY KEY (aggregate_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_name ON events(event_name)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		aggregate_id   TEXT PRIMARY KEY,
		correlation_id TEXT    NOT NULL,
		version        INTEGER NOT NULL,
		payload_json   TEXT    NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id               TEXT PRIMARY KEY,
		aggregate_id     TEXT    NOT NULL,
		event_name       TEXT    NOT NULL,
		occurred_at      TEXT    NOT NULL,
		payload_json     TEXT    NOT NULL,
		status           TEXT    NOT NULL DEFAULT 'pending',
		attempts         INTEGER NOT NULL DEFAULT 0,
		last_error       TEXT    NOT NULL DEFAULT '',
		next_attempt_at  TEXT    NOT NULL,
		lease_owner      TEXT    NOT NULL DEFAULT '',
		lease_expires_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status_next ON outbox(status, next_attempt_at)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox(aggregate_id)`,

	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id               TEXT PRIMARY KEY,
		aggregate_id     TEXT    NOT NULL,
		event_name       TEXT    NOT NULL,
		occurred_at      TEXT    NOT NULL,
		payload_json     TEXT    NOT NULL,
		attempts         INTEGER NOT NULL,
		last_error       TEXT    NOT NULL DEFAULT '',
		dead_since       TEXT    NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS variants (
		aggregate_id   TEXT PRIMARY KEY,
		correlation_id TEXT    NOT NULL,
		version        INTEGER NOT NULL,
		product_id     TEXT    NOT NULL,
		sku            TEXT    NOT NULL DEFAULT '',
		price          TEXT    NOT NULL DEFAULT '0',
		inventory      INTEGER NOT NULL DEFAULT 0,
		status         TEXT    NOT NULL,
		options_json   TEXT    NOT NULL DEFAULT '{}',
		images_json    TEXT    NOT NULL DEFAULT '[]',
		has_asset      INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT    NOT NULL,
		updated_at     TEXT    NOT NULL,
		published_at   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_variants_status ON variants(status)`,
	`CREATE INDEX IF NOT EXISTS idx_variants_product ON variants(product_id)`,

	`CREATE TABLE IF NOT EXISTS products (
		aggregate_id   TEXT PRIMARY KEY,
		correlation_id TEXT    NOT NULL,
		version        INTEGER NOT NULL,
		title          TEXT    NOT NULL,
		description    TEXT    NOT NULL DEFAULT '',
		handle         TEXT    NOT NULL DEFAULT '',
		tags_json      TEXT    NOT NULL DEFAULT '[]',
		images_json    TEXT    NOT NULL DEFAULT '[]',
		status         TEXT    NOT NULL,
		created_at     TEXT    NOT NULL,
		updated_at     TEXT    NOT NULL,
		published_at   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_status ON products(status)`,

	`CREATE TABLE IF NOT EXISTS collections (
		aggregate_id     TEXT PRIMARY KEY,
		correlation_id   TEXT    NOT NULL,
		version          INTEGER NOT NULL,
		title            TEXT    NOT NULL,
		description      TEXT    NOT NULL DEFAULT '',
		handle           TEXT    NOT NULL DEFAULT '',
		product_ids_json TEXT    NOT NULL DEFAULT '[]',
		status           TEXT    NOT NULL,
		created_at       TEXT    NOT NULL,
		updated_at       TEXT    NOT NULL,
		published_at     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_collections_status ON collections(status)`,

	`CREATE TABLE IF NOT EXISTS schedules (
		aggregate_id   TEXT PRIMARY KEY,
		correlation_id TEXT    NOT NULL,
		version        INTEGER NOT NULL,
		target_id      TEXT    NOT NULL,
		target_kind    TEXT    NOT NULL,
		entries_json   TEXT    NOT NULL DEFAULT '[]',
		status         TEXT    NOT NULL,
		created_at     TEXT    NOT NULL,
		updated_at     TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_target ON schedules(target_id)`,
}

// ColumnMigration adds one column to an existing table. Applied only when
// the column is missing, after the DDL pass.
type ColumnMigration struct {
	Table        string
	Column       string
	AddStatement string
}

// columnMigrations upgrades databases created before the column existed.
// Fresh databases already carry these columns via the DDL above, so the
// list is a no-op for them.
var columnMigrations = []ColumnMigration{
	{Table: "outbox", Column: "lease_owner", AddStatement: `ALTER TABLE outbox ADD COLUMN lease_owner TEXT NOT NULL DEFAULT ''`},
	{Table: "outbox", Column: "lease_expires_at", AddStatement: `ALTER TABLE outbox ADD COLUMN lease_expires_at TEXT`},
	{Table: "variants", Column: "has_asset", AddStatement: `ALTER TABLE variants ADD COLUMN has_asset INTEGER NOT NULL DEFAULT 0`},
}

// Migrate runs the idempotent DDL list and then applies any missing column
// migrations. Safe to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run DDL: %w", err)
		}
	}

	for _, m := range columnMigrations {
		exists, err := columnExists(ctx, db, m.Table, m.Column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, m.AddStatement); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", m.Table, m.Column, err)
		}
	}

	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
