// Package sqlite implements the store contracts on SQLite via the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type dbConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
}

func defaultDBConfig() dbConfig {
	return dbConfig{
		dsn:          "commerce.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
	}
}

// Option configures Open.
type Option func(*dbConfig)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *dbConfig) { c.dsn = dsn }
}

// WithMemoryDatabase uses an in-memory database (tests).
func WithMemoryDatabase() Option {
	return func(c *dbConfig) {
		c.dsn = ":memory:"
		c.walMode = false
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *dbConfig) { c.maxOpenConns = n }
}

// WithWALMode toggles write-ahead logging. Not available for :memory:
// databases.
func WithWALMode(enabled bool) Option {
	return func(c *dbConfig) { c.walMode = enabled }
}

// Open opens a SQLite database with the connection-pool and journal settings
// the write path expects. In-memory databases are pinned to a single
// connection so every caller sees the same database.
func Open(opts ...Option) (*sql.DB, error) {
	config := defaultDBConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if config.walMode {
		if _, err := db.Exec(`
			PRAGMA journal_mode = WAL;
			PRAGMA synchronous = NORMAL;
			PRAGMA foreign_keys = ON;
		`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	return db, nil
}

// timeLayout is the ISO-8601 UTC format used for every persisted instant.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseTime decodes a persisted instant.
func ParseTime(s string) (time.Time, error) { return parseTime(s) }

// ParseTimePtr decodes a nullable persisted instant.
func ParseTimePtr(s sql.NullString) (*time.Time, error) { return parseTimePtr(s) }

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
