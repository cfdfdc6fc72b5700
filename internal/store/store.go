package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultBusyTimeout is how long a commit waits for another process holding
// the database write lock.
const DefaultBusyTimeout = 5 * time.Second

// Store keeps the committed offset of every consumer group in one SQLite
// database. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*config)

type config struct {
	now         func() time.Time
	busyTimeout time.Duration
}

// WithClock sets the source of commit timestamps. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBusyTimeout bounds the wait for a locked database. Commits made from a
// drain callback hold the log's reading paused for at most this long.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// Open creates or opens the offsets database at path. ":memory:" gives a
// private database that disappears on Close.
//
// The database runs in WAL mode so that `streamlog offsets` can list groups
// while a `tail --group` run commits.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{now: time.Now, busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open offsets database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open offsets database: %w", err)
	}

	// Offsets are tiny and written one at a time. A single connection also
	// keeps ":memory:" one database instead of one per connection.
	db.SetMaxOpenConns(1)

	if err := initialize(db, cfg.busyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize offsets database %s: %w", path, err)
	}
	return &Store{db: db, now: cfg.now}, nil
}

func initialize(db *sql.DB, busyTimeout time.Duration) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		schemaSQL,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
