// Package database provides the SQLite persistence layer: connection setup,
// embedded schema migrations, and the Store with all honeypot queries.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Register the pure-Go sqlite driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database configuration.
type Config struct {
	// Path is the SQLite database file location. The file and its WAL
	// sidecars are created on first open.
	Path string

	// Connection pool settings. SQLite in WAL mode supports concurrent
	// readers with a single writer, so a small pool is enough.
	MaxOpenConns int
	MaxIdleConns int
}

// DefaultConfig returns a Config with sensible pool settings for the given
// database path.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}
}

// Client wraps the sqlx handle and owns the connection lifecycle.
type Client struct {
	db   *sqlx.DB
	path string
}

// DB returns the underlying handle for health checks and the Store.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens the SQLite database, applies the pragmas the honeypot
// depends on (WAL journaling, enforced foreign keys, a 5s busy timeout),
// restricts file permissions, and runs any pending migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		cfg.Path,
	)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The file holds fabricated credentials and attacker traffic; keep it
	// out of reach of other local users.
	if runtime.GOOS != "windows" {
		if err := os.Chmod(cfg.Path, 0o600); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = db.Close()
			return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
		}
	}

	if err := runMigrations(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{db: db, path: cfg.Path}, nil
}

// runMigrations applies pending schema migrations from the embedded
// migrations directory. Files are embedded with go:embed so production
// binaries carry their schema with them.
func runMigrations(db *stdsql.DB) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found, binary may be built incorrectly")
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the migration source driver. m.Close() would also close
	// the database driver, which closes the shared *sql.DB out from under
	// the Store.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

// hasEmbeddedMigrations checks if the embedded FS contains any .sql migration files.
func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}

	return false, nil
}
