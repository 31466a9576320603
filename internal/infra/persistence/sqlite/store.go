// Package sqlite provides a SQLite-backed persistent store. Transactions run
// against the in-memory core and their changes are written to relational
// tables before the in-memory state is swapped.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"materialcore/internal/infra/persistence/memory"
	"materialcore/internal/infra/persistence/sqlstate"
	"materialcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "materialcore.db"

// Store persists the composition state to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path, applies the schema and
// hydrates the in-memory core from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps the commit hook serialized with the memory lock
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := sqlstate.Migrate(ctx, db, sqlstate.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := sqlstate.Load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	mem.OnCommit(sqlstate.Hook(db, sqlstate.SQLite))
	return &Store{Store: mem, db: db, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
