// Package sqlite implements the SQLite record store for liftsync.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// DatabaseFile is the SQLite file name inside DataDir.
const DatabaseFile = "liftsync.db"

// Compile-time interface check: Backend must implement Store.
var _ types.Store = (*Backend)(nil)

// Backend implements the Store interface on a single SQLite database file.
// One scope may be open at a time; Begin waits for the writer slot.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	path     string

	// writer is a one-slot semaphore held from Begin to Close.
	writer chan struct{}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{
		writer: make(chan struct{}, 1),
	}
}

// Attach opens (or creates) the database under config.DataDir and brings the
// schema up to date. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// Every scope owns the single connection for its lifetime.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.path = dbPath
	b.attached = true
	return nil
}

// Detach closes the database. After Detach, Begin returns ErrStoreDetached.
// Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	if b.db != nil {
		err := b.db.Close()
		b.db = nil
		if err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
	}
	return nil
}

// Path returns the database file path, or "" when detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// Begin acquires the writer slot and returns a new scope. The transaction is
// opened on first use.
func (b *Backend) Begin(ctx context.Context) (types.Scope, error) {
	select {
	case b.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	b.mu.RLock()
	attached, db := b.attached, b.db
	b.mu.RUnlock()
	if !attached {
		<-b.writer
		return nil, types.ErrStoreDetached
	}
	s := &scope{ctx: ctx, db: db, release: func() { <-b.writer }}
	s.exercises = &exercisesTable{scope: s}
	s.sessions = &sessionsTable{scope: s}
	s.sets = &setsTable{scope: s}
	s.preferences = &preferencesTable{scope: s}
	return s, nil
}

// generateUUID generates a new UUID v7 for entity IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
