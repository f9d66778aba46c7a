// Package sqlite provides the public factory for the SQLite record store
// while keeping implementation details internal.
package sqlite

import (
	"github.com/mesh-intelligence/liftsync/internal/sqlite"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// NewBackend creates a new SQLite store. The store is not attached; call
// Attach with a Config to open it.
//
// Example:
//
//	store := sqlite.NewBackend()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: dataDir,
//	})
//	defer store.Detach()
func NewBackend() types.Store {
	return sqlite.NewBackend()
}
