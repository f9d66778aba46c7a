// This file implements the unit-of-work scope over one SQLite transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Compile-time interface check: scope must implement Scope.
var _ types.Scope = (*scope)(nil)

type scope struct {
	ctx     context.Context
	db      *sql.DB
	release func()

	tx     *sql.Tx
	dirty  bool
	closed bool

	exercises   *exercisesTable
	sessions    *sessionsTable
	sets        *setsTable
	preferences *preferencesTable
}

func (s *scope) Exercises() types.ExerciseTable      { return s.exercises }
func (s *scope) Sessions() types.SessionTable        { return s.sessions }
func (s *scope) Sets() types.SetTable                { return s.sets }
func (s *scope) Preferences() types.PreferencesTable { return s.preferences }

// HasChanges reports whether the scope holds uncommitted writes.
func (s *scope) HasChanges() bool {
	return s.dirty
}

// SaveChangesIfAny commits pending writes. Without writes it does nothing.
// A failed commit leaves the store as it was before the scope's writes.
func (s *scope) SaveChangesIfAny() error {
	if s.closed {
		return types.ErrScopeClosed
	}
	if !s.dirty {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.dirty = false
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return types.NewOpError("store.commit", types.ErrPersistence, err)
	}
	return nil
}

// Close rolls back anything uncommitted and releases the writer slot.
// Close is idempotent.
func (s *scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()

	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	s.dirty = false
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back scope: %w", err)
	}
	return nil
}

// txn returns the scope's transaction, opening it on first use.
func (s *scope) txn() (*sql.Tx, error) {
	if s.closed {
		return nil, types.ErrScopeClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		return nil, types.NewOpError("store.begin", types.ErrPersistence, err)
	}
	s.tx = tx
	return tx, nil
}

// exec runs a write statement and marks the scope dirty.
func (s *scope) exec(query string, args ...any) (sql.Result, error) {
	tx, err := s.txn()
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(s.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	s.dirty = true
	return res, nil
}

func (s *scope) query(query string, args ...any) (*sql.Rows, error) {
	tx, err := s.txn()
	if err != nil {
		return nil, err
	}
	return tx.QueryContext(s.ctx, query, args...)
}

func (s *scope) queryRow(query string, args ...any) (*sql.Row, error) {
	tx, err := s.txn()
	if err != nil {
		return nil, err
	}
	return tx.QueryRowContext(s.ctx, query, args...), nil
}
