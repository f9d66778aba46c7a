// This file implements the workout sets table accessor.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Compile-time interface check: setsTable must implement SetTable.
var _ types.SetTable = (*setsTable)(nil)

type setsTable struct {
	scope *scope
}

const setColumns = "row_id, set_id, weight, repetitions, set_number, is_completed, created_at, updated_at, session_row, exercise_row"

// Create inserts s and sets its RowID.
func (st *setsTable) Create(s *types.WorkoutSet) error {
	if s == nil {
		return types.ErrInvalidData
	}
	if err := s.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if s.SetID == "" {
		s.SetID = generateUUID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	res, err := st.scope.exec(
		"INSERT INTO workout_sets (set_id, weight, repetitions, set_number, is_completed, created_at, updated_at, session_row, exercise_row) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		setArgs(s)...,
	)
	if err != nil {
		return fmt.Errorf("inserting set %s: %w", s.SetID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading set row id: %w", err)
	}
	s.RowID = id
	return nil
}

// Get retrieves a set by row id.
func (st *setsTable) Get(rowID int64) (*types.WorkoutSet, error) {
	row, err := st.scope.queryRow("SELECT "+setColumns+" FROM workout_sets WHERE row_id = ?", rowID)
	if err != nil {
		return nil, err
	}
	s, err := hydrateSet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting set %d: %w", rowID, err)
	}
	return s, nil
}

// Fetch returns sets matching f.
func (st *setsTable) Fetch(f types.SetFilter) ([]*types.WorkoutSet, error) {
	w := setWhere(f)
	order, err := orderClause(f.Order, types.OrderCreatedAsc, types.OrderCreatedDesc, types.OrderSetNumberAsc)
	if err != nil {
		return nil, err
	}
	rows, err := st.scope.query("SELECT "+setColumns+" FROM workout_sets"+w.String()+order+limitClause(f.Limit), w.args...)
	if err != nil {
		return nil, fmt.Errorf("querying sets: %w", err)
	}
	defer rows.Close()

	var out []*types.WorkoutSet
	for rows.Next() {
		s, err := hydrateSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning set: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sets: %w", err)
	}
	return out, nil
}

// Count returns the number of sets matching f.
func (st *setsTable) Count(f types.SetFilter) (int, error) {
	w := setWhere(f)
	row, err := st.scope.queryRow("SELECT COUNT(*) FROM workout_sets"+w.String(), w.args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sets: %w", err)
	}
	return n, nil
}

// Update loads the set, applies mutate and writes every column back.
func (st *setsTable) Update(rowID int64, mutate func(*types.WorkoutSet)) (*types.WorkoutSet, error) {
	s, err := st.Get(rowID)
	if err != nil {
		return nil, err
	}
	mutate(s)
	s.RowID = rowID
	if err := s.Validate(); err != nil {
		return nil, err
	}
	args := append(setArgs(s), rowID)
	_, err = st.scope.exec(
		"UPDATE workout_sets SET set_id = ?, weight = ?, repetitions = ?, set_number = ?, is_completed = ?, created_at = ?, updated_at = ?, session_row = ?, exercise_row = ? WHERE row_id = ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("updating set %d: %w", rowID, err)
	}
	return s, nil
}

// Delete removes the set.
func (st *setsTable) Delete(rowID int64) error {
	res, err := st.scope.exec("DELETE FROM workout_sets WHERE row_id = ?", rowID)
	if err != nil {
		return fmt.Errorf("deleting set %d: %w", rowID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// MaxSetNumber returns the largest set number in the session, or 0.
func (st *setsTable) MaxSetNumber(sessionRow int64) (int, error) {
	row, err := st.scope.queryRow("SELECT COALESCE(MAX(set_number), 0) FROM workout_sets WHERE session_row = ?", sessionRow)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("reading max set number: %w", err)
	}
	return n, nil
}

func setArgs(s *types.WorkoutSet) []any {
	return []any{
		s.SetID, s.Weight, s.Repetitions, s.SetNumber, boolInt(s.IsCompleted),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt), optInt64(s.SessionRow), optInt64(s.ExerciseRow),
	}
}

func setWhere(f types.SetFilter) *where {
	w := &where{}
	if f.SessionRow != nil {
		w.add("session_row = ?", *f.SessionRow)
	}
	if f.NoSession {
		w.add("session_row IS NULL")
	}
	if f.ExerciseRow != nil {
		w.add("exercise_row = ?", *f.ExerciseRow)
	}
	if f.NoExercise {
		w.add("exercise_row IS NULL")
	}
	return w
}

func hydrateSet(row rowScanner) (*types.WorkoutSet, error) {
	var (
		s                       types.WorkoutSet
		isCompleted             int
		createdAt, updatedAt    string
		sessionRow, exerciseRow sql.NullInt64
	)
	if err := row.Scan(&s.RowID, &s.SetID, &s.Weight, &s.Repetitions, &s.SetNumber, &isCompleted,
		&createdAt, &updatedAt, &sessionRow, &exerciseRow); err != nil {
		return nil, err
	}
	s.IsCompleted = isCompleted != 0
	s.SessionRow = nullInt64Ptr(sessionRow)
	s.ExerciseRow = nullInt64Ptr(exerciseRow)
	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
