// This file implements the exercises table accessor.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Compile-time interface check: exercisesTable must implement ExerciseTable.
var _ types.ExerciseTable = (*exercisesTable)(nil)

type exercisesTable struct {
	scope *scope
}

const exerciseColumns = "row_id, exercise_id, name, category, muscle_groups, instructions, is_custom, created_at, updated_at"

// Create inserts e and sets its RowID. Empty ExerciseID and zero timestamps
// are filled in.
func (et *exercisesTable) Create(e *types.Exercise) error {
	if e == nil || e.Name == "" {
		return types.ErrInvalidData
	}
	now := time.Now().UTC()
	if e.ExerciseID == "" {
		e.ExerciseID = generateUUID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	res, err := et.scope.exec(
		"INSERT INTO exercises (exercise_id, name, name_key, category, muscle_groups, instructions, is_custom, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ExerciseID, e.Name, e.NameKey(), optString(e.Category), optString(e.MuscleGroups), optString(e.Instructions),
		boolInt(e.IsCustom), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting exercise %s: %w", e.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading exercise row id: %w", err)
	}
	e.RowID = id
	return nil
}

// Get retrieves an exercise by row id.
func (et *exercisesTable) Get(rowID int64) (*types.Exercise, error) {
	row, err := et.scope.queryRow("SELECT "+exerciseColumns+" FROM exercises WHERE row_id = ?", rowID)
	if err != nil {
		return nil, err
	}
	e, err := hydrateExercise(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting exercise %d: %w", rowID, err)
	}
	return e, nil
}

// Fetch returns exercises matching f.
func (et *exercisesTable) Fetch(f types.ExerciseFilter) ([]*types.Exercise, error) {
	w := exerciseWhere(f)
	order, err := orderClause(f.Order, types.OrderCreatedAsc, types.OrderCreatedDesc, types.OrderNameAsc)
	if err != nil {
		return nil, err
	}
	rows, err := et.scope.query("SELECT "+exerciseColumns+" FROM exercises"+w.String()+order+limitClause(f.Limit), w.args...)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var out []*types.Exercise
	for rows.Next() {
		e, err := hydrateExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exercises: %w", err)
	}
	return out, nil
}

// Count returns the number of exercises matching f.
func (et *exercisesTable) Count(f types.ExerciseFilter) (int, error) {
	w := exerciseWhere(f)
	row, err := et.scope.queryRow("SELECT COUNT(*) FROM exercises"+w.String(), w.args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting exercises: %w", err)
	}
	return n, nil
}

// Update loads the exercise, applies mutate and writes every column back.
// RowID cannot be changed by mutate.
func (et *exercisesTable) Update(rowID int64, mutate func(*types.Exercise)) (*types.Exercise, error) {
	e, err := et.Get(rowID)
	if err != nil {
		return nil, err
	}
	mutate(e)
	e.RowID = rowID
	if e.Name == "" {
		return nil, types.ErrInvalidData
	}
	_, err = et.scope.exec(
		"UPDATE exercises SET exercise_id = ?, name = ?, name_key = ?, category = ?, muscle_groups = ?, instructions = ?, is_custom = ?, created_at = ?, updated_at = ? WHERE row_id = ?",
		e.ExerciseID, e.Name, e.NameKey(), optString(e.Category), optString(e.MuscleGroups), optString(e.Instructions),
		boolInt(e.IsCustom), formatTime(e.CreatedAt), formatTime(e.UpdatedAt), rowID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating exercise %d: %w", rowID, err)
	}
	return e, nil
}

// Delete removes the exercise and nullifies the exercise reference of every
// set that pointed at it.
func (et *exercisesTable) Delete(rowID int64) error {
	res, err := et.scope.exec("DELETE FROM exercises WHERE row_id = ?", rowID)
	if err != nil {
		return fmt.Errorf("deleting exercise %d: %w", rowID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	if _, err := et.scope.exec("UPDATE workout_sets SET exercise_row = NULL WHERE exercise_row = ?", rowID); err != nil {
		return fmt.Errorf("nullifying set references to exercise %d: %w", rowID, err)
	}
	return nil
}

func exerciseWhere(f types.ExerciseFilter) *where {
	w := &where{}
	if f.ExerciseID != nil {
		w.add("exercise_id = ?", *f.ExerciseID)
	}
	if f.NameKey != nil {
		w.add("name_key = ?", *f.NameKey)
	}
	if f.IsCustom != nil {
		w.add("is_custom = ?", boolInt(*f.IsCustom))
	}
	return w
}

type rowScanner interface {
	Scan(dest ...any) error
}

func hydrateExercise(row rowScanner) (*types.Exercise, error) {
	var (
		e                                    types.Exercise
		category, muscleGroups, instructions sql.NullString
		isCustom                             int
		createdAt, updatedAt                 string
	)
	if err := row.Scan(&e.RowID, &e.ExerciseID, &e.Name, &category, &muscleGroups, &instructions, &isCustom, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Category = category.String
	e.MuscleGroups = muscleGroups.String
	e.Instructions = instructions.String
	e.IsCustom = isCustom != 0
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
