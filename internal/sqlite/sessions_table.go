// This file implements the workout sessions table accessor.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Compile-time interface check: sessionsTable must implement SessionTable.
var _ types.SessionTable = (*sessionsTable)(nil)

type sessionsTable struct {
	scope *scope
}

const sessionColumns = "row_id, session_id, start_time, end_time, is_completed, notes, total_calories, created_at, updated_at, last_synced_at, sync_status, is_synced_to_health, health_workout_id"

// Create inserts s and sets its RowID. Empty SessionID, SyncStatus and zero
// timestamps are filled in.
func (st *sessionsTable) Create(s *types.WorkoutSession) error {
	if s == nil || s.TotalCalories < 0 {
		return types.ErrInvalidData
	}
	now := time.Now().UTC()
	if s.SessionID == "" {
		s.SessionID = generateUUID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	if s.StartTime.IsZero() {
		s.StartTime = s.CreatedAt
	}
	if s.SyncStatus == "" {
		s.SyncStatus = types.SyncPending
	}

	res, err := st.scope.exec(
		"INSERT INTO workout_sessions (session_id, start_time, end_time, is_completed, notes, total_calories, created_at, updated_at, last_synced_at, sync_status, is_synced_to_health, health_workout_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		sessionArgs(s)...,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", s.SessionID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading session row id: %w", err)
	}
	s.RowID = id
	return nil
}

// Get retrieves a session by row id.
func (st *sessionsTable) Get(rowID int64) (*types.WorkoutSession, error) {
	row, err := st.scope.queryRow("SELECT "+sessionColumns+" FROM workout_sessions WHERE row_id = ?", rowID)
	if err != nil {
		return nil, err
	}
	s, err := hydrateSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting session %d: %w", rowID, err)
	}
	return s, nil
}

// Fetch returns sessions matching f.
func (st *sessionsTable) Fetch(f types.SessionFilter) ([]*types.WorkoutSession, error) {
	w := sessionWhere(f)
	order, err := orderClause(f.Order, types.OrderCreatedAsc, types.OrderCreatedDesc, types.OrderStartDesc)
	if err != nil {
		return nil, err
	}
	rows, err := st.scope.query("SELECT "+sessionColumns+" FROM workout_sessions"+w.String()+order+limitClause(f.Limit), w.args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.WorkoutSession
	for rows.Next() {
		s, err := hydrateSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

// Count returns the number of sessions matching f.
func (st *sessionsTable) Count(f types.SessionFilter) (int, error) {
	w := sessionWhere(f)
	row, err := st.scope.queryRow("SELECT COUNT(*) FROM workout_sessions"+w.String(), w.args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// Update loads the session, applies mutate and writes every column back.
func (st *sessionsTable) Update(rowID int64, mutate func(*types.WorkoutSession)) (*types.WorkoutSession, error) {
	s, err := st.Get(rowID)
	if err != nil {
		return nil, err
	}
	mutate(s)
	s.RowID = rowID
	if s.TotalCalories < 0 {
		return nil, types.ErrInvalidData
	}
	args := append(sessionArgs(s), rowID)
	_, err = st.scope.exec(
		"UPDATE workout_sessions SET session_id = ?, start_time = ?, end_time = ?, is_completed = ?, notes = ?, total_calories = ?, created_at = ?, updated_at = ?, last_synced_at = ?, sync_status = ?, is_synced_to_health = ?, health_workout_id = ? WHERE row_id = ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("updating session %d: %w", rowID, err)
	}
	return s, nil
}

// Delete removes the session together with its sets.
func (st *sessionsTable) Delete(rowID int64) error {
	res, err := st.scope.exec("DELETE FROM workout_sessions WHERE row_id = ?", rowID)
	if err != nil {
		return fmt.Errorf("deleting session %d: %w", rowID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	// Cascade delete sets owned by this session.
	if _, err := st.scope.exec("DELETE FROM workout_sets WHERE session_row = ?", rowID); err != nil {
		return fmt.Errorf("deleting sets of session %d: %w", rowID, err)
	}
	return nil
}

func sessionArgs(s *types.WorkoutSession) []any {
	return []any{
		s.SessionID, formatTime(s.StartTime), formatOptTime(s.EndTime), boolInt(s.IsCompleted),
		optString(s.Notes), s.TotalCalories, formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
		formatOptTime(s.LastSyncedAt), string(s.SyncStatus), boolInt(s.IsSyncedToHealth), optString(s.HealthWorkoutID),
	}
}

func sessionWhere(f types.SessionFilter) *where {
	w := &where{}
	if f.SessionID != nil {
		w.add("session_id = ?", *f.SessionID)
	}
	if f.IsCompleted != nil {
		w.add("is_completed = ?", boolInt(*f.IsCompleted))
	}
	if f.NeedsSync != nil {
		if *f.NeedsSync {
			w.add("(sync_status = ? OR last_synced_at IS NULL)", string(types.SyncPending))
		} else {
			w.add("(sync_status <> ? AND last_synced_at IS NOT NULL)", string(types.SyncPending))
		}
	}
	if f.ExportPending != nil {
		if *f.ExportPending {
			w.add("(is_completed = 1 AND is_synced_to_health = 0)")
		} else {
			w.add("NOT (is_completed = 1 AND is_synced_to_health = 0)")
		}
	}
	return w
}

func hydrateSession(row rowScanner) (*types.WorkoutSession, error) {
	var (
		s                               types.WorkoutSession
		startTime, createdAt, updatedAt string
		endTime, lastSynced             sql.NullString
		notes, healthID                 sql.NullString
		isCompleted, isSyncedToHealth   int
		syncStatus                      string
	)
	if err := row.Scan(&s.RowID, &s.SessionID, &startTime, &endTime, &isCompleted, &notes, &s.TotalCalories,
		&createdAt, &updatedAt, &lastSynced, &syncStatus, &isSyncedToHealth, &healthID); err != nil {
		return nil, err
	}
	s.IsCompleted = isCompleted != 0
	s.IsSyncedToHealth = isSyncedToHealth != 0
	s.Notes = notes.String
	s.HealthWorkoutID = healthID.String
	s.SyncStatus = types.SyncStatus(syncStatus)

	var err error
	if s.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if s.EndTime, err = parseOptTime(endTime); err != nil {
		return nil, err
	}
	if s.LastSyncedAt, err = parseOptTime(lastSynced); err != nil {
		return nil, err
	}
	return &s, nil
}
