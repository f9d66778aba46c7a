// This file implements the user preferences singleton accessor.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Compile-time interface check: preferencesTable must implement PreferencesTable.
var _ types.PreferencesTable = (*preferencesTable)(nil)

type preferencesTable struct {
	scope *scope
}

const preferencesColumns = "row_id, preferences_id, health_enabled, auto_sync_enabled, default_rest_time, preferred_unit, created_at, updated_at"

// Create inserts the singleton. Returns ErrPreferencesExist if a row is
// already present.
func (pt *preferencesTable) Create(p *types.UserPreferences) error {
	if p == nil {
		return types.ErrInvalidData
	}
	row, err := pt.scope.queryRow("SELECT COUNT(*) FROM user_preferences")
	if err != nil {
		return err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("counting preferences: %w", err)
	}
	if n > 0 {
		return types.ErrPreferencesExist
	}

	now := time.Now().UTC()
	if p.PreferencesID == "" {
		p.PreferencesID = generateUUID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.PreferredUnit == "" {
		p.PreferredUnit = types.DefaultPreferredUnit
	}
	res, err := pt.scope.exec(
		"INSERT INTO user_preferences (preferences_id, health_enabled, auto_sync_enabled, default_rest_time, preferred_unit, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.PreferencesID, boolInt(p.HealthEnabled), boolInt(p.AutoSyncEnabled), p.DefaultRestTime, p.PreferredUnit,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting preferences: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading preferences row id: %w", err)
	}
	p.RowID = id
	return nil
}

// Current returns the singleton or ErrNotFound.
func (pt *preferencesTable) Current() (*types.UserPreferences, error) {
	row, err := pt.scope.queryRow("SELECT " + preferencesColumns + " FROM user_preferences ORDER BY row_id ASC LIMIT 1")
	if err != nil {
		return nil, err
	}
	var (
		p                    types.UserPreferences
		health, autoSync     int
		createdAt, updatedAt string
	)
	err = row.Scan(&p.RowID, &p.PreferencesID, &health, &autoSync, &p.DefaultRestTime, &p.PreferredUnit, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting preferences: %w", err)
	}
	p.HealthEnabled = health != 0
	p.AutoSyncEnabled = autoSync != 0
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update applies mutate to the singleton and bumps UpdatedAt.
func (pt *preferencesTable) Update(mutate func(*types.UserPreferences)) (*types.UserPreferences, error) {
	p, err := pt.Current()
	if err != nil {
		return nil, err
	}
	rowID := p.RowID
	mutate(p)
	p.RowID = rowID
	p.UpdatedAt = time.Now().UTC()
	if p.DefaultRestTime < 0 {
		return nil, types.ErrInvalidData
	}
	_, err = pt.scope.exec(
		"UPDATE user_preferences SET health_enabled = ?, auto_sync_enabled = ?, default_rest_time = ?, preferred_unit = ?, updated_at = ? WHERE row_id = ?",
		boolInt(p.HealthEnabled), boolInt(p.AutoSyncEnabled), p.DefaultRestTime, p.PreferredUnit, formatTime(p.UpdatedAt), rowID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating preferences: %w", err)
	}
	return p, nil
}

// Delete removes the singleton. Deleting when absent is not an error.
func (pt *preferencesTable) Delete() error {
	if _, err := pt.scope.exec("DELETE FROM user_preferences"); err != nil {
		return fmt.Errorf("deleting preferences: %w", err)
	}
	return nil
}
