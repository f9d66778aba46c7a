package types

import "time"

// Preference defaults.
const (
	DefaultRestTime      = 60
	DefaultPreferredUnit = "kg"
)

// UserPreferences is the per-device settings singleton.
type UserPreferences struct {
	RowID           int64
	PreferencesID   string
	HealthEnabled   bool
	AutoSyncEnabled bool
	DefaultRestTime int
	PreferredUnit   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultPreferences returns preferences populated with the defaults.
func DefaultPreferences() *UserPreferences {
	return &UserPreferences{
		HealthEnabled:   true,
		AutoSyncEnabled: true,
		DefaultRestTime: DefaultRestTime,
		PreferredUnit:   DefaultPreferredUnit,
	}
}
