package sqlite

import (
	"database/sql"
	"fmt"
)

// schemaVersion is recorded in PRAGMA user_version once the DDL below has
// been applied.
const schemaVersion = 1

// Schema DDL. Domain identifiers are not unique: duplicate-session repair
// needs two rows with the same session_id to coexist. References between
// tables are plain integers so that orphans can be detected and repaired.
const (
	createExercises = `CREATE TABLE IF NOT EXISTS exercises (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    exercise_id TEXT NOT NULL,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    category TEXT,
    muscle_groups TEXT,
    instructions TEXT,
    is_custom INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createSessions = `CREATE TABLE IF NOT EXISTS workout_sessions (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    is_completed INTEGER NOT NULL DEFAULT 0,
    notes TEXT,
    total_calories REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_synced_at TEXT,
    sync_status TEXT NOT NULL DEFAULT 'pending',
    is_synced_to_health INTEGER NOT NULL DEFAULT 0,
    health_workout_id TEXT
);`

	createSets = `CREATE TABLE IF NOT EXISTS workout_sets (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    set_id TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL,
    set_number INTEGER NOT NULL,
    is_completed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    session_row INTEGER,
    exercise_row INTEGER
);`

	createPreferences = `CREATE TABLE IF NOT EXISTS user_preferences (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    preferences_id TEXT NOT NULL,
    health_enabled INTEGER NOT NULL DEFAULT 1,
    auto_sync_enabled INTEGER NOT NULL DEFAULT 1,
    default_rest_time INTEGER NOT NULL DEFAULT 60,
    preferred_unit TEXT NOT NULL DEFAULT 'kg',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`
)

// Index DDL.
const (
	indexExercisesNameKey  = `CREATE INDEX IF NOT EXISTS idx_exercises_name_key ON exercises(name_key);`
	indexSessionsSessionID = `CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON workout_sessions(session_id);`
	indexSessionsSync      = `CREATE INDEX IF NOT EXISTS idx_sessions_sync ON workout_sessions(sync_status, created_at);`
	indexSetsSession       = `CREATE INDEX IF NOT EXISTS idx_sets_session_row ON workout_sets(session_row);`
	indexSetsExercise      = `CREATE INDEX IF NOT EXISTS idx_sets_exercise_row ON workout_sets(exercise_row);`
)

var schemaStatements = []string{
	createExercises,
	createSessions,
	createSets,
	createPreferences,
	indexExercisesNameKey,
	indexSessionsSessionID,
	indexSessionsSync,
	indexSetsSession,
	indexSetsExercise,
}

// migrate applies the schema idempotently and stamps user_version. A database
// written by a newer release is refused rather than modified.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	if version < schemaVersion {
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("stamping schema version: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	return nil
}
