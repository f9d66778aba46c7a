package types

import "context"

// Order selects the sort order of a Fetch. OrderDefault sorts by RowID.
type Order int

// Sort orders. Tables reject orders over columns they do not have.
const (
	OrderDefault Order = iota
	OrderCreatedAsc
	OrderCreatedDesc
	OrderStartDesc
	OrderNameAsc
	OrderSetNumberAsc
)

// Store is a durable record store for workout data.
type Store interface {
	Attach(config Config) error
	Detach() error
	// Begin opens a unit of work. The store admits one scope at a time;
	// Begin blocks until the previous scope is closed or ctx is done.
	Begin(ctx context.Context) (Scope, error)
}

// Scope is a serialized unit of work. Writes are held until SaveChangesIfAny
// commits them; Close discards anything uncommitted. A scope remains usable
// after a commit.
type Scope interface {
	Exercises() ExerciseTable
	Sessions() SessionTable
	Sets() SetTable
	Preferences() PreferencesTable
	HasChanges() bool
	SaveChangesIfAny() error
	Close() error
}

// ExerciseTable accesses Exercise rows. Delete nullifies ExerciseRow on every
// set that referenced the exercise.
type ExerciseTable interface {
	Create(e *Exercise) error
	Get(rowID int64) (*Exercise, error)
	Fetch(f ExerciseFilter) ([]*Exercise, error)
	Count(f ExerciseFilter) (int, error)
	Update(rowID int64, mutate func(*Exercise)) (*Exercise, error)
	Delete(rowID int64) error
}

// SessionTable accesses WorkoutSession rows. Delete removes the session's
// sets in the same unit of work.
type SessionTable interface {
	Create(s *WorkoutSession) error
	Get(rowID int64) (*WorkoutSession, error)
	Fetch(f SessionFilter) ([]*WorkoutSession, error)
	Count(f SessionFilter) (int, error)
	Update(rowID int64, mutate func(*WorkoutSession)) (*WorkoutSession, error)
	Delete(rowID int64) error
}

// SetTable accesses WorkoutSet rows.
type SetTable interface {
	Create(s *WorkoutSet) error
	Get(rowID int64) (*WorkoutSet, error)
	Fetch(f SetFilter) ([]*WorkoutSet, error)
	Count(f SetFilter) (int, error)
	Update(rowID int64, mutate func(*WorkoutSet)) (*WorkoutSet, error)
	Delete(rowID int64) error
	// MaxSetNumber returns the largest SetNumber in the session, or 0.
	MaxSetNumber(sessionRow int64) (int, error)
}

// PreferencesTable accesses the UserPreferences singleton. Create fails with
// ErrPreferencesExist when a row is already present.
type PreferencesTable interface {
	Create(p *UserPreferences) error
	// Current returns the singleton or ErrNotFound.
	Current() (*UserPreferences, error)
	Update(mutate func(*UserPreferences)) (*UserPreferences, error)
	Delete() error
}
