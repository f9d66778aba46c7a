package types

import "time"

// WorkoutSet is one set of one exercise within a session. Both references are
// nullable; the integrity checker repairs sets left without one.
type WorkoutSet struct {
	RowID       int64
	SetID       string
	Weight      float64
	Repetitions int
	SetNumber   int
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SessionRow  *int64
	ExerciseRow *int64
}

// Validate checks the numeric constraints on a set.
func (s *WorkoutSet) Validate() error {
	if s.Weight < 0 || s.Repetitions <= 0 || s.SetNumber <= 0 {
		return ErrInvalidData
	}
	return nil
}

// SetFilter selects sets. Nil fields match everything.
type SetFilter struct {
	SessionRow *int64
	// NoSession selects sets whose session reference is null.
	NoSession bool
	// NoExercise selects sets whose exercise reference is null.
	NoExercise  bool
	ExerciseRow *int64
	Order       Order
	Limit       int
}
