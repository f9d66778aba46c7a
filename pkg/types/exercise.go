package types

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Placeholder exercise attached to sets whose exercise reference is missing.
const (
	PlaceholderExerciseName     = "unknown exercise"
	PlaceholderExerciseCategory = "other"
)

// Exercise is a named movement that workout sets refer to.
type Exercise struct {
	RowID        int64
	ExerciseID   string
	Name         string
	Category     string
	MuscleGroups string
	Instructions string
	IsCustom     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NameKey returns the normalized form of the exercise name.
func (e *Exercise) NameKey() string {
	return NormalizeName(e.Name)
}

// NormalizeName trims surrounding whitespace and case-folds name. Two
// exercises are the same exercise when their normalized names are equal.
func NormalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// ExerciseFilter selects exercises. Nil fields match everything.
type ExerciseFilter struct {
	ExerciseID *string
	// NameKey matches against NormalizeName of the stored name.
	NameKey  *string
	IsCustom *bool
	Order    Order
	Limit    int
}
