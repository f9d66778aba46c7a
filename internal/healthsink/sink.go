// Package healthsink exports completed workouts to an external health
// store. Exports are best effort: callers log failures and move on.
package healthsink

import (
	"context"
	"errors"
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// AuthorizationStatus is the sink's answer to whether workouts may be
// written.
type AuthorizationStatus string

// Authorization states.
const (
	StatusNotDetermined AuthorizationStatus = "not_determined"
	StatusAuthorized    AuthorizationStatus = "authorized"
	StatusDenied        AuthorizationStatus = "denied"
)

// ActivityStrengthTraining is the activity type of every exported workout.
const ActivityStrengthTraining = "traditionalStrengthTraining"

// Workout is the record handed to a sink.
type Workout struct {
	SessionID     string
	Start         time.Time
	End           time.Time
	TotalCalories float64
	Notes         string
}

// Duration returns End minus Start, never negative.
func (w Workout) Duration() time.Duration {
	if w.End.Before(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// WorkoutFromSession builds the export record for s. A session without an
// end time ends when it started.
func WorkoutFromSession(s *types.WorkoutSession) Workout {
	end := s.StartTime
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return Workout{
		SessionID:     s.SessionID,
		Start:         s.StartTime,
		End:           end,
		TotalCalories: s.TotalCalories,
		Notes:         s.Notes,
	}
}

// Sink is an external health store.
type Sink interface {
	// SaveWorkout stores w and returns the external id assigned to it.
	// Errors match types.ErrSinkUnavailable or
	// types.ErrSinkAuthorizationDenied.
	SaveWorkout(ctx context.Context, w Workout) (string, error)
	// RequestAuthorization asks for write access. Calling it again after
	// access was granted is a no-op.
	RequestAuthorization(ctx context.Context) error
	CheckAuthorizationStatus(ctx context.Context) (AuthorizationStatus, error)
}

var errDisabled = errors.New("health export disabled")

// Disabled is the sink used when no health store is configured.
type Disabled struct{}

var _ Sink = Disabled{}

// SaveWorkout always fails with types.ErrSinkUnavailable.
func (Disabled) SaveWorkout(context.Context, Workout) (string, error) {
	return "", types.NewOpError("healthsink.save", types.ErrSinkUnavailable, errDisabled)
}

// RequestAuthorization always fails with types.ErrSinkAuthorizationDenied.
func (Disabled) RequestAuthorization(context.Context) error {
	return types.NewOpError("healthsink.authorize", types.ErrSinkAuthorizationDenied, errDisabled)
}

// CheckAuthorizationStatus reports StatusDenied.
func (Disabled) CheckAuthorizationStatus(context.Context) (AuthorizationStatus, error) {
	return StatusDenied, nil
}
