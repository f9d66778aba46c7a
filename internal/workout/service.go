// Package workout records sessions and sets on the local device and keeps
// the built-in exercise catalog in place.
package workout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logging.Component(l, "workout") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service mutates workout records. Every call runs in its own scope and
// commits before returning.
type Service struct {
	store  types.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a Service over store.
func NewService(store types.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logging.Component(nil, "workout"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withScope(ctx context.Context, fn func(types.Scope) error) error {
	scope, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()
	if err := fn(scope); err != nil {
		return err
	}
	return scope.SaveChangesIfAny()
}

// StartSession creates an open, pending session starting now.
func (s *Service) StartSession(ctx context.Context) (*types.WorkoutSession, error) {
	now := s.now()
	session := &types.WorkoutSession{
		StartTime:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: types.SyncPending,
	}
	err := s.withScope(ctx, func(scope types.Scope) error {
		return scope.Sessions().Create(session)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session started", "session", session.SessionID, "row", session.RowID)
	return session, nil
}

// AddSet appends a completed set to the session. The set is numbered after
// the highest existing set. The session's update time moves to now and a
// session that was already synced is queued again.
func (s *Service) AddSet(ctx context.Context, sessionRow, exerciseRow int64, weight float64, reps int) (*types.WorkoutSet, error) {
	now := s.now()
	set := &types.WorkoutSet{
		Weight:      weight,
		Repetitions: reps,
		IsCompleted: true,
		CreatedAt:   now,
		UpdatedAt:   now,
		SessionRow:  &sessionRow,
		ExerciseRow: &exerciseRow,
	}
	var exerciseName string
	err := s.withScope(ctx, func(scope types.Scope) error {
		if _, err := scope.Sessions().Get(sessionRow); err != nil {
			return fmt.Errorf("session %d: %w", sessionRow, err)
		}
		e, err := scope.Exercises().Get(exerciseRow)
		if err != nil {
			return fmt.Errorf("exercise %d: %w", exerciseRow, err)
		}
		exerciseName = e.Name

		n, err := scope.Sets().MaxSetNumber(sessionRow)
		if err != nil {
			return err
		}
		set.SetNumber = n + 1
		if err := set.Validate(); err != nil {
			return err
		}
		if err := scope.Sets().Create(set); err != nil {
			return err
		}
		_, err = scope.Sessions().Update(sessionRow, func(x *types.WorkoutSession) {
			x.UpdatedAt = now
			if !x.NeedsSync() {
				x.MarkPending()
			}
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("set added", "session_row", sessionRow, "exercise", exerciseName,
		"weight", weight, "reps", reps, "set_number", set.SetNumber)
	return set, nil
}

// CompleteSession ends the session now.
func (s *Service) CompleteSession(ctx context.Context, sessionRow int64) (*types.WorkoutSession, error) {
	now := s.now()
	var out *types.WorkoutSession
	err := s.withScope(ctx, func(scope types.Scope) error {
		var err error
		out, err = scope.Sessions().Update(sessionRow, func(x *types.WorkoutSession) {
			end := now
			x.EndTime = &end
			x.IsCompleted = true
			x.UpdatedAt = now
			if !x.NeedsSync() {
				x.MarkPending()
			}
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session completed", "session", out.SessionID)
	return out, nil
}

// ListSessions returns sessions newest start first. limit <= 0 returns all.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]*types.WorkoutSession, error) {
	var out []*types.WorkoutSession
	err := s.withScope(ctx, func(scope types.Scope) error {
		var err error
		out, err = scope.Sessions().Fetch(types.SessionFilter{Order: types.OrderStartDesc, Limit: limit})
		return err
	})
	return out, err
}

// Sets returns the sets of a session in set number order.
func (s *Service) Sets(ctx context.Context, sessionRow int64) ([]*types.WorkoutSet, error) {
	var out []*types.WorkoutSet
	err := s.withScope(ctx, func(scope types.Scope) error {
		var err error
		out, err = scope.Sets().Fetch(types.SetFilter{SessionRow: &sessionRow, Order: types.OrderSetNumberAsc})
		return err
	})
	return out, err
}

// ListExercises returns every exercise sorted by name.
func (s *Service) ListExercises(ctx context.Context) ([]*types.Exercise, error) {
	var out []*types.Exercise
	err := s.withScope(ctx, func(scope types.Scope) error {
		var err error
		out, err = scope.Exercises().Fetch(types.ExerciseFilter{Order: types.OrderNameAsc})
		return err
	})
	return out, err
}

// FindExercise returns the oldest exercise whose normalized name matches
// name, or types.ErrNotFound.
func (s *Service) FindExercise(ctx context.Context, name string) (*types.Exercise, error) {
	key := types.NormalizeName(name)
	if strings.TrimSpace(key) == "" {
		return nil, types.ErrNotFound
	}
	var out *types.Exercise
	err := s.withScope(ctx, func(scope types.Scope) error {
		found, err := scope.Exercises().Fetch(types.ExerciseFilter{NameKey: &key, Order: types.OrderCreatedAsc, Limit: 1})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return types.ErrNotFound
		}
		out = found[0]
		return nil
	})
	return out, err
}

// Preferences returns the stored preferences, or the defaults when none
// are stored.
func (s *Service) Preferences(ctx context.Context) (*types.UserPreferences, error) {
	var out *types.UserPreferences
	err := s.withScope(ctx, func(scope types.Scope) error {
		var err error
		out, err = scope.Preferences().Current()
		return err
	})
	if errors.Is(err, types.ErrNotFound) {
		return types.DefaultPreferences(), nil
	}
	return out, err
}

// EnsureDefaults seeds preferences and the built-in exercises. Failures are
// logged and swallowed.
func (s *Service) EnsureDefaults(ctx context.Context) {
	err := s.withScope(ctx, func(scope types.Scope) error {
		return seed(scope, s.now())
	})
	if err != nil {
		s.logger.Error("seeding defaults failed", "error", err)
		return
	}
	s.logger.Debug("defaults in place")
}
