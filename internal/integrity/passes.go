// This file implements the four repair passes run by Checker.
package integrity

import (
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// fixOrphanedSets gives every set without a session a synthesized completed
// session. A set that has neither a session nor an exercise is deleted.
func (c *Checker) fixOrphanedSets(scope types.Scope, r *Report) error {
	orphans, err := scope.Sets().Fetch(types.SetFilter{NoSession: true, Order: types.OrderCreatedAsc})
	if err != nil {
		return err
	}
	for _, set := range orphans {
		if set.ExerciseRow == nil {
			if err := scope.Sets().Delete(set.RowID); err != nil {
				return err
			}
			c.logger.Warn("deleted set with no session and no exercise", "set_id", set.SetID)
			r.OrphanedSetsDeleted++
			continue
		}

		start := set.CreatedAt
		if start.IsZero() {
			start = c.now()
		}
		session := &types.WorkoutSession{
			StartTime:   start,
			CreatedAt:   start,
			UpdatedAt:   maxTime(start, c.now()),
			IsCompleted: true,
			SyncStatus:  types.SyncPending,
		}
		if err := scope.Sessions().Create(session); err != nil {
			return err
		}
		rowID := session.RowID
		if _, err := scope.Sets().Update(set.RowID, func(s *types.WorkoutSet) { s.SessionRow = &rowID }); err != nil {
			return err
		}
		c.logger.Info("created recovery session for orphaned set", "set_id", set.SetID, "session_id", session.SessionID)
		r.OrphanedSetsAttached++
	}
	return nil
}

// fixMissingExercises attaches every set without an exercise to the shared
// placeholder exercise.
func (c *Checker) fixMissingExercises(scope types.Scope, r *Report) error {
	sets, err := scope.Sets().Fetch(types.SetFilter{NoExercise: true})
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return nil
	}
	placeholder, err := placeholderExercise(scope, c.now())
	if err != nil {
		return err
	}
	rowID := placeholder.RowID
	for _, set := range sets {
		if _, err := scope.Sets().Update(set.RowID, func(s *types.WorkoutSet) { s.ExerciseRow = &rowID }); err != nil {
			return err
		}
		r.MissingExercisesFixed++
	}
	c.logger.Info("fixed sets with missing exercise references", "count", len(sets))
	return nil
}

// placeholderExercise returns the placeholder, creating it on first use.
func placeholderExercise(scope types.Scope, now time.Time) (*types.Exercise, error) {
	key := types.NormalizeName(types.PlaceholderExerciseName)
	found, err := scope.Exercises().Fetch(types.ExerciseFilter{NameKey: &key, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return found[0], nil
	}
	e := &types.Exercise{
		Name:      types.PlaceholderExerciseName,
		Category:  types.PlaceholderExerciseCategory,
		IsCustom:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := scope.Exercises().Create(e); err != nil {
		return nil, err
	}
	return e, nil
}

// fixInconsistentDates clamps updatedAt up to createdAt and resets an
// endTime earlier than startTime to one hour after the start.
func (c *Checker) fixInconsistentDates(scope types.Scope, r *Report) error {
	sessions, err := scope.Sessions().Fetch(types.SessionFilter{})
	if err != nil {
		return err
	}
	for _, s := range sessions {
		badUpdated := s.CreatedAt.After(s.UpdatedAt)
		badEnd := s.EndTime != nil && s.StartTime.After(*s.EndTime)
		if !badUpdated && !badEnd {
			continue
		}
		_, err := scope.Sessions().Update(s.RowID, func(x *types.WorkoutSession) {
			if badUpdated {
				x.UpdatedAt = x.CreatedAt
			}
			if badEnd {
				end := x.StartTime.Add(types.DefaultSessionDuration)
				x.EndTime = &end
			}
		})
		if err != nil {
			return err
		}
		r.SessionsDateFixed++
	}
	if r.SessionsDateFixed > 0 {
		c.logger.Info("fixed sessions with inconsistent dates", "count", r.SessionsDateFixed)
	}
	return nil
}

// removeDuplicateSessions keeps the earliest-created session for each
// SessionID and deletes the rest along with their sets.
func (c *Checker) removeDuplicateSessions(scope types.Scope, r *Report) error {
	sessions, err := scope.Sessions().Fetch(types.SessionFilter{Order: types.OrderCreatedAsc})
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		if !seen[s.SessionID] {
			seen[s.SessionID] = true
			continue
		}
		if err := scope.Sessions().Delete(s.RowID); err != nil {
			return err
		}
		r.DuplicateSessionsRemoved++
	}
	if r.DuplicateSessionsRemoved > 0 {
		c.logger.Info("removed duplicate sessions", "count", r.DuplicateSessionsRemoved)
	}
	return nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
