// This file implements exercise deduplication and the emergency reset.
package integrity

import (
	"context"
	"strings"
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// ResolveExercise returns the exercise whose normalized name matches name,
// creating a custom exercise when none exists. A blank name resolves to the
// placeholder exercise. Calling it repeatedly with the same name inside one
// scope yields the same row.
func ResolveExercise(scope types.Scope, name string, now time.Time) (*types.Exercise, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return placeholderExercise(scope, now)
	}
	key := types.NormalizeName(name)
	found, err := scope.Exercises().Fetch(types.ExerciseFilter{NameKey: &key, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return found[0], nil
	}
	e := &types.Exercise{
		Name:      name,
		IsCustom:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := scope.Exercises().Create(e); err != nil {
		return nil, err
	}
	return e, nil
}

// RemoveDuplicateDefaultExercises keeps the oldest non-custom exercise for
// each normalized name and deletes the others. Sets pointing at a deleted
// duplicate are moved to the survivor first. It returns the number of
// exercises removed; the caller commits.
func RemoveDuplicateDefaultExercises(scope types.Scope) (int, error) {
	notCustom := false
	exercises, err := scope.Exercises().Fetch(types.ExerciseFilter{IsCustom: &notCustom, Order: types.OrderCreatedAsc})
	if err != nil {
		return 0, err
	}

	survivors := make(map[string]int64, len(exercises))
	removed := 0
	for _, e := range exercises {
		key := e.NameKey()
		if key == "" {
			continue
		}
		keep, ok := survivors[key]
		if !ok {
			survivors[key] = e.RowID
			continue
		}
		dupRow := e.RowID
		sets, err := scope.Sets().Fetch(types.SetFilter{ExerciseRow: &dupRow})
		if err != nil {
			return removed, err
		}
		for _, s := range sets {
			if _, err := scope.Sets().Update(s.RowID, func(x *types.WorkoutSet) { x.ExerciseRow = &keep }); err != nil {
				return removed, err
			}
		}
		if err := scope.Exercises().Delete(dupRow); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// EmergencyReset deletes every record of every kind in one unit of work and
// then recreates default data through the configured ReseedFunc.
func (c *Checker) EmergencyReset(ctx context.Context) error {
	c.logger.Warn("performing emergency reset")

	scope, err := c.store.Begin(ctx)
	if err != nil {
		return types.NewOpError("integrity.reset", types.ErrPersistence, err)
	}
	defer scope.Close()

	if err := wipe(scope); err != nil {
		return types.NewOpError("integrity.reset", types.ErrPersistence, err)
	}
	if err := scope.SaveChangesIfAny(); err != nil {
		return err
	}

	if c.reseed != nil {
		if err := c.reseed(ctx, scope); err != nil {
			return types.NewOpError("integrity.reseed", types.ErrPersistence, err)
		}
		if err := scope.SaveChangesIfAny(); err != nil {
			return err
		}
	}

	c.logger.Info("emergency reset completed")
	return nil
}

func wipe(scope types.Scope) error {
	sessions, err := scope.Sessions().Fetch(types.SessionFilter{})
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := scope.Sessions().Delete(s.RowID); err != nil {
			return err
		}
	}
	// Sets left behind here had no session.
	sets, err := scope.Sets().Fetch(types.SetFilter{})
	if err != nil {
		return err
	}
	for _, s := range sets {
		if err := scope.Sets().Delete(s.RowID); err != nil {
			return err
		}
	}
	exercises, err := scope.Exercises().Fetch(types.ExerciseFilter{})
	if err != nil {
		return err
	}
	for _, e := range exercises {
		if err := scope.Exercises().Delete(e.RowID); err != nil {
			return err
		}
	}
	return scope.Preferences().Delete()
}
