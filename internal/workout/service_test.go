package workout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/liftsync/internal/integrity"
	"github.com/mesh-intelligence/liftsync/internal/sqlite"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

func setupStore(t *testing.T) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

// stepClock returns a clock that advances one minute per call.
func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

var start = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func TestEnsureDefaultsIdempotent(t *testing.T) {
	store := setupStore(t)
	svc := NewService(store)
	ctx := context.Background()

	svc.EnsureDefaults(ctx)
	svc.EnsureDefaults(ctx)

	exercises, err := svc.ListExercises(ctx)
	require.NoError(t, err)
	assert.Len(t, exercises, len(defaultExercises))
	for _, e := range exercises {
		assert.False(t, e.IsCustom, e.Name)
		assert.NotEmpty(t, e.Category, e.Name)
	}

	prefs, err := svc.Preferences(ctx)
	require.NoError(t, err)
	assert.NotZero(t, prefs.RowID, "preferences stored")
	assert.Equal(t, types.DefaultRestTime, prefs.DefaultRestTime)
	assert.Equal(t, types.DefaultPreferredUnit, prefs.PreferredUnit)
}

func TestEnsureDefaultsRepairsCatalog(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	scope, err := store.Begin(ctx)
	require.NoError(t, err)
	// A custom exercise that collides with a built-in name, and a duplicate
	// built-in that owns a set.
	require.NoError(t, scope.Exercises().Create(&types.Exercise{Name: "スクワット", IsCustom: true, CreatedAt: start}))
	require.NoError(t, scope.Exercises().Create(&types.Exercise{Name: "デッドリフト", CreatedAt: start}))
	dup := &types.Exercise{Name: " デッドリフト ", CreatedAt: start.Add(time.Hour)}
	require.NoError(t, scope.Exercises().Create(dup))
	require.NoError(t, scope.Sets().Create(&types.WorkoutSet{Weight: 140, Repetitions: 3, SetNumber: 1, ExerciseRow: &dup.RowID}))
	require.NoError(t, scope.SaveChangesIfAny())
	require.NoError(t, scope.Close())

	NewService(store).EnsureDefaults(ctx)

	scope, err = store.Begin(ctx)
	require.NoError(t, err)
	defer scope.Close()

	squatKey := types.NormalizeName("スクワット")
	squats, err := scope.Exercises().Fetch(types.ExerciseFilter{NameKey: &squatKey})
	require.NoError(t, err)
	require.Len(t, squats, 1)
	assert.False(t, squats[0].IsCustom)
	assert.Equal(t, "脚", squats[0].Category)

	deadKey := types.NormalizeName("デッドリフト")
	deads, err := scope.Exercises().Fetch(types.ExerciseFilter{NameKey: &deadKey})
	require.NoError(t, err)
	require.Len(t, deads, 1)
	survivor := deads[0].RowID
	n, err := scope.Sets().Count(types.SetFilter{ExerciseRow: &survivor})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "set moved to the surviving exercise")

	total, err := scope.Exercises().Count(types.ExerciseFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(defaultExercises), total)
}

func TestSessionLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	svc := NewService(store, WithClock(stepClock(start)))
	svc.EnsureDefaults(ctx)

	bench, err := svc.FindExercise(ctx, "ベンチプレス")
	require.NoError(t, err)
	squat, err := svc.FindExercise(ctx, "スクワット")
	require.NoError(t, err)

	session, err := svc.StartSession(ctx)
	require.NoError(t, err)
	assert.False(t, session.IsCompleted)
	assert.Equal(t, types.SyncPending, session.SyncStatus)

	first, err := svc.AddSet(ctx, session.RowID, bench.RowID, 60, 10)
	require.NoError(t, err)
	second, err := svc.AddSet(ctx, session.RowID, squat.RowID, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SetNumber)
	assert.Equal(t, 2, second.SetNumber)
	assert.True(t, second.IsCompleted)

	done, err := svc.CompleteSession(ctx, session.RowID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.EndTime)
	assert.True(t, done.EndTime.After(done.StartTime))
	assert.True(t, done.UpdatedAt.Equal(*done.EndTime))

	sets, err := svc.Sets(ctx, session.RowID)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, first.RowID, sets[0].RowID)
}

func TestAddSetRequeuesSyncedSession(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	svc := NewService(store, WithClock(stepClock(start)))
	svc.EnsureDefaults(ctx)
	bench, err := svc.FindExercise(ctx, "ベンチプレス")
	require.NoError(t, err)

	session, err := svc.StartSession(ctx)
	require.NoError(t, err)

	scope, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = scope.Sessions().Update(session.RowID, func(s *types.WorkoutSession) { s.MarkSynced(start) })
	require.NoError(t, err)
	require.NoError(t, scope.SaveChangesIfAny())
	require.NoError(t, scope.Close())

	_, err = svc.AddSet(ctx, session.RowID, bench.RowID, 70, 8)
	require.NoError(t, err)

	scope, err = store.Begin(ctx)
	require.NoError(t, err)
	defer scope.Close()
	got, err := scope.Sessions().Get(session.RowID)
	require.NoError(t, err)
	assert.Equal(t, types.SyncPending, got.SyncStatus)
	assert.Nil(t, got.LastSyncedAt)
	assert.True(t, got.UpdatedAt.After(session.UpdatedAt))
}

func TestAddSetErrors(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	svc := NewService(store)
	svc.EnsureDefaults(ctx)
	bench, err := svc.FindExercise(ctx, "ベンチプレス")
	require.NoError(t, err)
	session, err := svc.StartSession(ctx)
	require.NoError(t, err)

	tests := []struct {
		name        string
		sessionRow  int64
		exerciseRow int64
		weight      float64
		reps        int
		want        error
	}{
		{"missing session", 9999, bench.RowID, 50, 5, types.ErrNotFound},
		{"missing exercise", session.RowID, 9999, 50, 5, types.ErrNotFound},
		{"zero reps", session.RowID, bench.RowID, 50, 0, types.ErrInvalidData},
		{"negative weight", session.RowID, bench.RowID, -1, 5, types.ErrInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddSet(ctx, tt.sessionRow, tt.exerciseRow, tt.weight, tt.reps)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	sets, err := svc.Sets(ctx, session.RowID)
	require.NoError(t, err)
	assert.Empty(t, sets, "failed adds leave nothing behind")
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	svc := NewService(store, WithClock(stepClock(start)))

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := svc.StartSession(ctx)
		require.NoError(t, err)
		ids = append(ids, s.SessionID)
	}

	all, err := svc.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].SessionID, all[1].SessionID, all[2].SessionID})

	two, err := svc.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestPreferencesDefaultWhenMissing(t *testing.T) {
	prefs, err := NewService(setupStore(t)).Preferences(context.Background())
	require.NoError(t, err)
	assert.Zero(t, prefs.RowID)
	assert.True(t, prefs.HealthEnabled)
}

func TestFindExerciseNotFound(t *testing.T) {
	svc := NewService(setupStore(t))
	_, err := svc.FindExercise(context.Background(), "ノルディックカール")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = svc.FindExercise(context.Background(), "  ")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSeedDefaultsAsReseed(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	svc := NewService(store)
	_, err := svc.StartSession(ctx)
	require.NoError(t, err)

	checker := integrity.NewChecker(store, integrity.WithReseed(SeedDefaults))
	require.NoError(t, checker.EmergencyReset(ctx))

	sessions, err := svc.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	exercises, err := svc.ListExercises(ctx)
	require.NoError(t, err)
	assert.Len(t, exercises, len(DefaultExerciseNames()))
}
