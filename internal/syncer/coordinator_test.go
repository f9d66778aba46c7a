package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/liftsync/internal/healthsink"
	"github.com/mesh-intelligence/liftsync/internal/sqlite"
	"github.com/mesh-intelligence/liftsync/internal/transport"
	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

func setupStore(t *testing.T) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func withScope(t *testing.T, store types.Store, fn func(s types.Scope)) {
	t.Helper()
	s, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer s.Close()
	fn(s)
	require.NoError(t, s.SaveChangesIfAny())
}

var base = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

// addSession stores a pending session created at base+offset with one set
// of bench press, and returns it.
func addSession(t *testing.T, store types.Store, offset time.Duration, completed bool) *types.WorkoutSession {
	t.Helper()
	var out *types.WorkoutSession
	withScope(t, store, func(s types.Scope) {
		key := types.NormalizeName("ベンチプレス")
		found, err := s.Exercises().Fetch(types.ExerciseFilter{NameKey: &key})
		require.NoError(t, err)
		var bench *types.Exercise
		if len(found) > 0 {
			bench = found[0]
		} else {
			bench = &types.Exercise{Name: "ベンチプレス", Category: "胸"}
			require.NoError(t, s.Exercises().Create(bench))
		}

		created := base.Add(offset)
		session := &types.WorkoutSession{StartTime: created, CreatedAt: created, IsCompleted: completed, TotalCalories: 150}
		if completed {
			end := created.Add(40 * time.Minute)
			session.EndTime = &end
		}
		require.NoError(t, s.Sessions().Create(session))
		require.NoError(t, s.Sets().Create(&types.WorkoutSet{
			Weight: 80, Repetitions: 6, SetNumber: 1, IsCompleted: true,
			SessionRow: &session.RowID, ExerciseRow: &bench.RowID,
		}))
		out = session
	})
	return out
}

func getSession(t *testing.T, store types.Store, rowID int64) *types.WorkoutSession {
	t.Helper()
	var out *types.WorkoutSession
	withScope(t, store, func(s types.Scope) {
		var err error
		out, err = s.Sessions().Get(rowID)
		require.NoError(t, err)
	})
	return out
}

// fakeTransport records sent sessions and fails or blocks on demand.
type fakeTransport struct {
	mu        sync.Mutex
	reachable bool
	sent      []string
	failFor   map[string]error
	status    wire.Status
	entered   chan struct{}
	release   chan struct{}
	handler   transport.Handler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reachable: true, failFor: map[string]error{}, status: wire.StatusSuccess}
}

func (f *fakeTransport) Reachable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

func (f *fakeTransport) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	ch <- f.Reachable()
	return ch, func() {}
}

func (f *fakeTransport) OnMessage(h transport.Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeTransport) SendAndAwaitReply(ctx context.Context, m wire.Message) (wire.Reply, error) {
	f.mu.Lock()
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	var p wire.SessionPayload
	if m.Type == wire.TypeWorkoutSession {
		if err := json.Unmarshal(m.Data, &p); err != nil {
			return wire.Reply{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[p.SessionID]; ok {
		return wire.Reply{}, types.NewOpError("transport.send", types.ErrTransport, err)
	}
	f.sent = append(f.sent, p.SessionID)
	return wire.Reply{Status: f.status}, nil
}

func (f *fakeTransport) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestSyncUnreachableIsNoop(t *testing.T) {
	store := setupStore(t)
	addSession(t, store, 0, true)
	ft := newFakeTransport()
	ft.reachable = false
	c := NewCoordinator(store, ft)

	require.NoError(t, c.SyncPendingData(context.Background()))
	assert.Empty(t, ft.sentIDs())
	assert.Equal(t, PhaseIdle, c.Status().Phase)
	assert.Nil(t, c.Status().LastSyncDate)
}

func TestSyncSendsOldestFirstAndMarksSynced(t *testing.T) {
	store := setupStore(t)
	later := addSession(t, store, time.Hour, true)
	earlier := addSession(t, store, 0, false)
	ft := newFakeTransport()
	c := NewCoordinator(store, ft, WithClock(func() time.Time { return base.Add(24 * time.Hour) }))

	require.NoError(t, c.SyncPendingData(context.Background()))
	assert.Equal(t, []string{earlier.SessionID, later.SessionID}, ft.sentIDs())

	for _, s := range []*types.WorkoutSession{earlier, later} {
		got := getSession(t, store, s.RowID)
		assert.Equal(t, types.SyncSynced, got.SyncStatus)
		require.NotNil(t, got.LastSyncedAt)
		assert.True(t, got.LastSyncedAt.Equal(base.Add(24*time.Hour)))
	}
	status := c.Status()
	assert.Equal(t, PhaseSuccess, status.LastResult)
	assert.Equal(t, PhaseIdle, status.Phase)
	assert.Zero(t, status.PendingCount)
	require.NotNil(t, status.LastSyncDate)

	require.NoError(t, c.SyncPendingData(context.Background()))
	assert.Len(t, ft.sentIDs(), 2, "nothing left to send")
}

func TestSyncResumeSafety(t *testing.T) {
	store := setupStore(t)
	a := addSession(t, store, 0, true)
	b := addSession(t, store, time.Minute, true)
	cs := addSession(t, store, 2*time.Minute, true)

	ft := newFakeTransport()
	ft.failFor[b.SessionID] = errors.New("peer went away")
	c := NewCoordinator(store, ft)

	err := c.SyncPendingData(context.Background())
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Equal(t, types.SyncSynced, getSession(t, store, a.RowID).SyncStatus)
	assert.Equal(t, types.SyncPending, getSession(t, store, b.RowID).SyncStatus)
	assert.Equal(t, types.SyncPending, getSession(t, store, cs.RowID).SyncStatus)
	status := c.Status()
	assert.Equal(t, PhaseFailed, status.LastResult)
	assert.Equal(t, PhaseIdle, status.Phase, "a failed cycle returns to idle")
	assert.NotEmpty(t, status.LastError)
	assert.Equal(t, 2, status.PendingCount)

	ft.mu.Lock()
	delete(ft.failFor, b.SessionID)
	ft.sent = nil
	ft.mu.Unlock()

	require.NoError(t, c.SyncPendingData(context.Background()))
	assert.Equal(t, []string{b.SessionID, cs.SessionID}, ft.sentIDs())
	assert.Equal(t, PhaseSuccess, c.Status().LastResult)
	assert.Empty(t, c.Status().LastError)
}

func TestSyncRejectedReplyFailsCycle(t *testing.T) {
	store := setupStore(t)
	s := addSession(t, store, 0, true)
	ft := newFakeTransport()
	ft.status = wire.StatusError
	c := NewCoordinator(store, ft)

	err := c.SyncPendingData(context.Background())
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Equal(t, types.SyncPending, getSession(t, store, s.RowID).SyncStatus)
	assert.Equal(t, PhaseFailed, c.Status().LastResult)
}

func TestSyncNoOverlap(t *testing.T) {
	store := setupStore(t)
	addSession(t, store, 0, true)
	ft := newFakeTransport()
	ft.entered = make(chan struct{})
	ft.release = make(chan struct{})
	c := NewCoordinator(store, ft)

	done := make(chan error, 1)
	go func() { done <- c.SyncPendingData(context.Background()) }()
	<-ft.entered
	assert.Equal(t, PhaseSyncing, c.Status().Phase)

	// The second call returns at once without sending.
	require.NoError(t, c.SyncPendingData(context.Background()))

	ft.mu.Lock()
	ft.entered = nil
	ft.mu.Unlock()
	close(ft.release)
	require.NoError(t, <-done)
	assert.Len(t, ft.sentIDs(), 1)
	assert.Equal(t, PhaseSuccess, c.Status().LastResult)
}

func TestMarkSessionForSync(t *testing.T) {
	store := setupStore(t)
	s := addSession(t, store, 0, true)
	c := NewCoordinator(store, newFakeTransport())
	require.NoError(t, c.SyncPendingData(context.Background()))
	require.Zero(t, c.Status().PendingCount)

	require.NoError(t, c.MarkSessionForSync(context.Background(), s.RowID))
	got := getSession(t, store, s.RowID)
	assert.Equal(t, types.SyncPending, got.SyncStatus)
	assert.Nil(t, got.LastSyncedAt)
	assert.Equal(t, 1, c.Status().PendingCount)

	assert.ErrorIs(t, c.MarkSessionForSync(context.Background(), 9999), types.ErrNotFound)
}

type fakeSink struct {
	mu    sync.Mutex
	saved []string
	fail  map[string]bool
	auth  error
}

func (s *fakeSink) SaveWorkout(_ context.Context, w healthsink.Workout) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[w.SessionID] {
		return "", types.NewOpError("healthsink.save", types.ErrSinkUnavailable, errors.New("offline"))
	}
	s.saved = append(s.saved, w.SessionID)
	return "ext-" + w.SessionID, nil
}

func (s *fakeSink) RequestAuthorization(context.Context) error { return s.auth }

func (s *fakeSink) CheckAuthorizationStatus(context.Context) (healthsink.AuthorizationStatus, error) {
	if s.auth != nil {
		return healthsink.StatusDenied, nil
	}
	return healthsink.StatusAuthorized, nil
}

func setHealth(t *testing.T, store types.Store, enabled bool) {
	t.Helper()
	withScope(t, store, func(s types.Scope) {
		p := types.DefaultPreferences()
		p.HealthEnabled = enabled
		require.NoError(t, s.Preferences().Create(p))
	})
}

func TestSyncExportsCompletedSessionsToHealth(t *testing.T) {
	store := setupStore(t)
	setHealth(t, store, true)
	done := addSession(t, store, 0, true)
	broken := addSession(t, store, time.Minute, true)
	open := addSession(t, store, 2*time.Minute, false)

	sink := &fakeSink{fail: map[string]bool{broken.SessionID: true}}
	c := NewCoordinator(store, newFakeTransport(), WithHealthSink(sink))

	require.NoError(t, c.SyncPendingData(context.Background()), "sink failures never fail the cycle")
	assert.Equal(t, PhaseSuccess, c.Status().LastResult)
	assert.Equal(t, []string{done.SessionID}, sink.saved)

	got := getSession(t, store, done.RowID)
	assert.True(t, got.IsSyncedToHealth)
	assert.Equal(t, "ext-"+done.SessionID, got.HealthWorkoutID)
	assert.False(t, getSession(t, store, broken.RowID).IsSyncedToHealth)
	assert.False(t, getSession(t, store, open.RowID).IsSyncedToHealth)
}

func TestSyncSkipsHealthExport(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		auth    error
	}{
		{"preference off", false, nil},
		{"authorization denied", true, types.ErrSinkAuthorizationDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupStore(t)
			setHealth(t, store, tt.enabled)
			addSession(t, store, 0, true)
			sink := &fakeSink{auth: tt.auth}
			c := NewCoordinator(store, newFakeTransport(), WithHealthSink(sink))

			require.NoError(t, c.SyncPendingData(context.Background()))
			assert.Empty(t, sink.saved)
			assert.Equal(t, PhaseSuccess, c.Status().LastResult)
		})
	}
}

func TestSyncExportsWithDefaultPreferences(t *testing.T) {
	store := setupStore(t)
	done := addSession(t, store, 0, true)
	sink := &fakeSink{}
	c := NewCoordinator(store, newFakeTransport(), WithHealthSink(sink))

	require.NoError(t, c.SyncPendingData(context.Background()))
	assert.Equal(t, []string{done.SessionID}, sink.saved, "no saved preferences means health export is on")
	assert.True(t, getSession(t, store, done.RowID).IsSyncedToHealth)
}

func TestSyncWithDisabledSinkStaysQuiet(t *testing.T) {
	store := setupStore(t)
	setHealth(t, store, true)
	s := addSession(t, store, 0, true)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := NewCoordinator(store, newFakeTransport(), WithLogger(logger), WithHealthSink(healthsink.Disabled{}))

	for range 3 {
		require.NoError(t, c.SyncPendingData(context.Background()))
	}
	assert.Equal(t, PhaseSuccess, c.Status().LastResult)
	assert.False(t, getSession(t, store, s.RowID).IsSyncedToHealth)
	assert.NotContains(t, buf.String(), "not authorized")
	assert.NotContains(t, buf.String(), "level=WARN")
}

func TestSyncPhaseReturnsToIdle(t *testing.T) {
	tests := []struct {
		name       string
		fail       bool
		wantResult Phase
		wantError  bool
	}{
		{"success", false, PhaseSuccess, false},
		{"failure", true, PhaseFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupStore(t)
			s := addSession(t, store, 0, true)
			ft := newFakeTransport()
			if tt.fail {
				ft.failFor[s.SessionID] = errors.New("peer went away")
			}
			c := NewCoordinator(store, ft)

			_ = c.SyncPendingData(context.Background())
			status := c.Status()
			assert.Equal(t, PhaseIdle, status.Phase)
			assert.Equal(t, tt.wantResult, status.LastResult)
			assert.Equal(t, tt.wantError, status.LastError != "")
			assert.Equal(t, !tt.fail, status.LastSyncDate != nil)
		})
	}
}

func TestRequestPeerSync(t *testing.T) {
	ft := newFakeTransport()
	c := NewCoordinator(setupStore(t), ft)
	require.NoError(t, c.RequestPeerSync(context.Background()))
	require.NoError(t, c.AnnounceHealthStatus(context.Background(), true))

	ft.status = wire.StatusUnknownType
	assert.ErrorIs(t, c.RequestPeerSync(context.Background()), types.ErrTransport)
}
