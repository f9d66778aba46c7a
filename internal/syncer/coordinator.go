// Package syncer moves pending workout sessions to the paired device and
// stores the sessions the peer sends back. At most one sync cycle runs at a
// time; each acknowledged session is committed before the next is sent, so
// an interrupted cycle resumes where it stopped.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mesh-intelligence/liftsync/internal/healthsink"
	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/internal/transport"
	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// DefaultInterval is the period of the background sync trigger.
const DefaultInterval = 5 * time.Minute

// Transport is the peer session the coordinator sends through.
type Transport interface {
	Reachable() bool
	Subscribe() (<-chan bool, func())
	SendAndAwaitReply(ctx context.Context, m wire.Message) (wire.Reply, error)
	OnMessage(h transport.Handler)
}

// Phase is the coordinator's state.
type Phase string

// Phases.
const (
	PhaseIdle    Phase = "idle"
	PhaseSyncing Phase = "syncing"
	PhaseSuccess Phase = "success"
	PhaseFailed  Phase = "failed"
)

// Status is a snapshot of the coordinator. Phase is syncing while a cycle
// runs and idle otherwise; LastResult keeps the outcome of the latest cycle.
type Status struct {
	Phase             Phase      `json:"phase"`
	LastResult        Phase      `json:"last_result,omitempty"`
	LastSyncDate      *time.Time `json:"last_sync_date,omitempty"`
	PendingCount      int        `json:"pending_count"`
	LastError         string     `json:"last_error,omitempty"`
	PeerHealthEnabled *bool      `json:"peer_health_enabled,omitempty"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.Component(l, "sync") }
}

// WithHealthSink enables health export through s when the user preference
// allows it. A healthsink.Disabled sink leaves export off.
func WithHealthSink(s healthsink.Sink) Option {
	return func(c *Coordinator) {
		switch s.(type) {
		case healthsink.Disabled, *healthsink.Disabled:
			c.sink = nil
		default:
			c.sink = s
		}
	}
}

// WithInterval sets the period used by Run.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator runs sync cycles against one store and one transport.
type Coordinator struct {
	store     types.Store
	transport Transport
	sink      healthsink.Sink
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	running atomic.Bool

	mu     sync.Mutex
	status Status
}

// NewCoordinator returns a coordinator and registers its handler for
// inbound peer messages on t.
func NewCoordinator(store types.Store, t Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		transport: t,
		logger:    logging.Component(nil, "sync"),
		interval:  DefaultInterval,
		now:       func() time.Time { return time.Now().UTC() },
		status:    Status{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	t.OnMessage(c.Handle)
	return c
}

// Status returns a copy of the current status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	if s.LastSyncDate != nil {
		d := *s.LastSyncDate
		s.LastSyncDate = &d
	}
	if s.PeerHealthEnabled != nil {
		v := *s.PeerHealthEnabled
		s.PeerHealthEnabled = &v
	}
	return s
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Phase = p
}

// finish records the outcome of a cycle and returns the phase to idle.
func (c *Coordinator) finish(result Phase, err error, syncedAt *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Phase = PhaseIdle
	c.status.LastResult = result
	if err != nil {
		c.status.LastError = err.Error()
	} else {
		c.status.LastError = ""
	}
	if syncedAt != nil {
		c.status.LastSyncDate = syncedAt
	}
}

// SyncPendingData runs one cycle. It returns nil without doing anything
// when the peer is unreachable or another cycle is in flight. A transport
// failure stops the cycle, leaves unsent sessions pending and is returned.
func (c *Coordinator) SyncPendingData(ctx context.Context) error {
	if !c.transport.Reachable() {
		c.logger.Debug("peer unreachable, skipping sync")
		return nil
	}
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("sync already in progress")
		return nil
	}
	defer c.running.Store(false)

	c.setPhase(PhaseSyncing)
	start := time.Now()
	err := c.runCycle(ctx)
	cycleDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		cyclesTotal.WithLabelValues("failed").Inc()
		c.finish(PhaseFailed, err, nil)
		c.logger.Warn("sync cycle failed", "error", err)
		c.refreshPending(ctx)
		return err
	}

	now := c.now()
	c.finish(PhaseSuccess, nil, &now)
	cyclesTotal.WithLabelValues("success").Inc()
	pending := c.refreshPending(ctx)
	c.logger.Info("sync cycle complete", "pending", pending, "duration", time.Since(start))
	return nil
}

func (c *Coordinator) runCycle(ctx context.Context) error {
	pending, err := c.pendingSessions(ctx)
	if err != nil {
		return err
	}
	for _, rowID := range pending {
		msg, err := c.encodeSession(ctx, rowID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		reply, err := c.transport.SendAndAwaitReply(ctx, msg)
		if err != nil {
			sendFailures.Inc()
			return err
		}
		if !reply.OK() {
			sendFailures.Inc()
			return types.NewOpError("sync.send", types.ErrTransport,
				fmt.Errorf("peer replied %s: %s", reply.Status, reply.Error))
		}
		if err := c.markSynced(ctx, rowID); err != nil {
			return err
		}
		sessionsSent.Inc()
	}

	c.exportToHealth(ctx)
	return nil
}

// pendingSessions returns the row ids of sessions waiting to be sent,
// oldest first.
func (c *Coordinator) pendingSessions(ctx context.Context) ([]int64, error) {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	needsSync := true
	sessions, err := scope.Sessions().Fetch(types.SessionFilter{NeedsSync: &needsSync, Order: types.OrderCreatedAsc})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(sessions))
	for i, s := range sessions {
		ids[i] = s.RowID
	}
	return ids, nil
}

// encodeSession builds the workoutSession message for a stored session.
// The scope is closed before the caller sends.
func (c *Coordinator) encodeSession(ctx context.Context, rowID int64) (wire.Message, error) {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return wire.Message{}, err
	}
	defer scope.Close()

	s, err := scope.Sessions().Get(rowID)
	if err != nil {
		return wire.Message{}, err
	}
	sets, err := scope.Sets().Fetch(types.SetFilter{SessionRow: &rowID, Order: types.OrderSetNumberAsc})
	if err != nil {
		return wire.Message{}, err
	}
	names := map[int64]string{}
	payloads := make([]wire.SetPayload, 0, len(sets))
	for _, set := range sets {
		name := ""
		if set.ExerciseRow != nil {
			n, ok := names[*set.ExerciseRow]
			if !ok {
				e, err := scope.Exercises().Get(*set.ExerciseRow)
				if err != nil && !errors.Is(err, types.ErrNotFound) {
					return wire.Message{}, err
				}
				if e != nil {
					n = e.Name
				}
				names[*set.ExerciseRow] = n
			}
			name = n
		}
		payloads = append(payloads, wire.FromSet(set, name))
	}
	return wire.NewWorkoutSession(wire.FromSession(s, payloads))
}

func (c *Coordinator) markSynced(ctx context.Context, rowID int64) error {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	now := c.now()
	if _, err := scope.Sessions().Update(rowID, func(s *types.WorkoutSession) { s.MarkSynced(now) }); err != nil {
		return err
	}
	return scope.SaveChangesIfAny()
}

// exportToHealth pushes completed, unexported sessions to the sink. Every
// failure is logged and skipped.
func (c *Coordinator) exportToHealth(ctx context.Context) {
	if c.sink == nil || !c.healthEnabled(ctx) {
		return
	}
	if err := c.sink.RequestAuthorization(ctx); err != nil {
		healthExports.WithLabelValues("skipped").Inc()
		c.logger.Warn("health export not authorized", "error", err)
		return
	}

	sessions, err := c.exportPending(ctx)
	if err != nil {
		c.logger.Warn("listing sessions for health export failed", "error", err)
		return
	}
	for _, s := range sessions {
		externalID, err := c.sink.SaveWorkout(ctx, healthsink.WorkoutFromSession(s))
		if err != nil {
			healthExports.WithLabelValues("failed").Inc()
			c.logger.Warn("health export failed", "session", s.SessionID, "error", err)
			continue
		}
		if err := c.markExported(ctx, s.RowID, externalID); err != nil {
			healthExports.WithLabelValues("failed").Inc()
			c.logger.Warn("recording health export failed", "session", s.SessionID, "error", err)
			continue
		}
		healthExports.WithLabelValues("success").Inc()
	}
}

// healthEnabled reads the user preference. A store that has never saved
// preferences uses the defaults.
func (c *Coordinator) healthEnabled(ctx context.Context) bool {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		c.logger.Warn("reading health preference failed", "error", err)
		return false
	}
	defer scope.Close()
	prefs, err := scope.Preferences().Current()
	if errors.Is(err, types.ErrNotFound) {
		return types.DefaultPreferences().HealthEnabled
	}
	if err != nil {
		c.logger.Warn("reading health preference failed", "error", err)
		return false
	}
	return prefs.HealthEnabled
}

func (c *Coordinator) exportPending(ctx context.Context) ([]*types.WorkoutSession, error) {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Close()
	exportPending := true
	return scope.Sessions().Fetch(types.SessionFilter{ExportPending: &exportPending, Order: types.OrderCreatedAsc})
}

func (c *Coordinator) markExported(ctx context.Context, rowID int64, externalID string) error {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()
	if _, err := scope.Sessions().Update(rowID, func(s *types.WorkoutSession) {
		s.IsSyncedToHealth = true
		s.HealthWorkoutID = externalID
	}); err != nil {
		return err
	}
	return scope.SaveChangesIfAny()
}

// refreshPending recounts the sessions waiting to be sent.
func (c *Coordinator) refreshPending(ctx context.Context) int {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		c.logger.Warn("counting pending sessions failed", "error", err)
		return c.Status().PendingCount
	}
	defer scope.Close()

	needsSync := true
	n, err := scope.Sessions().Count(types.SessionFilter{NeedsSync: &needsSync})
	if err != nil {
		c.logger.Warn("counting pending sessions failed", "error", err)
		return c.Status().PendingCount
	}
	c.mu.Lock()
	c.status.PendingCount = n
	c.mu.Unlock()
	pendingSessions.Set(float64(n))
	return n
}

// MarkSessionForSync re-queues a session that changed after it was sent.
func (c *Coordinator) MarkSessionForSync(ctx context.Context, rowID int64) error {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	if _, err := scope.Sessions().Update(rowID, func(s *types.WorkoutSession) { s.MarkPending() }); err != nil {
		return err
	}
	if err := scope.SaveChangesIfAny(); err != nil {
		return err
	}
	scope.Close()
	c.refreshPending(ctx)
	return nil
}

// RequestPeerSync asks the peer to run a cycle of its own.
func (c *Coordinator) RequestPeerSync(ctx context.Context) error {
	return c.send(ctx, wire.NewSyncRequest())
}

// AnnounceHealthStatus tells the peer whether health export is enabled on
// this device.
func (c *Coordinator) AnnounceHealthStatus(ctx context.Context, enabled bool) error {
	return c.send(ctx, wire.NewHealthKitStatus(enabled))
}

func (c *Coordinator) send(ctx context.Context, m wire.Message) error {
	reply, err := c.transport.SendAndAwaitReply(ctx, m)
	if err != nil {
		return err
	}
	if !reply.OK() {
		return types.NewOpError("sync.send", types.ErrTransport,
			fmt.Errorf("peer replied %s to %s: %s", reply.Status, m.Type, reply.Error))
	}
	return nil
}

// Run triggers a cycle every interval and whenever the peer becomes
// reachable with work pending, until ctx ends.
func (c *Coordinator) Run(ctx context.Context) error {
	reach, cancel := c.transport.Subscribe()
	defer cancel()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refreshPending(ctx)
	wasReachable := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = c.SyncPendingData(ctx)
		case r := <-reach:
			if r && !wasReachable && c.refreshPending(ctx) > 0 {
				c.logger.Info("peer reachable with pending sessions")
				_ = c.SyncPendingData(ctx)
			}
			wasReachable = r
		}
	}
}
