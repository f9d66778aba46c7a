package syncer

import (
	"context"

	"github.com/mesh-intelligence/liftsync/internal/integrity"
	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Handle answers one message from the peer. It is registered on the
// transport by NewCoordinator.
func (c *Coordinator) Handle(ctx context.Context, m wire.Message) wire.Reply {
	v, err := wire.Decode(m)
	if err != nil {
		c.logger.Warn("rejecting malformed message", "type", m.Type, "error", err)
		return wire.ErrorReply(err)
	}

	switch v := v.(type) {
	case wire.WorkoutSession:
		if err := c.Ingest(ctx, v.Session); err != nil {
			c.logger.Error("ingesting session failed", "session", v.Session.SessionID, "error", err)
			return wire.ErrorReply(err)
		}
		return wire.Reply{Status: wire.StatusSuccess}
	case wire.SyncRequest:
		if err := c.SyncPendingData(ctx); err != nil {
			c.logger.Warn("peer-requested sync failed", "error", err)
		}
		return wire.Reply{Status: wire.StatusSuccess}
	case wire.HealthKitStatus:
		enabled := v.Enabled
		c.mu.Lock()
		c.status.PeerHealthEnabled = &enabled
		c.mu.Unlock()
		c.logger.Info("peer health export status", "enabled", enabled)
		return wire.Reply{Status: wire.StatusReceived}
	default:
		c.logger.Info("unknown message type", "type", m.Type)
		return wire.Reply{Status: wire.StatusUnknownType}
	}
}

// Ingest stores a session received from the peer. A session with the same
// SessionID replaces the local one and its sets; further local copies with
// that id are removed. The stored session counts as synced and not yet
// exported. Each set's exercise is resolved by name.
func (c *Coordinator) Ingest(ctx context.Context, p wire.SessionPayload) error {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	now := c.now()
	incoming := p.ToSession(now)
	incoming.MarkSynced(now)
	incoming.IsSyncedToHealth = false
	incoming.HealthWorkoutID = ""

	sessionRow, err := upsertSession(scope, incoming)
	if err != nil {
		return err
	}
	for _, sp := range p.WorkoutSets {
		ex, err := integrity.ResolveExercise(scope, sp.ExerciseName, now)
		if err != nil {
			return err
		}
		exerciseRow := ex.RowID
		set := sp.ToSet(now)
		set.SessionRow = &sessionRow
		set.ExerciseRow = &exerciseRow
		if err := scope.Sets().Create(set); err != nil {
			return err
		}
	}
	if err := scope.SaveChangesIfAny(); err != nil {
		return err
	}
	sessionsIngested.Inc()
	c.logger.Debug("session ingested", "session", incoming.SessionID, "sets", len(p.WorkoutSets))
	return nil
}

// upsertSession writes s over the oldest local session sharing its id, or
// inserts it, and returns the row id. The replaced session loses its sets.
func upsertSession(scope types.Scope, s *types.WorkoutSession) (int64, error) {
	id := s.SessionID
	existing, err := scope.Sessions().Fetch(types.SessionFilter{SessionID: &id, Order: types.OrderCreatedAsc})
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		if err := scope.Sessions().Create(s); err != nil {
			return 0, err
		}
		return s.RowID, nil
	}

	keep := existing[0].RowID
	for _, dup := range existing[1:] {
		if err := scope.Sessions().Delete(dup.RowID); err != nil {
			return 0, err
		}
	}
	sets, err := scope.Sets().Fetch(types.SetFilter{SessionRow: &keep})
	if err != nil {
		return 0, err
	}
	for _, set := range sets {
		if err := scope.Sets().Delete(set.RowID); err != nil {
			return 0, err
		}
	}
	if _, err := scope.Sessions().Update(keep, func(x *types.WorkoutSession) { *x = *s }); err != nil {
		return 0, err
	}
	s.RowID = keep
	return keep, nil
}
