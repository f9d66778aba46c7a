package types

import "time"

// SyncStatus is the device-pair synchronization state of a session.
type SyncStatus string

// Sync states.
const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
)

// DefaultSessionDuration is the length given to a session whose end time
// cannot be trusted.
const DefaultSessionDuration = time.Hour

// WorkoutSession is one workout. It owns its sets: deleting a session deletes
// every set that references it.
type WorkoutSession struct {
	RowID            int64
	SessionID        string
	StartTime        time.Time
	EndTime          *time.Time
	IsCompleted      bool
	Notes            string
	TotalCalories    float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastSyncedAt     *time.Time
	SyncStatus       SyncStatus
	IsSyncedToHealth bool
	HealthWorkoutID  string
}

// NeedsSync reports whether the session is waiting to be sent to the peer.
func (s *WorkoutSession) NeedsSync() bool {
	return s.SyncStatus != SyncSynced || s.LastSyncedAt == nil
}

// MarkPending re-queues the session for synchronization.
func (s *WorkoutSession) MarkPending() {
	s.SyncStatus = SyncPending
	s.LastSyncedAt = nil
}

// MarkSynced records a successful transmission at t.
func (s *WorkoutSession) MarkSynced(t time.Time) {
	s.SyncStatus = SyncSynced
	s.LastSyncedAt = &t
}

// SessionFilter selects sessions. Nil fields match everything.
type SessionFilter struct {
	SessionID   *string
	IsCompleted *bool
	// NeedsSync selects sessions with SyncStatus pending or no LastSyncedAt.
	NeedsSync *bool
	// ExportPending selects completed sessions not yet written to the
	// health sink.
	ExportPending *bool
	Order         Order
	Limit         int
}
