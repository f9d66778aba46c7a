// Package integrity detects and repairs structurally inconsistent workout
// records. Every pass is idempotent and commits before the next one begins.
package integrity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Report counts the repairs made by one Run.
type Report struct {
	OrphanedSetsAttached     int       `json:"orphaned_sets_attached"`
	OrphanedSetsDeleted      int       `json:"orphaned_sets_deleted"`
	MissingExercisesFixed    int       `json:"missing_exercises_fixed"`
	SessionsDateFixed        int       `json:"sessions_date_fixed"`
	DuplicateSessionsRemoved int       `json:"duplicate_sessions_removed"`
	StartedAt                time.Time `json:"started_at"`
	FinishedAt               time.Time `json:"finished_at"`
}

// Changes returns the total number of records touched.
func (r Report) Changes() int {
	return r.OrphanedSetsAttached + r.OrphanedSetsDeleted + r.MissingExercisesFixed +
		r.SessionsDateFixed + r.DuplicateSessionsRemoved
}

// ProgressFunc receives the completed fraction after each pass.
type ProgressFunc func(fraction float64)

// ReseedFunc recreates default data inside scope after an emergency reset.
type ReseedFunc func(ctx context.Context, scope types.Scope) error

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = logging.Component(l, "integrity") }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Checker) { c.progress = fn }
}

// WithReseed sets the function that restores default data after
// EmergencyReset.
func WithReseed(fn ReseedFunc) Option {
	return func(c *Checker) { c.reseed = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// Checker runs the repair passes against a Store.
type Checker struct {
	store    types.Store
	logger   *slog.Logger
	progress ProgressFunc
	reseed   ReseedFunc
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewChecker returns a Checker over store.
func NewChecker(store types.Store, opts ...Option) *Checker {
	c := &Checker{
		store:  store,
		logger: logging.Component(nil, "integrity"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastRun returns the completion time of the last successful Run.
func (c *Checker) LastRun() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, !c.lastRun.IsZero()
}

// pass is one repair step. It returns after mutating scope; the caller
// commits.
type pass struct {
	name string
	run  func(scope types.Scope, r *Report) error
}

// Run executes the four passes in order. A failure aborts the remaining
// passes; the passes already committed stay applied.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: c.now()}
	passes := []pass{
		{"orphaned sets", c.fixOrphanedSets},
		{"missing exercises", c.fixMissingExercises},
		{"inconsistent dates", c.fixInconsistentDates},
		{"duplicate sessions", c.removeDuplicateSessions},
	}

	c.logger.Info("integrity check started")
	for i, p := range passes {
		if err := c.runPass(ctx, p, &report); err != nil {
			c.logger.Error("integrity check failed", "pass", p.name, "error", err)
			return report, types.NewOpError("integrity."+p.name, types.ErrIntegrityCheckFailed, err)
		}
		if c.progress != nil {
			c.progress(float64(i+1) / float64(len(passes)))
		}
	}
	report.FinishedAt = c.now()

	c.mu.Lock()
	c.lastRun = report.FinishedAt
	c.mu.Unlock()

	c.logger.Info("integrity check completed", "changes", report.Changes())
	return report, nil
}

func (c *Checker) runPass(ctx context.Context, p pass, r *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	if err := p.run(scope, r); err != nil {
		return err
	}
	return scope.SaveChangesIfAny()
}
