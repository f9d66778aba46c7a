package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/liftsync/internal/integrity"
	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// Mirror receives a copy of every backup file. Upload failures are logged
// and never fail the backup.
type Mirror interface {
	Upload(ctx context.Context, name string, body []byte) error
}

// Option configures a Codec.
type Option func(*Codec)

// WithMirror uploads each backup to m after the local write.
func WithMirror(m Mirror) Option {
	return func(c *Codec) { c.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) { c.logger = logging.Component(l, "backup") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// Codec creates backup files from a Store and restores them into it.
type Codec struct {
	store  types.Store
	dir    string
	mirror Mirror
	logger *slog.Logger
	now    func() time.Time
}

// NewCodec returns a Codec writing backups under dir.
func NewCodec(store types.Store, dir string, opts ...Option) *Codec {
	c := &Codec{
		store:  store,
		dir:    dir,
		logger: logging.Component(nil, "backup"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileName returns the backup file name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("workout_backup_%d.json", t.Unix())
}

// CreateBackup snapshots every session and exercise, writes the document
// atomically under the backup directory and returns its path. The store is
// not modified.
func (c *Codec) CreateBackup(ctx context.Context) (string, error) {
	doc, err := c.Snapshot(ctx)
	if err != nil {
		return "", types.NewOpError("backup.snapshot", types.ErrBackupFailed, err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return "", types.NewOpError("backup.encode", types.ErrBackupFailed, err)
	}
	name := FileName(doc.BackupDate)
	path := filepath.Join(c.dir, name)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", types.NewOpError("backup.write", types.ErrBackupFailed, err)
	}
	c.logger.Info("backup created", "path", path, "sessions", len(doc.Sessions), "exercises", len(doc.Exercises))

	if c.mirror != nil {
		if err := c.mirror.Upload(ctx, name, buf.Bytes()); err != nil {
			c.logger.Warn("backup mirror upload failed", "name", name, "error", err)
		} else {
			c.logger.Info("backup mirrored", "name", name)
		}
	}
	return path, nil
}

// Snapshot reads the store into a Document without writing anything.
func (c *Codec) Snapshot(ctx context.Context) (*Document, error) {
	scope, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	exercises, err := scope.Exercises().Fetch(types.ExerciseFilter{Order: types.OrderCreatedAsc})
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(exercises))
	doc := &Document{
		Version:    FormatVersion,
		BackupDate: c.now(),
		Sessions:   []wire.SessionPayload{},
		Exercises:  make([]ExerciseRecord, 0, len(exercises)),
	}
	for _, e := range exercises {
		names[e.RowID] = e.Name
		doc.Exercises = append(doc.Exercises, exerciseRecord(e))
	}

	sessions, err := scope.Sessions().Fetch(types.SessionFilter{Order: types.OrderCreatedAsc})
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		rowID := s.RowID
		sets, err := scope.Sets().Fetch(types.SetFilter{SessionRow: &rowID, Order: types.OrderSetNumberAsc})
		if err != nil {
			return nil, err
		}
		var payloads []wire.SetPayload
		for _, set := range sets {
			name := ""
			if set.ExerciseRow != nil {
				name = names[*set.ExerciseRow]
			}
			payloads = append(payloads, wire.FromSet(set, name))
		}
		doc.Sessions = append(doc.Sessions, wire.FromSession(s, payloads))
	}
	return doc, nil
}

// RestoreFromBackup restores the document stored at path.
func (c *Codec) RestoreFromBackup(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return types.NewOpError("backup.restore", types.ErrRestoreFailed, err)
	}
	defer f.Close()
	return c.Restore(ctx, f)
}

// Restore replaces every session with the sessions in the document read
// from r and merges its exercises by normalized name. Preferences are left
// alone. Restored sessions are pending and not exported. The whole restore
// commits once; on failure the store is unchanged.
func (c *Codec) Restore(ctx context.Context, r io.Reader) error {
	doc, err := Decode(r)
	if err != nil {
		return err
	}

	scope, err := c.store.Begin(ctx)
	if err != nil {
		return types.NewOpError("backup.restore", types.ErrRestoreFailed, err)
	}
	defer scope.Close()

	if err := c.apply(scope, doc); err != nil {
		return types.NewOpError("backup.restore", types.ErrRestoreFailed, err)
	}
	if err := scope.SaveChangesIfAny(); err != nil {
		return types.NewOpError("backup.restore", types.ErrRestoreFailed, err)
	}
	c.logger.Info("backup restored", "sessions", len(doc.Sessions), "exercises", len(doc.Exercises))
	return nil
}

func (c *Codec) apply(scope types.Scope, doc *Document) error {
	now := c.now()

	existing, err := scope.Sessions().Fetch(types.SessionFilter{})
	if err != nil {
		return err
	}
	for _, s := range existing {
		if err := scope.Sessions().Delete(s.RowID); err != nil {
			return err
		}
	}

	for _, rec := range doc.Exercises {
		e := rec.toExercise(now)
		if e.Name == "" {
			continue
		}
		key := e.NameKey()
		n, err := scope.Exercises().Count(types.ExerciseFilter{NameKey: &key})
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if err := scope.Exercises().Create(e); err != nil {
			return err
		}
	}

	for _, p := range doc.Sessions {
		session := p.ToSession(now)
		session.MarkPending()
		session.IsSyncedToHealth = false
		session.HealthWorkoutID = ""
		if err := scope.Sessions().Create(session); err != nil {
			return err
		}
		sessionRow := session.RowID
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
	}
	return nil
}
