package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mesh-intelligence/liftsync/internal/backup"
	"github.com/mesh-intelligence/liftsync/internal/healthsink"
	"github.com/mesh-intelligence/liftsync/internal/integrity"
	"github.com/mesh-intelligence/liftsync/internal/paths"
	"github.com/mesh-intelligence/liftsync/internal/workout"
	"github.com/mesh-intelligence/liftsync/pkg/sqlite"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// app holds the store and the services built on it for one command.
type app struct {
	dataDir  string
	store    types.Store
	workouts *workout.Service
	checker  *integrity.Checker
}

// openApp resolves the data directory, attaches the SQLite store and seeds
// the default catalog. The caller must call Close.
func openApp(ctx context.Context) (*app, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	store := sqlite.NewBackend()
	if err := store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}); err != nil {
		return nil, fmt.Errorf("attach store: %w", err)
	}
	a := &app{
		dataDir:  dataDir,
		store:    store,
		workouts: workout.NewService(store, workout.WithLogger(logger)),
		checker: integrity.NewChecker(store,
			integrity.WithLogger(logger),
			integrity.WithReseed(workout.SeedDefaults)),
	}
	a.workouts.EnsureDefaults(ctx)
	return a, nil
}

func (a *app) Close() error {
	return a.store.Detach()
}

// codec builds the backup codec, mirrored to S3 when configured.
func (a *app) codec(ctx context.Context) (*backup.Codec, error) {
	dir, err := paths.BackupDir(a.dataDir, cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("resolve backup dir: %w", err)
	}
	opts := []backup.Option{backup.WithLogger(logger)}
	if cfg.Mirror.Enabled {
		m, err := backup.NewS3Mirror(ctx, cfg.Mirror.S3)
		if err != nil {
			return nil, fmt.Errorf("backup mirror: %w", err)
		}
		opts = append(opts, backup.WithMirror(m))
	}
	return backup.NewCodec(a.store, dir, opts...), nil
}

// healthSink builds the configured sink. The returned close func is never
// nil.
func healthSink() (healthsink.Sink, func() error, error) {
	if cfg.Health.Sink != sinkKafka {
		return healthsink.Disabled{}, func() error { return nil }, nil
	}
	k, err := healthsink.NewKafka(cfg.Health.Kafka, logger)
	if err != nil {
		return nil, nil, userErrorf("health sink: %v", err)
	}
	return k, k.Close, nil
}

// pendingCounts reports how many sessions wait for the peer and for the
// health sink.
func pendingCounts(ctx context.Context, store types.Store) (toPeer, toHealth int, err error) {
	scope, err := store.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer scope.Close()
	yes := true
	if toPeer, err = scope.Sessions().Count(types.SessionFilter{NeedsSync: &yes}); err != nil {
		return 0, 0, err
	}
	if toHealth, err = scope.Sessions().Count(types.SessionFilter{ExportPending: &yes}); err != nil {
		return 0, 0, err
	}
	return toPeer, toHealth, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
