package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/liftsync/internal/syncer"
	"github.com/mesh-intelligence/liftsync/internal/transport"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon",
	Long: `Serve keeps the peer session open and syncs pending sessions every
sync.interval and whenever the peer becomes reachable. A listener accepts
the peer on /peer; both roles expose /health and /metrics on peer.listen.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Session   string        `json:"session"`
	Reachable bool          `json:"reachable"`
	Sync      syncer.Status `json:"sync"`
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.checker.Run(ctx); err != nil {
		logger.Warn("startup integrity check failed", "error", err)
	}

	sink, closeSink, err := healthSink()
	if err != nil {
		return err
	}
	defer closeSink()
	if err := sink.RequestAuthorization(ctx); err != nil {
		logger.Warn("health sink authorization failed", "error", err)
	}

	peer := transport.NewWebSocket(cfg.Peer.WebSocket, transport.WithLogger(logger))
	defer peer.Close()
	coord := syncer.NewCoordinator(a.store, peer,
		syncer.WithLogger(logger),
		syncer.WithHealthSink(sink),
		syncer.WithInterval(cfg.Sync.Interval))

	if err := activate(ctx, peer); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return announceHealth(gctx, a, coord, peer) })

	if cfg.Peer.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Peer.Listen,
			Handler:           serveMux(coord, peer),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("serve stopped")
	return err
}

func serveMux(coord *syncer.Coordinator, peer *transport.WebSocket) *http.ServeMux {
	mux := http.NewServeMux()
	if cfg.Peer.WebSocket.Role != transport.RoleDialer {
		mux.Handle("/peer", peer.Handler())
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = printJSON(w, healthResponse{
			Session:   peer.State().String(),
			Reachable: peer.Reachable(),
			Sync:      coord.Status(),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// activate starts the session, retrying a failed dial with growing delays
// until it succeeds or ctx ends.
func activate(ctx context.Context, peer *transport.WebSocket) error {
	delay := cfg.Peer.WebSocket.InitialBackoff
	for {
		err := peer.Activate(ctx)
		if err == nil {
			return nil
		}
		logger.Warn("peer activation failed", "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.Peer.WebSocket.MaxBackoff {
			delay = cfg.Peer.WebSocket.MaxBackoff
		}
	}
}

// announceHealth tells the peer this device's health export preference each
// time it becomes reachable.
func announceHealth(ctx context.Context, a *app, coord *syncer.Coordinator, peer *transport.WebSocket) error {
	reach, cancel := peer.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-reach:
			if !r {
				continue
			}
			prefs, err := a.workouts.Preferences(ctx)
			if err != nil {
				logger.Warn("reading preferences failed", "error", err)
				continue
			}
			if err := coord.AnnounceHealthStatus(ctx, prefs.HealthEnabled); err != nil {
				logger.Warn("health status announcement failed", "error", err)
			}
		}
	}
}
