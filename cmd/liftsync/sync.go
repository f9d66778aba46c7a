package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/liftsync/internal/syncer"
	"github.com/mesh-intelligence/liftsync/internal/transport"
)

var (
	syncRequest bool
	syncTimeout time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Connect to the peer once and send pending sessions",
	Long: `Sync dials peer.url, sends every pending session oldest first and exits.
With --request it instead asks the peer to send its own pending sessions.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncRequest, "request", false, "ask the peer to sync instead of sending")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 30*time.Second, "overall deadline")
}

func runSync(cmd *cobra.Command, _ []string) error {
	wsCfg := cfg.Peer.WebSocket
	if wsCfg.URL == "" {
		return userErrorf("sync needs peer.url (or LIFTSYNC_PEER_URL)")
	}
	wsCfg.Role = transport.RoleDialer

	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sink, closeSink, err := healthSink()
	if err != nil {
		return err
	}
	defer closeSink()

	peer := transport.NewWebSocket(wsCfg, transport.WithLogger(logger))
	if err := peer.Activate(ctx); err != nil {
		return err
	}
	defer peer.Close()

	coord := syncer.NewCoordinator(a.store, peer, syncer.WithLogger(logger), syncer.WithHealthSink(sink))
	if err := awaitReachable(ctx, peer); err != nil {
		return err
	}

	if syncRequest {
		err = coord.RequestPeerSync(ctx)
	} else {
		err = coord.SyncPendingData(ctx)
	}
	status := coord.Status()
	if flagJSON {
		if jerr := printJSON(cmd.OutOrStdout(), status); jerr != nil {
			return jerr
		}
	} else if !syncRequest {
		result := status.LastResult
		if result == "" {
			result = status.Phase
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s, %d pending\n", result, status.PendingCount)
	} else if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "peer sync requested")
	}
	return err
}

func awaitReachable(ctx context.Context, peer *transport.WebSocket) error {
	reach, cancel := peer.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for peer: %w", ctx.Err())
		case r := <-reach:
			if r {
				return nil
			}
		}
	}
}
