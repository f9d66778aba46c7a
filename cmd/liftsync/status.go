package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type localStatus struct {
	DataDir         string `json:"data_dir"`
	PendingSync     int    `json:"pending_sync"`
	PendingHealth   int    `json:"pending_health_export"`
	HealthEnabled   bool   `json:"health_enabled"`
	AutoSyncEnabled bool   `json:"auto_sync_enabled"`
	HealthSink      string `json:"health_sink"`
	PeerRole        string `json:"peer_role"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is waiting to be synced or exported",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		toPeer, toHealth, err := pendingCounts(cmd.Context(), a.store)
		if err != nil {
			return err
		}
		prefs, err := a.workouts.Preferences(cmd.Context())
		if err != nil {
			return err
		}
		st := localStatus{
			DataDir:         a.dataDir,
			PendingSync:     toPeer,
			PendingHealth:   toHealth,
			HealthEnabled:   prefs.HealthEnabled,
			AutoSyncEnabled: prefs.AutoSyncEnabled,
			HealthSink:      cfg.Health.Sink,
			PeerRole:        string(cfg.Peer.WebSocket.Role),
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "data:            ", st.DataDir)
		fmt.Fprintln(out, "pending sync:    ", st.PendingSync)
		fmt.Fprintln(out, "pending export:  ", st.PendingHealth)
		fmt.Fprintln(out, "health enabled:  ", st.HealthEnabled)
		fmt.Fprintln(out, "health sink:     ", st.HealthSink)
		fmt.Fprintln(out, "peer role:       ", st.PeerRole)
		return nil
	},
}
