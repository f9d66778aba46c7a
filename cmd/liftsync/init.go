package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/liftsync/internal/paths"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration, the database and the default exercises",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		exercises, err := a.workouts.ListExercises(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flagJSON {
			return printJSON(out, map[string]any{
				"config_dir": configDir,
				"data_dir":   a.dataDir,
				"exercises":  len(exercises),
			})
		}
		fmt.Fprintln(out, "liftsync initialized")
		fmt.Fprintln(out, "  config:   ", configDir)
		fmt.Fprintln(out, "  data:     ", a.dataDir)
		fmt.Fprintln(out, "  exercises:", len(exercises))
		return nil
	},
}
