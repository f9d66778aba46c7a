package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the integrity passes and report the repairs made",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.checker.Run(cmd.Context())
		out := cmd.OutOrStdout()
		if flagJSON {
			if jerr := printJSON(out, report); jerr != nil {
				return jerr
			}
		} else {
			fmt.Fprintf(out, "orphaned sets attached:     %d\n", report.OrphanedSetsAttached)
			fmt.Fprintf(out, "orphaned sets deleted:      %d\n", report.OrphanedSetsDeleted)
			fmt.Fprintf(out, "missing exercises fixed:    %d\n", report.MissingExercisesFixed)
			fmt.Fprintf(out, "session dates fixed:        %d\n", report.SessionsDateFixed)
			fmt.Fprintf(out, "duplicate sessions removed: %d\n", report.DuplicateSessionsRemoved)
		}
		return err
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a JSON backup of every session and exercise",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		codec, err := a.codec(cmd.Context())
		if err != nil {
			return err
		}
		path, err := codec.CreateBackup(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"path": path})
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Replace every session with the contents of a backup file",
	Long: `Restore deletes every stored session and its sets, then recreates the
sessions in the backup. Exercises are merged by name. Preferences are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		codec, err := a.codec(cmd.Context())
		if err != nil {
			return err
		}
		if err := codec.RestoreFromBackup(cmd.Context(), args[0]); err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"restored": args[0]})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "restored", args[0])
		return nil
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all workout data and reseed the default exercises",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return userErrorf("reset deletes all stored data; pass --yes to confirm")
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.checker.EmergencyReset(cmd.Context()); err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]bool{"reset": true})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "store reset to defaults")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm the reset")
}
