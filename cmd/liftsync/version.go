package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the liftsync version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"version": version})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "liftsync", version)
		return nil
	},
}
