package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/internal/paths"
)

// version is stamped by the build with -ldflags "-X main.version=...".
var version = "dev"

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagJSON      bool
)

// State loaded by PersistentPreRunE for every subcommand.
var (
	cfg       appConfig
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "liftsync",
	Short:         "liftsync keeps workout data consistent and in sync between paired devices",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}
		v, err := loadConfig(configDir)
		if err != nil {
			return err
		}
		c, err := decodeConfig(v)
		if err != nil {
			return err
		}
		cfg = c

		logCfg := cfg.Log
		if cfg.LogToFile && logCfg.File == "" {
			dataDir, err := resolveDataDir()
			if err != nil {
				return err
			}
			logCfg.File = paths.LogFile(dataDir)
		}
		l, closer, err := logging.New(logCfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		logger, logCloser = l, closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: platform data dir)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(exerciseCmd)
}

// resolveDataDir applies the precedence --data-dir > config.yaml data_dir >
// LIFTSYNC_DATA_DIR > platform default.
func resolveDataDir() (string, error) {
	return paths.ResolveDataDir(flagDataDir, cfg.DataDir)
}
