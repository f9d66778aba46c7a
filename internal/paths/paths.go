// Package paths resolves the configuration, data, backup and log locations
// used by liftsync.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "liftsync"

// Sub-directory and file names inside the data directory.
const (
	BackupDirName = "backups"
	LogDirName    = "logs"
	LogFileName   = "liftsync.log"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "LIFTSYNC_CONFIG_DIR"
	EnvDataDir   = "LIFTSYNC_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/liftsync (fallback ~/.config/liftsync)
// Others:  os.UserConfigDir()/liftsync
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/liftsync (fallback ~/.local/share/liftsync)
// Others:  os.UserConfigDir()/liftsync
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, homeRel string) (string, error) {
	if platformDir.goos != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, homeRel, AppName), nil
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > LIFTSYNC_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > config.yaml value > LIFTSYNC_DATA_DIR env > DefaultDataDir().
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	return DefaultDataDir()
}

// BackupDir returns the backup directory under dataDir unless override is set.
func BackupDir(dataDir, override string) (string, error) {
	if override != "" {
		return filepath.Abs(override)
	}
	return filepath.Join(dataDir, BackupDirName), nil
}

// LogFile returns the rotating log file path under dataDir.
func LogFile(dataDir string) string {
	return filepath.Join(dataDir, LogDirName, LogFileName)
}
