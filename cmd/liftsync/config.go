package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/liftsync/internal/backup"
	"github.com/mesh-intelligence/liftsync/internal/healthsink"
	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/internal/syncer"
	"github.com/mesh-intelligence/liftsync/internal/transport"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "LIFTSYNC"

	sinkDisabled = "disabled"
	sinkKafka    = "kafka"
)

// appConfig is the decoded config.yaml.
type appConfig struct {
	DataDir   string         `mapstructure:"data_dir"`
	BackupDir string         `mapstructure:"backup_dir"`
	LogToFile bool           `mapstructure:"log_to_file"`
	Log       logging.Config `mapstructure:"log"`
	Peer      peerConfig     `mapstructure:"peer"`
	Sync      syncConfig     `mapstructure:"sync"`
	Health    healthConfig   `mapstructure:"health"`
	Mirror    mirrorConfig   `mapstructure:"mirror"`
}

type peerConfig struct {
	// Listen is the HTTP address serving /peer, /health and /metrics.
	Listen    string                    `mapstructure:"listen"`
	WebSocket transport.WebSocketConfig `mapstructure:",squash"`
}

type syncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type healthConfig struct {
	Sink  string                 `mapstructure:"sink"` // disabled or kafka
	Kafka healthsink.KafkaConfig `mapstructure:"kafka"`
}

type mirrorConfig struct {
	Enabled bool            `mapstructure:"enabled"`
	S3      backup.S3Config `mapstructure:",squash"`
}

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# liftsync configuration
# Every key can be overridden by LIFTSYNC_<KEY> with dots as underscores,
# e.g. LIFTSYNC_PEER_URL.

# Data directory (optional; overridable by --data-dir)
# data_dir:

# Backup directory (default: <data_dir>/backups)
# backup_dir:

# Copy log records to <data_dir>/logs/liftsync.log
log_to_file: false

log:
  level: info
  format: text

peer:
  # listener accepts the paired device on <listen>/peer; dialer connects to url.
  role: listener
  listen: ":7420"
  # url: ws://phone.local:7420/peer

sync:
  interval: 5m

health:
  # disabled or kafka
  sink: disabled
  kafka:
    brokers: []
    topic: liftsync.workouts

mirror:
  enabled: false
  # bucket: liftsync-backups
  # region: us-east-1
  # endpoint: http://localhost:9000
  # path_style: true
  # prefix: device-a
`

// envKeys lists the settings that LIFTSYNC_* variables override. data_dir
// is left out: its env variable ranks below config.yaml and is handled by
// the paths package.
var envKeys = []string{
	"backup_dir", "log_to_file",
	"log.level", "log.format", "log.file",
	"peer.role", "peer.url", "peer.listen",
	"sync.interval",
	"health.sink", "health.kafka.brokers", "health.kafka.topic",
	"mirror.enabled", "mirror.bucket", "mirror.region", "mirror.endpoint", "mirror.prefix", "mirror.path_style",
}

func setDefaults(v *viper.Viper) {
	ws := transport.DefaultWebSocketConfig()
	v.SetDefault("log_to_file", false)
	v.SetDefault("log.level", logging.DefaultConfig.Level)
	v.SetDefault("log.format", logging.DefaultConfig.Format)
	v.SetDefault("log.max_size_mb", logging.DefaultConfig.MaxSizeMB)
	v.SetDefault("log.max_backups", logging.DefaultConfig.MaxBackups)
	v.SetDefault("log.max_age_days", logging.DefaultConfig.MaxAgeDays)
	v.SetDefault("peer.listen", ":7420")
	v.SetDefault("peer.role", string(ws.Role))
	v.SetDefault("peer.write_timeout", ws.WriteTimeout)
	v.SetDefault("peer.initial_backoff", ws.InitialBackoff)
	v.SetDefault("peer.max_backoff", ws.MaxBackoff)
	v.SetDefault("peer.read_limit", ws.ReadLimit)
	v.SetDefault("sync.interval", syncer.DefaultInterval)
	v.SetDefault("health.sink", sinkDisabled)
	v.SetDefault("health.kafka.topic", "liftsync.workouts")
	v.SetDefault("mirror.enabled", false)
}

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first run. A missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// decodeConfig unmarshals v and checks the enumerated settings.
func decodeConfig(v *viper.Viper) (appConfig, error) {
	var c appConfig
	if err := v.Unmarshal(&c); err != nil {
		return appConfig{}, fmt.Errorf("decode config: %w", err)
	}
	switch c.Health.Sink {
	case "", sinkDisabled, sinkKafka:
	default:
		return appConfig{}, userErrorf("health.sink must be %q or %q, got %q", sinkDisabled, sinkKafka, c.Health.Sink)
	}
	switch c.Peer.WebSocket.Role {
	case "", transport.RoleListener, transport.RoleDialer:
	default:
		return appConfig{}, userErrorf("peer.role must be %q or %q, got %q", transport.RoleListener, transport.RoleDialer, c.Peer.WebSocket.Role)
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = syncer.DefaultInterval
	}
	return c, nil
}

func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile writes defaultConfigYAML unless config.yaml exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
