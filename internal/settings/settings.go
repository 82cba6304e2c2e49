// Package settings loads process settings for the lsync binary.
//
// Sources, highest precedence first: LSYNC_* environment variables, the
// config file (lsync.yaml or lsync.toml, found in $HOME/.config/lsync or the
// working directory unless given explicitly), then built-in defaults.
//
// The remote configuration is not a process setting; it lives in the local
// database and is managed through the config store.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aatrooox/localsync/internal/localsync/db"
)

// EnvPrefix prefixes every environment override, e.g. LSYNC_DB_PATH.
const EnvPrefix = "LSYNC"

// Settings holds the process configuration.
type Settings struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path" toml:"db_path" json:"db_path"`
	Driver string `mapstructure:"driver" yaml:"driver" toml:"driver" json:"driver"`

	LogFile      string `mapstructure:"log_file" yaml:"log_file" toml:"log_file" json:"log_file"`
	LogMaxSizeMB int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb" toml:"log_max_size_mb" json:"log_max_size_mb"`

	DashboardPort int `mapstructure:"dashboard_port" yaml:"dashboard_port" toml:"dashboard_port" json:"dashboard_port"`

	// SyncInterval is used when the remote config carries no interval.
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval" toml:"sync_interval" json:"sync_interval"`

	// StampOnFailure marks records synced even when their push failed.
	StampOnFailure bool `mapstructure:"stamp_on_failure" yaml:"stamp_on_failure" toml:"stamp_on_failure" json:"stamp_on_failure"`

	Remote ServeSettings `mapstructure:"remote" yaml:"remote" toml:"remote" json:"remote"`

	// ConfigFile is the file the settings were read from, if any.
	ConfigFile string `mapstructure:"-" yaml:"-" toml:"-" json:"-"`
}

// ServeSettings configures `lsync remote serve`.
type ServeSettings struct {
	Addr  string `mapstructure:"addr" yaml:"addr" toml:"addr" json:"addr"`
	Token string `mapstructure:"token" yaml:"token" toml:"token" json:"token"`
}

// DataDir returns the default directory for the database and log file.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lsync"
	}
	return filepath.Join(home, ".lsync")
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	dir := DataDir()
	v.SetDefault("db_path", filepath.Join(dir, "lsync.db"))
	v.SetDefault("driver", db.DriverNCruces)
	v.SetDefault("log_file", filepath.Join(dir, "lsync.log"))
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("dashboard_port", 8080)
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("stamp_on_failure", false)
	v.SetDefault("remote.addr", "127.0.0.1:8787")
	v.SetDefault("remote.token", "")
}

// New returns a viper instance wired to the lsync sources. configFile, when
// non-empty, replaces the search path.
func New(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v
	}
	v.SetConfigName("lsync")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "lsync"))
	}
	v.AddConfigPath(".")
	return v
}

// Load reads settings. A missing file is only an error when configFile was
// given explicitly.
func Load(configFile string) (*Settings, error) {
	return FromViper(New(configFile))
}

// FromViper reads the config file registered on v, if any, and decodes it.
func FromViper(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.ConfigFile = v.ConfigFileUsed()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for values lsync cannot run with.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.DBPath) == "" {
		return fmt.Errorf("db_path is required")
	}
	switch s.Driver {
	case db.DriverNCruces, db.DriverModernc:
	default:
		return fmt.Errorf("unsupported driver %q (want %q or %q)", s.Driver, db.DriverNCruces, db.DriverModernc)
	}
	if s.DashboardPort < 0 || s.DashboardPort > 65535 {
		return fmt.Errorf("dashboard_port %d out of range", s.DashboardPort)
	}
	if s.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %v", s.SyncInterval)
	}
	return nil
}
