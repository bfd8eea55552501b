package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the optional mirror configuration file. Pointer fields
// are nil when the file leaves them unset, so command-line flags can tell a
// missing value from a zero one.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Remote   RemoteConfig   `toml:"remote"`
	Log      LogConfig      `toml:"log"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Interval *string  `toml:"interval"` // Go duration, e.g. "2s"
	BWLimit  *string  `toml:"bwlimit"`
	Verify   *bool    `toml:"verify"`
	DryRun   *bool    `toml:"dry_run"`
	Exclude  []string `toml:"exclude"`
}

// RemoteConfig supplies the destination when it is not given as an argument.
type RemoteConfig struct {
	URL    *string `toml:"url"`
	SSHKey *string `toml:"ssh_key"`
	Port   *int    `toml:"port"`
}

// LogConfig configures the rotating JSON log file.
type LogConfig struct {
	File       *string `toml:"file"`
	MaxSizeMB  *int    `toml:"max_size_mb"`
	MaxBackups *int    `toml:"max_backups"`
	MaxAgeDays *int    `toml:"max_age_days"`
}

// IntervalDuration parses defaults.interval. ok is false when it is unset.
func (d DefaultsConfig) IntervalDuration() (time.Duration, bool, error) {
	if d.Interval == nil {
		return 0, false, nil
	}
	iv, err := time.ParseDuration(*d.Interval)
	if err != nil {
		return 0, false, fmt.Errorf("defaults.interval: %w", err)
	}
	if iv <= 0 {
		return 0, false, fmt.Errorf("defaults.interval: must be positive, got %s", iv)
	}
	return iv, true, nil
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "mirror", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}
