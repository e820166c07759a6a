// Package config loads lunixfs settings from an optional YAML file,
// LUNIXFS_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "LUNIXFS"

// Config represents the complete lunixfs configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags bound through Load
//  2. Environment variables (LUNIXFS_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Mount controls how the filesystem is attached to the kernel
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// Store controls the backing store and the entry table
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=ERROR WARN INFO DEBUG TRACE"`

	// Format specifies the log output format
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
}

// MountConfig controls the FUSE mount.
type MountConfig struct {
	// Point is the directory the filesystem is mounted on
	Point string `mapstructure:"point" yaml:"point"`

	// FSName is reported as the mount source
	FSName string `mapstructure:"fsname" yaml:"fsname" validate:"required"`

	// AllowOther lets users other than the mounter access the filesystem
	AllowOther bool `mapstructure:"allow_other" yaml:"allow_other"`

	// DefaultPermissions makes the kernel enforce mode bits
	DefaultPermissions bool `mapstructure:"default_permissions" yaml:"default_permissions"`
}

// StoreConfig controls the backing store.
type StoreConfig struct {
	// Path is the backing file holding the snapshot
	Path string `mapstructure:"path" yaml:"path" validate:"required"`

	// MaxEntries is the table capacity, root included
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries" validate:"gte=2,lte=65536"`

	// BackupCount is how many previous snapshots to keep
	BackupCount int `mapstructure:"backup_count" yaml:"backup_count" validate:"gte=0,lte=100"`

	// LockTimeout is how long to wait for another process holding the store
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout" validate:"gte=0"`
}

// FlagBinding maps a configuration key to a command-line flag name.
type FlagBinding struct {
	Key  string
	Flag string
}

// Load loads configuration from file, environment, flags and defaults.
//
// An empty configPath searches the default location; a missing file there is
// not an error. Flags listed in bindings override every other source when
// they were set on the command line.
func Load(configPath string, flags *pflag.FlagSet, bindings ...FlagBinding) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if flags != nil {
		for _, b := range bindings {
			if f := flags.Lookup(b.Flag); f != nil {
				if err := v.BindPFlag(b.Key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", b.Flag, err)
				}
			}
		}
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// decode converts viper's settings map into a Config. Durations may be given
// as strings such as "2s".
func decode(settings map[string]any) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setupViper configures viper with environment variables, defaults and the
// config file location.
func setupViper(v *viper.Viper, configPath string) {
	// Example: LUNIXFS_STORE_PATH=/var/lib/lunixfs/disk.lunix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults are registered so that every key is known to AllSettings and
	// can be overridden from the environment.
	d := Defaults()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("mount.point", d.Mount.Point)
	v.SetDefault("mount.fsname", d.Mount.FSName)
	v.SetDefault("mount.allow_other", d.Mount.AllowOther)
	v.SetDefault("mount.default_permissions", d.Mount.DefaultPermissions)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.max_entries", d.Store.MaxEntries)
	v.SetDefault("store.backup_count", d.Store.BackupCount)
	v.SetDefault("store.lock_timeout", d.Store.LockTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing file at the default location is fine; an explicit path
		// must exist.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configPath == "" {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/lunixfs, ~/.config/lunixfs or "."
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lunixfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "lunixfs")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
