package config

import (
	"strings"

	"lunixfs/internal/table"
)

// DefaultStorePath is the backing file used when none is configured.
const DefaultStorePath = "disk.lunix"

// Defaults returns the configuration used when no source sets a value.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Mount: MountConfig{
			FSName:             "lunixfs",
			DefaultPermissions: true,
		},
		Store: StoreConfig{
			Path:        DefaultStorePath,
			MaxEntries:  table.DefaultCapacity,
			BackupCount: 3,
		},
	}
}

// ApplyDefaults fills zero-value fields with their defaults and normalizes
// values.
func ApplyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if cfg.Mount.FSName == "" {
		cfg.Mount.FSName = d.Mount.FSName
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = d.Store.Path
	}
	if cfg.Store.MaxEntries == 0 {
		cfg.Store.MaxEntries = d.Store.MaxEntries
	}
}
