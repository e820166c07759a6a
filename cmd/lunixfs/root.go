package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lunixfs/internal/config"
	"lunixfs/internal/logging"
)

var (
	logger = logging.GetLogger()

	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "lunixfs",
	Short: "Small persistent filesystem served over FUSE",
	Long: `lunixfs mounts a small hierarchical filesystem whose entries live in memory
and are persisted to a single fixed-layout backing file on unmount.

Running lunixfs without a subcommand is the same as "lunixfs mount".`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runMount,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("lunixfs version {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	flags.String("mount", "", "mount point for the filesystem")
	flags.String("disk", "", "backing file path (default "+config.DefaultStorePath+")")
	flags.String("log-level", "", "log level (ERROR, WARN, INFO, DEBUG, TRACE)")
	flags.BoolVar(&verbose, "verbose", false, "enable verbose logging")
}

// loadConfig reads the effective configuration for cmd. Flags override
// environment variables, which override the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags(),
		config.FlagBinding{Key: "mount.point", Flag: "mount"},
		config.FlagBinding{Key: "store.path", Flag: "disk"},
		config.FlagBinding{Key: "logging.level", Flag: "log-level"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = logging.LevelDebug.String()
	}
	return cfg, nil
}

func configureLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return logger.SetFormat(cfg.Logging.Format)
}
