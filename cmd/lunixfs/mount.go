package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"lunixfs/internal/config"
	"lunixfs/internal/fs"
	"lunixfs/internal/state"
	"lunixfs/internal/table"
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount the filesystem and serve it until interrupted",
	Long: `Mount the filesystem at --mount, loading entries from the backing file.

The backing file is created when missing and locked for the lifetime of the
mount. Entries are written back when the filesystem is unmounted, either by
SIGINT/SIGTERM or by an external umount.

Examples:
  lunixfs mount --mount /mnt/lunix
  lunixfs --mount /mnt/lunix --disk /var/lib/lunixfs/disk.lunix`,
	Args: cobra.NoArgs,
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}

	if cfg.Mount.Point == "" {
		return errors.New("mount point is required (--mount or mount.point)")
	}
	mountPoint := filepath.Clean(cfg.Mount.Point)

	logger.Info("Starting lunixfs %s...", version)
	logger.Debug("Mount point: %s", mountPoint)
	logger.Debug("Backing file: %s", cfg.Store.Path)

	logger.Info("Opening backing store...")
	sm, err := state.NewManager(cfg.Store.Path, state.Options{
		BackupCount: cfg.Store.BackupCount,
		LockTimeout: cfg.Store.LockTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open backing store: %w", err)
	}
	defer closeLogged("backing store", sm)

	uid, _ := fs.Identity()
	tbl := loadTable(sm, cfg.Store.MaxEntries, uid)

	lfs := fs.NewLunixFS(tbl)
	if err := lfs.Mount(mountPoint, mountOptions(cfg)); err != nil {
		return err
	}
	defer closeLogged("FUSE connection", lfs)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Filesystem mounted and ready")
	serveErr := lfs.Serve(ctx)
	if serveErr != nil {
		logger.Error("FUSE server error: %v", serveErr)
	}

	logger.Info("Saving %d entries to %s", tbl.Len()-1, sm.Path())
	if err := sm.Save(tbl); err != nil {
		return fmt.Errorf("failed to save filesystem: %w", err)
	}

	logger.Info("Clean shutdown complete")
	return serveErr
}

// loadTable reads the snapshot from sm. Any load failure leaves the
// filesystem empty rather than refusing to mount.
func loadTable(sm *state.Manager, capacity int, rootOwner uint32) *table.Table {
	opts := []table.Option{table.WithRootOwner(rootOwner)}

	tbl, err := sm.Load(capacity, opts...)
	switch {
	case err == nil:
		logger.Info("Loaded %d entries from %s", tbl.Len()-1, sm.Path())
		return tbl
	case errors.Is(err, state.ErrCorruptSnapshot):
		logger.Error("Corrupt snapshot in %s, starting empty: %v", sm.Path(), err)
	case errors.Is(err, state.ErrIO):
		logger.Error("Snapshot read failure on %s, starting empty: %v", sm.Path(), err)
	default:
		logger.Error("Failed to load %s, starting empty: %v", sm.Path(), err)
	}
	return table.New(capacity, opts...)
}

// closeLogged closes c, logging rather than returning any failure.
func closeLogged(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("Failed to close %s: %v", what, err)
	}
}

func mountOptions(cfg *config.Config) fs.MountOptions {
	return fs.MountOptions{
		FSName:             cfg.Mount.FSName,
		AllowOther:         cfg.Mount.AllowOther,
		DefaultPermissions: cfg.Mount.DefaultPermissions,
	}
}
