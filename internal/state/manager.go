package state

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"lunixfs/internal/logging"
	"lunixfs/internal/table"
)

var (
	logger = logging.GetLogger().WithPrefix("state")
)

// backupExt is the file extension of snapshot backups.
const backupExt = ".lunix"

// lockRetryDelay is how often a contended lock is retried while waiting.
const lockRetryDelay = 100 * time.Millisecond

// Options tunes a Manager.
type Options struct {
	// BackupCount is how many previous snapshots to keep. Zero disables
	// backups.
	BackupCount int

	// LockTimeout is how long to wait for another holder of the backing
	// store to go away. Zero fails immediately.
	LockTimeout time.Duration
}

// Manager owns the backing store: it holds the file open and exclusively
// locked for its whole lifetime, restores the table from it once and dumps
// the table into it once.
type Manager struct {
	statePath   string
	backupDir   string
	backupCount int
	file        *os.File
	lock        *flock.Flock
	mu          sync.Mutex
}

// NewManager opens (creating if absent) the backing store at statePath and
// takes an exclusive lock on it. It fails with ErrLocked when another
// process already holds the store.
func NewManager(statePath string, opts Options) (*Manager, error) {
	logger.Debug("Creating new state manager with path: %s", statePath)

	absPath, err := filepath.Abs(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state path %s: %w", statePath, err)
	}
	logger.Debug("Resolved state path: %s", absPath)

	// Create parent directory if it doesn't exist
	stateDir := filepath.Dir(absPath)
	logger.Debug("Ensuring state directory exists: %s", stateDir)
	if mkdirErr := os.MkdirAll(stateDir, 0755); mkdirErr != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, mkdirErr)
	}

	lock := flock.New(absPath + ".lock")
	locked, lockErr := tryLock(lock, opts.LockTimeout)
	if lockErr != nil {
		return nil, fmt.Errorf("failed to lock state file %s: %w", absPath, lockErr)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, absPath)
	}

	f, openErr := os.OpenFile(absPath, os.O_RDWR|os.O_CREATE, 0600)
	if openErr != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open state file %s: %w", absPath, openErr)
	}

	m := &Manager{
		statePath:   absPath,
		backupCount: opts.BackupCount,
		file:        f,
		lock:        lock,
	}

	if opts.BackupCount > 0 {
		m.backupDir = filepath.Join(stateDir, ".lunixfs-backups")
		logger.Debug("Creating backup directory: %s", m.backupDir)
		if backupDirErr := os.MkdirAll(m.backupDir, 0755); backupDirErr != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to create backup directory %s: %w", m.backupDir, backupDirErr)
		}
	}

	logger.Info("State manager initialization complete")
	return m, nil
}

func tryLock(lock *flock.Flock, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return lock.TryLock()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return false, nil
	}
	return locked, err
}

// Path returns the absolute path of the backing store.
func (sm *Manager) Path() string {
	return sm.statePath
}

// Load restores the table from the backing store. An empty store yields a
// table holding only the root. Errors wrap ErrIO or ErrCorruptSnapshot so
// callers can tell them apart.
func (sm *Manager) Load(capacity int, opts ...table.Option) (*table.Table, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Loading state from: %s", sm.statePath)

	info, err := sm.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, sm.statePath, err)
	}
	if info.Size() == 0 {
		logger.Info("No snapshot in %s, starting with an empty table", sm.statePath)
		return table.New(capacity, opts...), nil
	}

	logger.Debug("Parsing existing snapshot (%d bytes)", info.Size())
	t, err := Decode(io.NewSectionReader(sm.file, 0, info.Size()), capacity, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("State loaded successfully (%d entries)", t.Len())
	return t, nil
}

// Save dumps the table into the backing store, replacing the previous
// snapshot from the beginning of the file. The previous snapshot is kept as
// a backup first when backups are enabled.
func (sm *Manager) Save(t *table.Table) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Saving state to: %s", sm.statePath)

	if backupErr := sm.createBackup(); backupErr != nil {
		logger.Warn("Failed to create backup: %v", backupErr)
		// Continue with save even if backup fails
	}

	if err := sm.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncating %s: %w", ErrIO, sm.statePath, err)
	}
	if _, err := sm.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seeking %s: %w", ErrIO, sm.statePath, err)
	}
	written, err := Encode(sm.file, t)
	if err != nil {
		return err
	}
	if err := sm.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %w", ErrIO, sm.statePath, err)
	}

	// Verify the write
	info, err := sm.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: verifying %s: %w", ErrIO, sm.statePath, err)
	}
	want := int64(HeaderSize) + int64(written)*int64(RecordSize)
	if info.Size() != want {
		return fmt.Errorf("%w: snapshot is %d bytes after write, expected %d", ErrIO, info.Size(), want)
	}

	logger.Debug("State saved and verified successfully")
	return nil
}

// Close releases the backing store and its lock.
func (sm *Manager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var firstErr error
	if sm.file != nil {
		firstErr = sm.file.Close()
		sm.file = nil
	}
	if sm.lock != nil {
		if err := sm.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
		sm.lock = nil
	}
	return firstErr
}

// createBackup creates a timestamped backup of the current snapshot
func (sm *Manager) createBackup() error {
	if sm.backupCount <= 0 {
		return nil
	}

	info, err := sm.file.Stat()
	if err != nil {
		return err
	}
	// Skip if there is no snapshot yet
	if info.Size() == 0 {
		return nil
	}

	data, err := io.ReadAll(io.NewSectionReader(sm.file, 0, info.Size()))
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405.000000000")
	backupPath := filepath.Join(sm.backupDir, fmt.Sprintf("snapshot-%s%s", timestamp, backupExt))

	logger.Debug("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return sm.cleanupOldBackups()
}

// cleanupOldBackups removes old backup files, keeping only the most recent ones
func (sm *Manager) cleanupOldBackups() error {
	entries, err := os.ReadDir(sm.backupDir)
	if err != nil {
		return err
	}

	// Backup names embed their timestamp, so name order is age order.
	backups := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == backupExt {
			backups = append(backups, filepath.Join(sm.backupDir, entry.Name()))
		}
	}

	// Sort newest first
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	// Remove old backups
	for i := sm.backupCount; i < len(backups); i++ {
		logger.Debug("Removing old backup: %s", backups[i])
		if err := os.Remove(backups[i]); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i], err)
		}
	}

	return nil
}
