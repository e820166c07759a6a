package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunixfs/internal/table"
)

func newTestManager(t *testing.T, dir string, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(dir, "disk.lunix"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManagerCreatesBackingStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	m := newTestManager(t, dir, Options{})

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	tbl, err := m.Load(8)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
}

func TestManagerSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir, Options{})

	tbl, err := m.Load(16)
	require.NoError(t, err)
	_, err = tbl.Create("/docs", table.Directory, 1000, nil)
	require.NoError(t, err)
	_, err = tbl.Create("/docs/readme", table.File, 1000, []byte("read me"))
	require.NoError(t, err)

	require.NoError(t, m.Save(tbl))
	require.NoError(t, m.Close())

	info, err := os.Stat(filepath.Join(dir, "disk.lunix"))
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderSize+2*RecordSize), info.Size())

	reopened := newTestManager(t, dir, Options{})
	restored, err := reopened.Load(16)
	require.NoError(t, err)

	e, err := restored.Find("/docs/readme")
	require.NoError(t, err)
	assert.Equal(t, "read me", string(e.Content))
}

func TestManagerSaveOverwritesFromStart(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir, Options{})

	tbl, err := m.Load(16)
	require.NoError(t, err)
	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := tbl.Create(p, table.File, 0, nil)
		require.NoError(t, err)
	}
	require.NoError(t, m.Save(tbl))

	require.NoError(t, tbl.RemovePath("/b", table.File))
	require.NoError(t, tbl.RemovePath("/c", table.File))
	require.NoError(t, m.Save(tbl))

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderSize+RecordSize), info.Size())

	again, err := m.Load(16)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())
}

func TestManagerLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.lunix")
	require.NoError(t, os.WriteFile(path, []byte{3, 0, 0, 0, 'j', 'u', 'n', 'k'}, 0600))

	m := newTestManager(t, dir, Options{})
	_, err := m.Load(16)
	require.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestManagerLocksBackingStore(t *testing.T) {
	dir := t.TempDir()
	newTestManager(t, dir, Options{})

	_, err := NewManager(filepath.Join(dir, "disk.lunix"), Options{})
	require.ErrorIs(t, err, ErrLocked)

	start := time.Now()
	_, err = NewManager(filepath.Join(dir, "disk.lunix"), Options{LockTimeout: 250 * time.Millisecond})
	require.ErrorIs(t, err, ErrLocked)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestManagerReleasesLockOnClose(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "disk.lunix"), Options{})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	second := newTestManager(t, dir, Options{})
	assert.NotNil(t, second)
}

func TestManagerBackups(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir, Options{BackupCount: 2})

	tbl, err := m.Load(16)
	require.NoError(t, err)

	// The first save has nothing to back up.
	require.NoError(t, m.Save(tbl))
	for i, p := range []string{"/one", "/two", "/three"} {
		_, err := tbl.Create(p, table.File, 0, nil)
		require.NoError(t, err, i)
		require.NoError(t, m.Save(tbl))
	}

	backups, err := filepath.Glob(filepath.Join(dir, ".lunixfs-backups", "*"+backupExt))
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}
