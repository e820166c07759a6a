package table

import (
	"fmt"
	"sync"
	"time"

	"lunixfs/internal/logging"
)

var (
	tableLogger = logging.GetLogger().WithPrefix("table")
)

// Table is the authoritative store of every entry. Entries live in a dense
// slice; ids are mapped to slots so that the swap-with-last compaction done
// by Remove never leaks slot positions to callers. Slot 0 always holds the
// root. All methods are safe for concurrent use and run under a single
// mutex.
type Table struct {
	mu       sync.Mutex
	capacity int
	entries  []*Entry
	slots    map[ID]int
	paths    map[string]ID
	now      func() time.Time
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides the time source used for access and modify times.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		t.now = now
	}
}

// WithRootOwner sets the owner of the root entry.
func WithRootOwner(uid uint32) Option {
	return func(t *Table) {
		t.entries[0].Owner = uid
	}
}

// New creates a table holding only the root entry. Capacity counts the root;
// values below 1 select DefaultCapacity.
func New(capacity int, opts ...Option) *Table {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	t := &Table{
		capacity: capacity,
		entries:  make([]*Entry, 0, capacity),
		slots:    make(map[ID]int, capacity),
		paths:    make(map[string]ID, capacity),
		now:      time.Now,
	}
	t.entries = append(t.entries, &Entry{
		ID:   RootID,
		Path: RootPath,
		Name: "",
		Kind: Directory,
	})
	t.slots[RootID] = 0
	t.paths[RootPath] = RootID
	for _, opt := range opts {
		opt(t)
	}
	now := t.now()
	t.entries[0].Atime = now
	t.entries[0].Mtime = now
	return t
}

// Restore builds a table from previously dumped entries, preserving their
// ids, order and timestamps. The root is implicit and must not be included.
func Restore(capacity int, entries []Entry, opts ...Option) (*Table, error) {
	t := New(capacity, opts...)
	if len(entries)+1 > t.capacity {
		return nil, newError(OpRestore, "", fmt.Errorf("%w: %d entries, capacity %d",
			ErrCapacityExceeded, len(entries)+1, t.capacity))
	}

	for i := range entries {
		e := entries[i].clone()
		if err := validateRestored(&e, t.capacity); err != nil {
			return nil, newError(OpRestore, e.Path, err)
		}
		if _, taken := t.slots[e.ID]; taken {
			return nil, newError(OpRestore, e.Path, fmt.Errorf("%w: duplicate id %d", ErrExists, e.ID))
		}
		if err := t.insert(&e); err != nil {
			return nil, newError(OpRestore, e.Path, err)
		}
	}

	// Parents may appear after their children in slot order, so the
	// hierarchy is checked once everything is in place.
	for _, e := range t.entries[1:] {
		if err := t.checkParent(e.Path); err != nil {
			return nil, newError(OpRestore, e.Path, err)
		}
	}

	tableLogger.Debug("Restored table with %d entries (capacity %d)", len(t.entries), t.capacity)
	return t, nil
}

func validateRestored(e *Entry, capacity int) error {
	if e.ID == RootID || int(e.ID) >= capacity {
		return fmt.Errorf("%w: id %d out of range", ErrInvalidEntry, e.ID)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: kind %d", ErrInvalidEntry, e.Kind)
	}
	if IsRoot(e.Path) {
		return fmt.Errorf("%w: root stored as a regular entry", ErrInvalidEntry)
	}
	if err := ValidatePath(e.Path); err != nil {
		return err
	}
	if name, _ := Split(e.Path); name != e.Name {
		return fmt.Errorf("%w: name %q does not match path", ErrInvalidEntry, e.Name)
	}
	if e.Length < 0 || e.Length != int64(len(e.Content)) || e.Length > MaxContent {
		return fmt.Errorf("%w: length %d", ErrInvalidEntry, e.Length)
	}
	if e.Kind == Directory && e.Length != 0 {
		return fmt.Errorf("%w: directory with content", ErrInvalidEntry)
	}
	return nil
}

// Capacity returns the maximum number of entries, root included.
func (t *Table) Capacity() int {
	return t.capacity
}

// Len returns the number of live entries, root included.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Free returns how many more entries can be created.
func (t *Table) Free() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity - len(t.entries)
}

// Find returns a copy of the entry at path.
func (t *Table) Find(path string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.lookup(path)
	if !ok {
		return Entry{}, newError(OpFind, path, ErrNotFound)
	}
	return e.clone(), nil
}

// Entries returns copies of every entry except the root, in slot order.
func (t *Table) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries)-1)
	for _, e := range t.entries[1:] {
		out = append(out, e.clone())
	}
	return out
}

// ChildrenOf returns the direct children of the directory at dir. The result
// is a snapshot taken under the lock; entries carry metadata only and their
// Content is nil.
func (t *Table) ChildrenOf(dir string) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.lookup(dir)
	if !ok {
		return nil, newError(OpChildren, dir, ErrNotFound)
	}
	if !d.IsDir() {
		return nil, newError(OpChildren, dir, ErrKindMismatch)
	}

	var children []Entry
	for _, e := range t.entries[1:] {
		if _, parent := Split(e.Path); parent == dir {
			children = append(children, e.meta())
		}
	}
	return children, nil
}

// Create adds a new entry at path. The parent must be an existing directory
// and the path must be free. Initial content beyond MaxContent is truncated;
// directories ignore content.
func (t *Table) Create(path string, kind Kind, owner uint32, content []byte) (Entry, error) {
	if !kind.Valid() {
		return Entry{}, newError(OpCreate, path, ErrKindMismatch)
	}
	if err := ValidatePath(path); err != nil {
		return Entry{}, newError(OpCreate, path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.lookup(path); exists {
		return Entry{}, newError(OpCreate, path, ErrExists)
	}
	if err := t.checkParent(path); err != nil {
		return Entry{}, newError(OpCreate, path, err)
	}

	id, err := t.allocateID()
	if err != nil {
		return Entry{}, newError(OpCreate, path, err)
	}

	name, _ := Split(path)
	now := t.now()
	e := &Entry{
		ID:    id,
		Path:  path,
		Name:  name,
		Kind:  kind,
		Owner: owner,
		Atime: now,
		Mtime: now,
	}
	if kind == File {
		if len(content) > MaxContent {
			tableLogger.Warn("Truncating initial content of %q from %d to %d bytes", path, len(content), MaxContent)
			content = content[:MaxContent]
		}
		e.Content = append([]byte{}, content...)
		e.Length = int64(len(e.Content))
	}

	if err := t.insert(e); err != nil {
		return Entry{}, newError(OpCreate, path, err)
	}

	tableLogger.Debug("Created %s %q with id %d", kind, path, id)
	return e.clone(), nil
}

// Remove deletes the entry with the given id. The root and non-empty
// directories cannot be removed.
func (t *Table) Remove(id ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.slots[id]
	if !ok {
		return newError(OpRemove, "", fmt.Errorf("%w: id %d", ErrNotFound, id))
	}
	return t.removeSlot(idx)
}

// RemovePath deletes the entry at path after checking that it has the
// expected kind.
func (t *Table) RemovePath(path string, kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.lookup(path)
	if !ok {
		return newError(OpRemove, path, ErrNotFound)
	}
	if e.Kind != kind {
		return newError(OpRemove, path, fmt.Errorf("%w: %q is a %s", ErrKindMismatch, path, e.Kind))
	}
	return t.removeSlot(t.slots[e.ID])
}

// ReadAt returns up to size bytes of the file at path starting at off. An
// offset at or beyond the file length yields no bytes.
func (t *Table) ReadAt(path string, off int64, size int) ([]byte, error) {
	if off < 0 || size < 0 {
		return nil, newError(OpRead, path, ErrInvalidOffset)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.lookupFile(OpRead, path)
	if err != nil {
		return nil, err
	}
	e.Atime = t.now()

	if off >= e.Length {
		return []byte{}, nil
	}
	end := min(off+int64(size), e.Length)
	return append([]byte{}, e.Content[off:end]...), nil
}

// WriteAt overwrites the file at path starting at off, extending it as
// needed up to MaxContent. Any gap between the old length and off is zero
// filled. It returns the number of bytes stored, which is short when the
// write reaches MaxContent.
func (t *Table) WriteAt(path string, off int64, data []byte) (int, error) {
	if off < 0 {
		return 0, newError(OpWrite, path, ErrInvalidOffset)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.lookupFile(OpWrite, path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	if off >= MaxContent {
		return 0, newError(OpWrite, path, ErrContentFull)
	}

	end := min(off+int64(len(data)), MaxContent)
	if end > e.Length {
		e.Content = append(e.Content, make([]byte, end-e.Length)...)
		e.Length = end
	}
	n := copy(e.Content[off:end], data)
	e.Mtime = t.now()
	return n, nil
}

// Truncate sets the length of the file at path, zero filling on growth.
func (t *Table) Truncate(path string, size int64) error {
	if size < 0 {
		return newError(OpTruncate, path, ErrInvalidOffset)
	}
	if size > MaxContent {
		return newError(OpTruncate, path, ErrContentFull)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.lookupFile(OpTruncate, path)
	if err != nil {
		return err
	}
	if size < e.Length {
		clear(e.Content[size:])
		e.Content = e.Content[:size]
	} else {
		e.Content = append(e.Content, make([]byte, size-e.Length)...)
	}
	e.Length = size
	e.Mtime = t.now()
	return nil
}

// Touch sets the access and modify times of the entry at path. A zero time
// leaves the corresponding field unchanged.
func (t *Table) Touch(path string, atime, mtime time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.lookup(path)
	if !ok {
		return newError(OpTouch, path, ErrNotFound)
	}
	if !atime.IsZero() {
		e.Atime = atime
	}
	if !mtime.IsZero() {
		e.Mtime = mtime
	}
	return nil
}

// lookup must be called with t.mu held.
func (t *Table) lookup(path string) (*Entry, bool) {
	id, ok := t.paths[path]
	if !ok {
		return nil, false
	}
	return t.entries[t.slots[id]], true
}

func (t *Table) lookupFile(op, path string) (*Entry, error) {
	e, ok := t.lookup(path)
	if !ok {
		return nil, newError(op, path, ErrNotFound)
	}
	if e.Kind != File {
		return nil, newError(op, path, ErrKindMismatch)
	}
	return e, nil
}

// checkParent verifies that the parent of path is a live directory.
func (t *Table) checkParent(path string) error {
	_, parent := Split(path)
	p, ok := t.lookup(parent)
	if !ok {
		return fmt.Errorf("%w: parent %q", ErrNotFound, parent)
	}
	if !p.IsDir() {
		return fmt.Errorf("%w: %q", ErrNotDir, parent)
	}
	return nil
}

func (t *Table) insert(e *Entry) error {
	if len(t.entries) >= t.capacity {
		return fmt.Errorf("%w: table holds %d entries", ErrCapacityExceeded, t.capacity)
	}
	if _, exists := t.paths[e.Path]; exists {
		return ErrExists
	}
	t.entries = append(t.entries, e)
	t.slots[e.ID] = len(t.entries) - 1
	t.paths[e.Path] = e.ID
	return nil
}

func (t *Table) hasChildren(dir string) bool {
	for _, e := range t.entries[1:] {
		if _, parent := Split(e.Path); parent == dir {
			return true
		}
	}
	return false
}

// removeSlot swaps the entry at idx with the last one and shrinks the table.
// The removed entry's content is zeroed before it is dropped.
func (t *Table) removeSlot(idx int) error {
	e := t.entries[idx]
	if e.ID == RootID {
		return newError(OpRemove, e.Path, ErrRootEntry)
	}
	if e.IsDir() && t.hasChildren(e.Path) {
		return newError(OpRemove, e.Path, ErrNotEmpty)
	}

	clear(e.Content)
	e.Content = nil
	e.Length = 0

	last := len(t.entries) - 1
	t.entries[idx] = t.entries[last]
	t.slots[t.entries[idx].ID] = idx
	t.entries[last] = nil
	t.entries = t.entries[:last]
	delete(t.slots, e.ID)
	delete(t.paths, e.Path)

	tableLogger.Debug("Removed %s %q (id %d)", e.Kind, e.Path, e.ID)
	return nil
}
