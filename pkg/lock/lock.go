package lock

import (
	"sync"
	"time"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// ObjectLock serializes writers per object id. At most one writer per
// object across all goroutines of the process; waiters acquire or fail
// with ErrLockTimeout after the configured duration.
type ObjectLock interface {
	DoInWriteLock(objectID string, fn func() error) error
}

// lockTable is a table of reference-counted binary semaphores keyed by an
// arbitrary string.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newLockTable(timeout time.Duration) *lockTable {
	return &lockTable{
		entries: map[string]*lockEntry{},
		timeout: timeout,
	}
}

func (t *lockTable) acquire(key string) (*lockEntry, error) {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		t.entries[key] = entry
	}
	entry.refs++
	t.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return entry, nil
	case <-time.After(t.timeout):
		t.release(key, entry, false)
		return nil, ocflerrors.LockTimeout("cannot acquire lock for '%s' within %s", key, t.timeout)
	}
}

func (t *lockTable) release(key string, entry *lockEntry, held bool) {
	if held {
		<-entry.sem
	}
	t.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(t.entries, key)
	}
	t.mu.Unlock()
}

func (t *lockTable) withLock(key string, fn func() error) error {
	entry, err := t.acquire(key)
	if err != nil {
		return err
	}
	defer t.release(key, entry, true)
	return fn()
}

// InMemoryObjectLock coordinates writers within a single process.
type InMemoryObjectLock struct {
	table *lockTable
}

func NewInMemoryObjectLock(timeout time.Duration) *InMemoryObjectLock {
	return &InMemoryObjectLock{table: newLockTable(timeout)}
}

func (l *InMemoryObjectLock) DoInWriteLock(objectID string, fn func() error) error {
	return l.table.withLock(objectID, fn)
}

// FileLocker serializes concurrent writers to the same logical path within
// one staged update.
type FileLocker struct {
	table *lockTable
}

func NewFileLocker(timeout time.Duration) *FileLocker {
	return &FileLocker{table: newLockTable(timeout)}
}

func (l *FileLocker) WithLock(logicalPath string, fn func() error) error {
	return l.table.withLock(logicalPath, fn)
}

var (
	_ ObjectLock = &InMemoryObjectLock{}
)
