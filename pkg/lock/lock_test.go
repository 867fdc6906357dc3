package lock

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

func TestInMemoryObjectLockExclusion(t *testing.T) {
	l := NewInMemoryObjectLock(5 * time.Second)
	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.DoInWriteLock("obj", func() error {
				if atomic.AddInt32(&inside, 1) != 1 {
					t.Error("two writers inside the lock")
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("DoInWriteLock - %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestInMemoryObjectLockTimeout(t *testing.T) {
	l := NewInMemoryObjectLock(20 * time.Millisecond)
	started := make(chan bool)
	release := make(chan bool)
	go l.DoInWriteLock("obj", func() error {
		started <- true
		<-release
		return nil
	})
	<-started
	err := l.DoInWriteLock("obj", func() error { return nil })
	close(release)
	if !ocflerrors.Is(err, ocflerrors.ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
}

func TestDifferentObjectsDoNotContend(t *testing.T) {
	l := NewInMemoryObjectLock(50 * time.Millisecond)
	blocked := make(chan bool)
	release := make(chan bool)
	go l.DoInWriteLock("o1", func() error {
		blocked <- true
		<-release
		return nil
	})
	<-blocked
	if err := l.DoInWriteLock("o2", func() error { return nil }); err != nil {
		t.Errorf("different object must not contend - %v", err)
	}
	close(release)
}

func TestFileLocker(t *testing.T) {
	fl := NewFileLocker(time.Second)
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fl.WithLock("p1", func() error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()
	if len(order) != 4 {
		t.Errorf("all writers must run, got %d", len(order))
	}
}

func TestSQLiteObjectLock(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "lock.db")
	l, err := NewSQLiteObjectLock(dbFile, time.Second)
	if err != nil {
		t.Fatalf("NewSQLiteObjectLock - %v", err)
	}
	defer l.Close()

	ran := false
	if err := l.DoInWriteLock("obj", func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("DoInWriteLock - %v", err)
	}
	if !ran {
		t.Error("action did not run")
	}

	var cnt int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.DoInWriteLock("obj", func() error {
				atomic.AddInt32(&cnt, 1)
				return nil
			}); err != nil {
				t.Errorf("DoInWriteLock - %v", err)
			}
		}()
	}
	wg.Wait()
	if cnt != 4 {
		t.Errorf("all writers must eventually run, got %d", cnt)
	}
}
