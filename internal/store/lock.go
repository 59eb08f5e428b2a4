package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock is a cross-process lock on <dir>/.lock.
// A writer holds it exclusively; read-only openers share it.
type DirLock struct {
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates (but does not acquire) the lock for dir.
func NewDirLock(dir string) *DirLock {
	return &DirLock{flock: flock.New(filepath.Join(dir, ".lock"))}
}

// TryLock attempts an exclusive lock without blocking.
func (l *DirLock) TryLock() (bool, error) {
	return l.try(l.flock.TryLock)
}

// TryRLock attempts a shared lock without blocking.
func (l *DirLock) TryRLock() (bool, error) {
	return l.try(l.flock.TryRLock)
}

func (l *DirLock) try(fn func() (bool, error)) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := fn()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock releases the lock. Calling it on an unheld lock is a no-op.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.flock.Path()
}
