package store

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/ragstore/ragstore/internal/errors"
)

// writeLock guards a store directory against concurrent writers from other
// processes. Works on Unix, macOS and Windows.
type writeLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// newWriteLock creates a lock for the store directory. The lock file lives
// at <dir>/.ragstore.lock.
func newWriteLock(dir string) *writeLock {
	path := filepath.Join(dir, ".ragstore.lock")
	return &writeLock{path: path, flock: flock.New(path)}
}

// Acquire takes the lock without blocking. A lock held by another process is
// a store-locked error, not a wait.
func (l *writeLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.New(errors.ErrCodeStoreOpen, "create store directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return errors.New(errors.ErrCodeStoreOpen, "acquire store lock", err)
	}
	if !acquired {
		return errors.New(errors.ErrCodeStoreLocked,
			"store is locked by another process", nil).
			WithDetail("lock_file", l.path).
			WithSuggestion("wait for the other ragstore process to finish")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Safe to call on an unlocked lock.
func (l *writeLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return errors.StoreError("release store lock", err)
	}
	return nil
}
