package scheduler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a host-level single-writer guard backed by an advisory file lock.
type FileLock struct {
	path string
	lock *flock.Flock
}

// NewFileLock creates the parent directory of path if needed.
func NewFileLock(path string) (*FileLock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
	}
	return &FileLock{path: path, lock: flock.New(path)}, nil
}

// TryLock acquires the lock without blocking; false means another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	ok, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.path, err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}
