package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// FileInstanceLock implements domain.InstanceLock with an advisory file lock.
// The daemon holds it for its lifetime; the CLI probes it to see whether a
// daemon is up.
type FileInstanceLock struct {
	lock *flock.Flock
}

// NewInstanceLock creates a lock at path. The directory is created if missing.
func NewInstanceLock(path string) (*FileInstanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileInstanceLock{lock: flock.New(path)}, nil
}

// TryLock acquires the lock without blocking. false means another process holds it.
func (l *FileInstanceLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquiring lock: %w", err)
	}
	return locked, nil
}

// Unlock releases the lock.
func (l *FileInstanceLock) Unlock() error {
	return l.lock.Unlock()
}

// Path returns the lock file path.
func (l *FileInstanceLock) Path() string {
	return l.lock.Path()
}

// Ensure FileInstanceLock implements domain.InstanceLock.
var _ domain.InstanceLock = (*FileInstanceLock)(nil)
