package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when the import lock cannot be acquired
// within the configured timeout.
var ErrLockTimeout = errors.New("timed out waiting for import lock")

// Locker serializes imports. One import runs at a time under a given
// locker; everything from provisioning to the final push happens while the
// lock is held. Deployments wanting finer granularity can inject a locker
// keyed by repository name.
type Locker interface {
	// Acquire blocks until the lock is held or timeout elapses. On
	// success it returns a release function that must be called exactly
	// once; on timeout it returns ErrLockTimeout.
	Acquire(timeout time.Duration) (release func(), err error)
}

// MemoryLock is a process-wide Locker.
type MemoryLock struct {
	ch chan struct{}
}

// NewMemoryLock returns an unlocked MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{ch: make(chan struct{}, 1)}
}

// Acquire implements Locker.
func (l *MemoryLock) Acquire(timeout time.Duration) (func(), error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}

// FileLock is a host-wide Locker backed by an advisory file lock, for
// deployments running several importer processes against one dist-git
// host.
type FileLock struct {
	path string
}

// NewFileLock returns a Locker using the lock file at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire implements Locker.
func (l *FileLock) Acquire(timeout time.Duration) (func(), error) {
	fl := flock.New(l.path)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	return func() { _ = fl.Unlock() }, nil
}
