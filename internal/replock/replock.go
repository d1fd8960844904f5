// Package replock guards the repository's on-disk state with an
// exclusive write lock: a single `.oxen/LOCK` file
// held for the duration of commit, checkout, merge, fetch, and push, so
// two operations against the same working copy never interleave writes.
package replock

import (
	"fmt"
	"path/filepath"

	"github.com/nightlyone/lockfile"

	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// LockFileName is the well-known lock file name under .oxen/.
const LockFileName = "LOCK"

// Lock wraps a nightlyone/lockfile.Lockfile rooted at a repository's
// .oxen directory.
type Lock struct {
	lf   lockfile.Lockfile
	path string
}

// New builds a Lock for the given .oxen directory. It does not acquire
// the lock; call TryLock or Acquire for that.
func New(oxenDir string) (*Lock, error) {
	path := filepath.Join(oxenDir, LockFileName)
	lf, err := lockfile.New(path)
	if err != nil {
		return nil, fmt.Errorf("replock: new lockfile: %w", err)
	}
	return &Lock{lf: lf, path: path}, nil
}

// TryLock attempts to acquire the lock without blocking. It returns a
// KindLocked error if another live process currently holds it; a stale
// lock left by a process that no longer exists is reclaimed by
// nightlyone's TryLock rather than reported.
func (l *Lock) TryLock() error {
	if err := l.lf.TryLock(); err != nil {
		if err == lockfile.ErrBusy {
			return oxerr.New(oxerr.KindLocked, fmt.Sprintf("repository is locked by another process (%s)", l.path))
		}
		return oxerr.Wrap(oxerr.KindIO, fmt.Sprintf("acquire lock %s", l.path), err)
	}
	return nil
}

// Unlock releases the lock. An error from the underlying library is
// returned wrapped as KindIO; WithLock's deferred call discards it.
func (l *Lock) Unlock() error {
	if err := l.lf.Unlock(); err != nil {
		return oxerr.Wrap(oxerr.KindIO, fmt.Sprintf("release lock %s", l.path), err)
	}
	return nil
}

// WithLock acquires the lock, runs fn, and releases it afterwards
// regardless of fn's outcome. This is the shape every operation
// (commit, checkout, merge, fetch, push) should use.
func WithLock(oxenDir string, fn func() error) error {
	l, err := New(oxenDir)
	if err != nil {
		return err
	}
	if err := l.TryLock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}
