// Package flock provides an advisory, process-exclusive lock on a file.
//
// The lock guards a dataset directory against a second writer in another
// process. It is advisory: readers and processes that do not ask for the
// lock are not blocked.
package flock

import (
	"errors"
	"os"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("flock: already locked")

// Lock is a held lock. Release it with Unlock.
type Lock struct {
	f    *os.File
	path string
}

// TryLock creates path if needed and takes an exclusive lock without
// blocking.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Unlock releases the lock. The lock file is left in place.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
