// SPDX-License-Identifier: AGPL-3.0-only

// Package singleton serializes access to the run history database across
// server processes using an advisory file lock.
package singleton

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock represents an acquired singleton lock for a database path.
type Lock struct {
	flock *flock.Flock
}

// TryAcquire attempts to acquire a singleton lock for the given database path.
// It returns the lock and true if acquired (primary instance), or nil and
// false if the lock is already held by another process. Secondary instances
// should run without the run history store instead of contending for it.
func TryAcquire(dbPath string) (*Lock, bool, error) {
	lockPath := dbPath + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, false, fmt.Errorf("singleton: create lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("singleton: try lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{flock: fl}, true, nil
}

// Release releases the singleton lock.
func (l *Lock) Release() error {
	return l.flock.Unlock()
}
