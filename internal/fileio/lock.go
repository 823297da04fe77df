package fileio

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockTimeout is returned when the advisory lock cannot be acquired
// within the configured wait.
var ErrLockTimeout = errors.New("lock acquire timeout")

// Lock is a held advisory lock. Release must be called exactly once.
type Lock struct {
	path string
}

const lockPollInterval = 100 * time.Millisecond

// AcquireLock takes a cooperative cross-process lock by exclusively
// creating lockPath, polling until timeout. The lock file records the
// holder pid for diagnostics; stale locks are not stolen.
func AcquireLock(lockPath string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &Lock{path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file %s: %w", lockPath, err)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, lockPath, timeout)
		}
		time.Sleep(lockPollInterval)
	}
}

// Release drops the lock.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: unable to remove lock file %s: %v\n", l.path, err)
	}
}
