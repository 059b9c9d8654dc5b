//go:build darwin || linux

package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// WithExclusiveFileLock runs fn while holding an exclusive advisory lock on
// lockPath, creating the lock file if needed.
//
// The lock lives next to the snapshot directory rather than inside it, since
// the directory itself is replaced by rename on every commit.
func WithExclusiveFileLock(lockPath string, fn func() error) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	return fn()
}

// TryExclusiveFileLock is like WithExclusiveFileLock but returns ErrLocked
// instead of waiting when another process holds the lock.
func TryExclusiveFileLock(lockPath string, fn func() error) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrLocked
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	return fn()
}
