// Package lock serializes snapshot commits across processes with an
// advisory file lock.
package lock

import "errors"

// ErrLocked is returned by TryExclusiveFileLock when the lock is held.
var ErrLocked = errors.New("lock held by another process")
