//go:build !darwin && !linux

package lock

// WithExclusiveFileLock runs fn without locking on platforms without flock.
// Concurrent ingest runs writing the same snapshot are then not serialized.
func WithExclusiveFileLock(_ string, fn func() error) error {
	return fn()
}

// TryExclusiveFileLock runs fn without locking; it never reports ErrLocked.
func TryExclusiveFileLock(_ string, fn func() error) error {
	return fn()
}
