//go:build windows

package durable

// SyncDir is a no-op on Windows, where directories cannot be fsync'd.
func SyncDir(string) error {
	return nil
}
