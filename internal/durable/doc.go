// Package durable holds the crash-safe filesystem primitives used to commit
// snapshots: fsync'd atomic file writes and a staged directory swap.
package durable
