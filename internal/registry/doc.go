// Package registry assigns dense, first-seen integer ids to addresses and
// normalized subject lines. Ids start at 0, are contiguous and are never
// reassigned within a run.
package registry
