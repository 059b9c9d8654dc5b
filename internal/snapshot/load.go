package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrIncomplete is returned by Load for a directory without a manifest.
var ErrIncomplete = errors.New("snapshot is incomplete (no manifest)")

// Load reads a snapshot directory written by Write.
func Load(dir string) (*Snapshot, Manifest, error) {
	var m Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Manifest{}, fmt.Errorf("%s: %w", dir, ErrIncomplete)
		}
		return nil, Manifest{}, err
	}
	if m.Schema > Schema {
		return nil, Manifest{}, fmt.Errorf("%s: unsupported snapshot schema %d", dir, m.Schema)
	}

	snap := &Snapshot{}
	targets := []struct {
		name string
		v    any
	}{
		{MessagesFile, &snap.Messages},
		{UsersFile, &snap.Users},
		{ThreadsFile, &snap.Threads},
		{ThreadUsersFile, &snap.ThreadUsers},
		{UserThreadsFile, &snap.UserThreads},
	}
	for _, t := range targets {
		if err := readJSON(filepath.Join(dir, t.name), t.v); err != nil {
			return nil, Manifest{}, err
		}
	}
	return snap, m, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
