package durable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Stage is a hidden sibling directory that collects files before they are
// published under Final in one rename.
type Stage struct {
	Dir   string
	Final string
}

// NewStage creates an empty staging directory next to final. tag keeps
// concurrent stages apart and shows up in leftovers after a crash.
func NewStage(final, tag string) (*Stage, error) {
	final = filepath.Clean(final)
	parent := filepath.Dir(final)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, err
	}
	dir := filepath.Join(parent, fmt.Sprintf(".%s.tmp-%s", filepath.Base(final), tag))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, err
	}
	return &Stage{Dir: dir, Final: final}, nil
}

// Write adds a file to the stage.
func (s *Stage) Write(filename string, data []byte) error {
	return writeAndSync(filepath.Join(s.Dir, filename), data, 0o644)
}

// Abort removes the stage. Final is untouched.
func (s *Stage) Abort() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return err
	}
	return SyncDir(filepath.Dir(s.Dir))
}

// Commit replaces Final with the staged directory. An existing Final is
// moved aside first and restored if the swap fails, so readers always see
// either the old or the new directory in full.
func (s *Stage) Commit() error {
	parent := filepath.Dir(s.Final)
	if err := SyncDir(s.Dir); err != nil {
		return cleanupTemp(s.Dir, fmt.Errorf("sync stage: %w", err))
	}

	backup := ""
	if _, err := os.Lstat(s.Final); err == nil {
		backup = s.Dir + ".old"
		if err := os.Rename(s.Final, backup); err != nil {
			return cleanupTemp(s.Dir, fmt.Errorf("move aside %s: %w", s.Final, err))
		}
	} else if !os.IsNotExist(err) {
		return cleanupTemp(s.Dir, err)
	}

	if err := os.Rename(s.Dir, s.Final); err != nil {
		primary := fmt.Errorf("publish %s: %w", s.Final, err)
		return rollback(s.Dir, backup, s.Final, primary)
	}
	if err := SyncDir(parent); err != nil {
		return fmt.Errorf("sync %s: %w", parent, err)
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("remove previous %s: %w", backup, err)
		}
	}
	return nil
}

func rollback(stage, backup, final string, primary error) error {
	var cleanupErr error
	if backup != "" {
		if err := os.Rename(backup, final); err != nil {
			cleanupErr = errors.Join(cleanupErr, fmt.Errorf("restore %s: %w", final, err))
		}
	}
	if err := os.RemoveAll(stage); err != nil {
		cleanupErr = errors.Join(cleanupErr, fmt.Errorf("remove stage %s: %w", stage, err))
	}
	if cleanupErr == nil {
		return primary
	}
	return fmt.Errorf("%w (rollback: %v)", primary, cleanupErr)
}
