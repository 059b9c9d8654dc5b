package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avivsinai/mailcorpus/internal/durable"
	"github.com/avivsinai/mailcorpus/internal/lock"
)

// ErrPersistence is matched by every *PersistenceError.
var ErrPersistence = errors.New("snapshot not persisted")

// PersistenceError reports a snapshot that could not be written. The
// previous snapshot, if any, is left in place.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist snapshot: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// LockPath is the advisory lock guarding commits to dir.
func LockPath(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// Write persists snap into dir, waiting for any concurrent writer.
func Write(dir string, snap *Snapshot, m Manifest) error {
	return withLock(dir, lock.WithExclusiveFileLock, snap, m)
}

// TryWrite is like Write but fails with lock.ErrLocked when another
// process is committing to dir.
func TryWrite(dir string, snap *Snapshot, m Manifest) error {
	return withLock(dir, lock.TryExclusiveFileLock, snap, m)
}

func withLock(dir string, locker func(string, func() error) error, snap *Snapshot, m Manifest) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return &PersistenceError{Op: "create parent", Path: filepath.Dir(dir), Err: err}
	}
	err := locker(LockPath(dir), func() error {
		return write(dir, snap, m)
	})
	if err == nil || errors.Is(err, ErrPersistence) || errors.Is(err, lock.ErrLocked) {
		return err
	}
	return &PersistenceError{Op: "lock", Path: LockPath(dir), Err: err}
}

func write(dir string, snap *Snapshot, m Manifest) error {
	if m.Schema == 0 {
		m.Schema = Schema
	}
	files, err := encode(snap, m)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: dir, Err: err}
	}

	tag := m.RunID
	if tag == "" {
		tag = fmt.Sprintf("pid%d", os.Getpid())
	}
	stage, err := durable.NewStage(dir, tag)
	if err != nil {
		return &PersistenceError{Op: "stage", Path: dir, Err: err}
	}
	for _, f := range files {
		if err := stage.Write(f.name, f.data); err != nil {
			return abort(stage, &PersistenceError{Op: "write", Path: filepath.Join(stage.Dir, f.name), Err: err})
		}
	}
	if err := stage.Commit(); err != nil {
		return &PersistenceError{Op: "commit", Path: dir, Err: err}
	}
	return nil
}

func abort(stage *durable.Stage, primary *PersistenceError) error {
	if err := stage.Abort(); err != nil {
		primary.Err = fmt.Errorf("%w (cleanup: %v)", primary.Err, err)
	}
	return primary
}

type encodedFile struct {
	name string
	data []byte
}

// encode renders every file up front so that no encoding error can surface
// after staging has begun. The manifest is last.
func encode(snap *Snapshot, m Manifest) ([]encodedFile, error) {
	messages := snap.Messages
	if messages == nil {
		messages = []Message{}
	}
	parts := []struct {
		name string
		v    any
	}{
		{MessagesFile, messages},
		{UsersFile, nonNilStrings(snap.Users)},
		{ThreadsFile, nonNilStrings(snap.Threads)},
		{ThreadUsersFile, nonNilInts(snap.ThreadUsers)},
		{UserThreadsFile, nonNilInts(snap.UserThreads)},
		{ManifestFile, m},
	}
	out := make([]encodedFile, 0, len(parts))
	for _, p := range parts {
		data, err := json.Marshal(p.v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
		out = append(out, encodedFile{name: p.name, data: append(data, '\n')})
	}
	return out, nil
}

func nonNilStrings(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilInts(m map[int][]int) map[int][]int {
	if m == nil {
		return map[int][]int{}
	}
	return m
}
