// Package walk enumerates the regular files of a mail store lazily,
// depth-first and pre-order, skipping hidden entries.
package walk

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Walker produces the files under Root. A Walker holds no traversal
// state; every call to Files restarts from Root.
type Walker struct {
	root  string
	limit int
	onDir func(dir string)
	skip  map[string]bool
}

// Option configures a Walker.
type Option func(*Walker)

// WithLimit stops the walk after n files. n <= 0 means no limit.
func WithLimit(n int) Option {
	return func(w *Walker) { w.limit = n }
}

// WithDirHook calls fn before each directory is listed.
func WithDirHook(fn func(dir string)) Option {
	return func(w *Walker) { w.onDir = fn }
}

// WithSkip leaves out paths, and everything below them. Paths are matched
// as spelled by joining entry names onto root.
func WithSkip(paths ...string) Option {
	return func(w *Walker) {
		if w.skip == nil {
			w.skip = make(map[string]bool, len(paths))
		}
		for _, p := range paths {
			w.skip[filepath.Clean(p)] = true
		}
	}
}

func New(root string, opts ...Option) *Walker {
	w := &Walker{root: root}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Files yields regular file paths in storage listing order. A directory
// that cannot be listed is yielded once as (dir, err) and the walk goes on
// with its siblings. Stopping the range loop abandons the walk.
func (w *Walker) Files() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		info, err := os.Stat(w.root)
		if err != nil {
			yield(w.root, err)
			return
		}
		if !info.IsDir() {
			if info.Mode().IsRegular() {
				yield(w.root, nil)
			}
			return
		}
		yielded := 0
		w.walkDir(w.root, &yielded, yield)
	}
}

// walkDir reports false once the consumer or the limit ends the walk.
func (w *Walker) walkDir(dir string, yielded *int, yield func(string, error) bool) bool {
	if w.onDir != nil {
		w.onDir(dir)
	}
	entries, err := readDirUnsorted(dir)
	if err != nil {
		return yield(dir, err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if w.skip[path] {
			continue
		}
		switch kind := entryKind(path, entry); kind {
		case kindDir:
			if !w.walkDir(path, yielded, yield) {
				return false
			}
		case kindFile:
			if !yield(path, nil) {
				return false
			}
			*yielded++
			if w.limit > 0 && *yielded >= w.limit {
				return false
			}
		}
	}
	return true
}

type kind int

const (
	kindOther kind = iota
	kindDir
	kindFile
)

// entryKind resolves symlinks to regular files; symlinked directories are
// not followed.
func entryKind(path string, entry fs.DirEntry) kind {
	mode := entry.Type()
	switch {
	case mode.IsDir():
		return kindDir
	case mode.IsRegular():
		return kindFile
	case mode&fs.ModeSymlink != 0:
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return kindFile
		}
	}
	return kindOther
}

// readDirUnsorted lists dir in the order the filesystem returns entries.
// os.ReadDir would sort by name.
func readDirUnsorted(dir string) ([]fs.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.ReadDir(-1)
}

// Count returns the number of files Files would yield, ignoring errors.
func Count(root string, limit int, opts ...Option) int {
	n := 0
	opts = append(opts, WithLimit(limit))
	for _, err := range New(root, opts...).Files() {
		if err == nil {
			n++
		}
	}
	return n
}
