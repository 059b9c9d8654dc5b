// Package progress reports ingest progress to a human. Output is advisory
// and never part of the snapshot contract.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Reporter receives progress events from the ingest writer.
type Reporter interface {
	Start(total int)
	Directory(dir string)
	Advance(done int)
	Skip(path string, err error)
	Finish(done, skipped int, elapsed time.Duration)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Start(int)                      {}
func (Nop) Directory(string)               {}
func (Nop) Advance(int)                    {}
func (Nop) Skip(string, error)             {}
func (Nop) Finish(int, int, time.Duration) {}

// Writer prints progress lines to w. On a terminal the per-file counter is
// redrawn in place; otherwise a line is printed every 1000 files.
type Writer struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	every       int
	total       int
	dirty       bool
	showDirs    bool
}

// New returns a Writer for w. Terminal detection applies only to *os.File.
func New(w io.Writer, showDirs bool) *Writer {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Writer{w: w, interactive: interactive, every: 1000, showDirs: showDirs}
}

// Stderr is New(os.Stderr, true).
func Stderr() *Writer {
	return New(os.Stderr, true)
}

func (p *Writer) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.line("Total files to process: %d\n", total)
}

func (p *Writer) Directory(dir string) {
	if !p.showDirs {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line("Processing directory: %s\n", dir)
}

func (p *Writer) Advance(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive {
		_, _ = fmt.Fprintf(p.w, "\rProcessing files: %d/%d", done, p.total)
		p.dirty = true
		return
	}
	if done%p.every == 0 || done == p.total {
		_, _ = fmt.Fprintf(p.w, "Processing files: %d/%d\n", done, p.total)
	}
}

func (p *Writer) Skip(path string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line("warning: skipping %s: %v\n", path, err)
}

func (p *Writer) Finish(done, skipped int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line("Processed %d file(s), skipped %d in %s\n", done, skipped, elapsed.Round(time.Millisecond))
}

// line prints a full line, first ending an in-place counter if one is shown.
func (p *Writer) line(format string, args ...any) {
	if p.dirty {
		_, _ = fmt.Fprintln(p.w)
		p.dirty = false
	}
	_, _ = fmt.Fprintf(p.w, format, args...)
}
