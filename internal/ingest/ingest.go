// Package ingest drives a corpus run: it walks the store, extracts files on
// a pool of workers and applies the results to a State in traversal order.
package ingest

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/avivsinai/mailcorpus/internal/extract"
	"github.com/avivsinai/mailcorpus/internal/progress"
	"github.com/avivsinai/mailcorpus/internal/snapshot"
	"github.com/avivsinai/mailcorpus/internal/walk"
)

// Options tune a run. The zero value processes every file with one worker
// per CPU and no progress output.
type Options struct {
	// MaxFiles bounds the number of files consumed; <= 0 means no limit.
	MaxFiles int
	Workers  int
	Progress progress.Reporter
	// OnSkip is called for every file or directory that was skipped.
	OnSkip func(path string, err error)
	// Exclude lists paths under root that are not part of the corpus, such
	// as an output directory placed inside it.
	Exclude []string
}

// Stats summarizes a run.
type Stats struct {
	Discovered int           `json:"discovered"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Unreadable int           `json:"unreadable_dirs"`
	Duration   time.Duration `json:"duration_ns"`
}

// Result is the outcome of a completed run.
type Result struct {
	Snapshot *snapshot.Snapshot
	Stats    Stats
}

// Manifest describes r for persistence under a fresh run id.
func (r Result) Manifest(root string, maxFiles int) snapshot.Manifest {
	return snapshot.Manifest{
		Schema:   snapshot.Schema,
		RunID:    uuid.NewString(),
		Created:  time.Now().UTC().Format(time.RFC3339Nano),
		Root:     root,
		MaxFiles: maxFiles,
		Counts: snapshot.Counts{
			Messages:  len(r.Snapshot.Messages),
			Users:     len(r.Snapshot.Users),
			Threads:   len(r.Snapshot.Threads),
			Processed: r.Stats.Processed,
			Skipped:   r.Stats.Skipped,
		},
	}
}

type outcome struct {
	path   string
	fields extract.Fields
	err    error
	dir    bool
}

type job struct {
	path string
	out  chan<- outcome
}

// Run ingests root. Malformed or unreadable files are skipped and reported
// through opts; they never fail the run. Cancelling ctx stops the run at the
// next file boundary and returns ctx.Err() with no result.
func Run(ctx context.Context, root string, opts Options) (Result, error) {
	start := time.Now()
	if _, err := os.Stat(root); err != nil {
		return Result{}, fmt.Errorf("corpus root: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	rep := opts.Progress
	if rep == nil {
		rep = progress.Nop{}
	}

	stats := Stats{Discovered: walk.Count(root, opts.MaxFiles, walk.WithSkip(opts.Exclude...))}
	rep.Start(stats.Discovered)

	jobs := make(chan job)
	pending := make(chan chan outcome, 2*workers)

	for i := 0; i < workers; i++ {
		go func() {
			for j := range jobs {
				fields, err := extract.ReadFile(j.path)
				j.out <- outcome{path: j.path, fields: fields, err: err}
			}
		}()
	}

	go func() {
		defer close(pending)
		defer close(jobs)
		w := walk.New(root,
			walk.WithLimit(opts.MaxFiles),
			walk.WithDirHook(rep.Directory),
			walk.WithSkip(opts.Exclude...),
		)
		for path, err := range w.Files() {
			if ctx.Err() != nil {
				return
			}
			out := make(chan outcome, 1)
			if err != nil {
				out <- outcome{path: path, err: err, dir: true}
				pending <- out
				continue
			}
			pending <- out
			jobs <- job{path: path, out: out}
		}
	}()

	state := NewState()
	for out := range pending {
		o := <-out
		if o.err != nil {
			if o.dir {
				stats.Unreadable++
			} else {
				stats.Skipped++
			}
			rep.Skip(o.path, o.err)
			if opts.OnSkip != nil {
				opts.OnSkip(o.path, o.err)
			}
			continue
		}
		state.Apply(o.fields)
		stats.Processed++
		rep.Advance(stats.Processed + stats.Skipped)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	stats.Duration = time.Since(start)
	rep.Finish(stats.Processed, stats.Skipped, stats.Duration)
	return Result{Snapshot: state.Snapshot(), Stats: stats}, nil
}
