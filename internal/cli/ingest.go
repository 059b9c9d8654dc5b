package cli

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/avivsinai/mailcorpus/internal/ingest"
	"github.com/avivsinai/mailcorpus/internal/progress"
	"github.com/avivsinai/mailcorpus/internal/snapshot"
	"github.com/avivsinai/mailcorpus/internal/store"
)

type ingestSummary struct {
	RunID      string          `json:"run_id"`
	Root       string          `json:"root"`
	OutDir     string          `json:"out_dir"`
	SQLite     string          `json:"sqlite,omitempty"`
	MaxFiles   int             `json:"max_files,omitempty"`
	Counts     snapshot.Counts `json:"counts"`
	Unreadable int             `json:"unreadable_dirs"`
	Duration   string          `json:"duration"`
}

// snapshotWriter is snapshot.Write or snapshot.TryWrite.
type snapshotWriter func(dir string, snap *snapshot.Snapshot, m snapshot.Manifest) error

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	flags := addRunFlags(fs)

	usage := usageWithFlags(fs, "mailcorpus ingest [options] <root> [max_files]",
		"Walks <root> (a maildir tree or a single message file), extracts every",
		"well-formed message and writes the snapshot to --out. Malformed files are",
		"skipped with a warning. max_files bounds the number of files consumed.",
	)
	if handled, err := parseFlags(fs, args, usage); err != nil {
		return err
	} else if handled {
		return nil
	}
	opts, err := flags.resolve(fs)
	if err != nil {
		return err
	}
	if err := rootExists(opts.Root); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := ingestOnce(ctx, opts, snapshot.Write)
	if err != nil {
		return err
	}
	return outputIngestSummary(opts.JSON, summary)
}

// ingestOnce runs one ingest and persists the result: the JSON snapshot
// first, then the optional SQLite mirror.
func ingestOnce(ctx context.Context, opts runOptions, write snapshotWriter) (ingestSummary, error) {
	ingestOpts := ingest.Options{
		MaxFiles: opts.MaxFiles,
		Workers:  opts.Config.Workers,
		Progress: progress.Nop{},
		Exclude:  outputsUnder(opts.Root, opts.Config),
	}
	if opts.Quiet {
		ingestOpts.OnSkip = func(path string, err error) {
			_ = writeStderr("warning: skipping %s: %v\n", path, err)
		}
	} else {
		ingestOpts.Progress = progress.Stderr()
	}

	res, err := ingest.Run(ctx, opts.Root, ingestOpts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ingestSummary{}, NotFoundError("corpus root not found: %s", opts.Root)
		}
		return ingestSummary{}, err
	}

	manifest := res.Manifest(opts.Root, opts.MaxFiles)
	if err := write(opts.Config.OutDir, res.Snapshot, manifest); err != nil {
		return ingestSummary{}, err
	}
	if opts.Config.SQLite != "" {
		if err := mirrorToSQLite(ctx, opts.Config.SQLite, res.Snapshot, manifest); err != nil {
			return ingestSummary{}, err
		}
	}

	return ingestSummary{
		RunID:      manifest.RunID,
		Root:       opts.Root,
		OutDir:     opts.Config.OutDir,
		SQLite:     opts.Config.SQLite,
		MaxFiles:   opts.MaxFiles,
		Counts:     manifest.Counts,
		Unreadable: res.Stats.Unreadable,
		Duration:   res.Stats.Duration.String(),
	}, nil
}

func mirrorToSQLite(ctx context.Context, path string, snap *snapshot.Snapshot, m snapshot.Manifest) error {
	db, err := store.Open(path)
	if err != nil {
		return &snapshot.PersistenceError{Op: "open sqlite", Path: path, Err: err}
	}
	defer func() { _ = db.Close() }()
	return db.SaveSnapshot(ctx, snap, m)
}

func outputIngestSummary(jsonOut bool, s ingestSummary) error {
	if jsonOut {
		return writeJSON(os.Stdout, s)
	}
	if err := writeStdout("Wrote %d messages, %d users, %d threads to %s (run %s)\n",
		s.Counts.Messages, s.Counts.Users, s.Counts.Threads, s.OutDir, s.RunID); err != nil {
		return err
	}
	if s.Counts.Skipped > 0 || s.Unreadable > 0 {
		if err := writeStdout("Skipped %d malformed file(s), %d unreadable director(ies)\n",
			s.Counts.Skipped, s.Unreadable); err != nil {
			return err
		}
	}
	if s.SQLite != "" {
		return writeStdout("Mirrored to %s\n", s.SQLite)
	}
	return nil
}
