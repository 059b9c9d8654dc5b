package cli

import (
	"context"
	"errors"
	"flag"
	"hash/fnv"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/avivsinai/mailcorpus/internal/lock"
	"github.com/avivsinai/mailcorpus/internal/snapshot"
	"github.com/avivsinai/mailcorpus/internal/walk"
)

type watchResult struct {
	Event     string `json:"event"`
	Runs      int    `json:"runs"`
	Failures  int    `json:"failures"`
	LastRunID string `json:"last_run_id,omitempty"`
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	flags := addRunFlags(fs)
	timeoutFlag := fs.Duration("timeout", 0, "Stop watching after this long (0 = until interrupted)")
	pollFlag := fs.Bool("poll", false, "Use polling fallback instead of fsnotify (for network filesystems)")

	usage := usageWithFlags(fs, "mailcorpus watch [options] <root> [max_files]",
		"Ingests <root>, then re-ingests and rewrites the snapshot whenever the",
		"tree changes. Changes are debounced by watch.debounce from config.",
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
	if *timeoutFlag < 0 {
		return UsageError("--timeout must be >= 0")
	}
	if err := rootExists(opts.Root); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	// The watcher is set up before the first ingest so that changes made
	// while it runs still trigger a re-ingest.
	// Our own output must not count as a change when it lives under root.
	exclude := outputsUnder(opts.Root, opts.Config)
	var watcher changeWatcher
	if *pollFlag {
		watcher = newPollWatcher(opts.Root, opts.Config.Watch.PollInterval, exclude...)
	} else {
		watcher = newChangeWatcher(opts.Root, opts.Config.Watch.PollInterval, exclude...)
	}
	defer func() { _ = watcher.Close() }()

	result := watchResult{}
	cycle := func() {
		summary, err := ingestOnce(ctx, opts, snapshot.TryWrite)
		switch {
		case err == nil:
			result.Runs++
			result.LastRunID = summary.RunID
			if !opts.JSON {
				_ = outputIngestSummary(false, summary)
			}
		case ctx.Err() != nil:
		case errors.Is(err, lock.ErrLocked):
			result.Failures++
			_ = writeStderr("warning: %s is being written by another process, skipping this run\n", opts.Config.OutDir)
		default:
			result.Failures++
			_ = writeStderr("warning: ingest failed: %v\n", err)
		}
	}

	cycle()
	for {
		if err := watcher.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if err := settle(ctx, watcher, opts.Config.Watch.Debounce); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		cycle()
	}

	result.Event = "stopped"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Event = "timeout"
	}
	if opts.JSON {
		return writeJSON(os.Stdout, result)
	}
	return writeStdout("Watch %s after %d run(s), %d failure(s)\n", result.Event, result.Runs, result.Failures)
}

// changeWatcher blocks in Wait until something under the watched root
// changes.
type changeWatcher interface {
	Wait(ctx context.Context) error
	Close() error
}

// settle returns once no change has been seen for quiet.
func settle(ctx context.Context, w changeWatcher, quiet time.Duration) error {
	for {
		qctx, cancel := context.WithTimeout(ctx, quiet)
		err := w.Wait(qctx)
		cancel()
		switch {
		case err == nil:
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return err
		}
	}
}

// newChangeWatcher prefers fsnotify and falls back to polling when it is
// unavailable (inotify limits, unsupported filesystems).
func newChangeWatcher(root string, interval time.Duration, exclude ...string) changeWatcher {
	w, err := newNotifyWatcher(root, exclude...)
	if err != nil {
		_ = writeStderr("warning: fsnotify unavailable (%v), polling every %s\n", err, interval)
		return newPollWatcher(root, interval, exclude...)
	}
	return w
}

type notifyWatcher struct {
	watcher *fsnotify.Watcher
	root    string
	exclude []string
	skip    map[string]bool
}

func newNotifyWatcher(root string, exclude ...string) (*notifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &notifyWatcher{watcher: watcher, root: root, exclude: exclude, skip: make(map[string]bool, len(exclude))}
	for _, p := range exclude {
		w.skip[filepath.Clean(p)] = true
	}
	if err := watcher.Add(root); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	w.addTree(root)
	return w, nil
}

// addTree watches every non-hidden directory under dir, the same set the
// ingest walk descends into.
func (w *notifyWatcher) addTree(dir string) {
	for _, d := range listDirs(dir, w.exclude...) {
		_ = w.watcher.Add(d)
	}
}

func listDirs(root string, exclude ...string) []string {
	var dirs []string
	walker := walk.New(root, walk.WithSkip(exclude...), walk.WithDirHook(func(dir string) {
		dirs = append(dirs, dir)
	}))
	for range walker.Files() {
	}
	return dirs
}

func (w *notifyWatcher) Wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
				}
			}
			return nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return err
		}
	}
}

// ignored reports whether path is hidden (staging directories, editor
// files) or excluded. Both are invisible to the ingest walk.
func (w *notifyWatcher) ignored(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".") || w.skip[filepath.Clean(path)]
}

func (w *notifyWatcher) Close() error {
	return w.watcher.Close()
}

// pollWatcher compares a fingerprint of the tree (paths, sizes, mtimes)
// every interval.
type pollWatcher struct {
	root     string
	interval time.Duration
	exclude  []string
	last     uint64
}

func newPollWatcher(root string, interval time.Duration, exclude ...string) *pollWatcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &pollWatcher{root: root, interval: interval, exclude: exclude, last: fingerprint(root, exclude...)}
}

func (w *pollWatcher) Wait(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if fp := fingerprint(w.root, w.exclude...); fp != w.last {
				w.last = fp
				return nil
			}
		}
	}
}

func (w *pollWatcher) Close() error {
	return nil
}

func fingerprint(root string, exclude ...string) uint64 {
	h := fnv.New64a()
	for path, err := range walk.New(root, walk.WithSkip(exclude...)).Files() {
		_, _ = h.Write([]byte(path))
		if err != nil {
			_, _ = h.Write([]byte{0})
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		_, _ = h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
		_, _ = h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	}
	return h.Sum64()
}
