package cli

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"

	"github.com/avivsinai/mailcorpus/internal/config"
	"github.com/avivsinai/mailcorpus/internal/snapshot"
	"github.com/avivsinai/mailcorpus/internal/store"
)

// manifestResult is the manifest plus, when a mirror is configured, the run
// the mirror was last written by.
type manifestResult struct {
	snapshot.Manifest
	SQLite      string `json:"sqlite,omitempty"`
	SQLiteRunID string `json:"sqlite_run_id,omitempty"`
}

type userThreadsResult struct {
	User    string         `json:"user"`
	Threads []store.Thread `json:"threads"`
}

type threadResult struct {
	Thread   int                `json:"thread"`
	Users    []store.User       `json:"users"`
	Messages []store.MessageRow `json:"messages"`
}

type verifyResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	common := addCommonFlags(fs)
	output := addOutputFlags(fs)
	userFlag := fs.String("user", "", "List the threads this address participates in")
	threadFlag := fs.Int("thread", -1, "List the participants and messages of this thread id")
	verifyFlag := fs.Bool("verify", false, "Check that the snapshot indices are consistent")

	usage := usageWithFlags(fs, "mailcorpus show [options] [--user <addr> | --thread <id> | --verify]",
		"Without a query, prints the snapshot manifest. Queries read the SQLite",
		"mirror when --sqlite (or config sqlite) is set, the JSON snapshot otherwise.",
	)
	if handled, err := parseFlags(fs, args, usage); err != nil {
		return err
	} else if handled {
		return nil
	}
	if fs.NArg() > 0 {
		return UsageError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	queries := 0
	for _, name := range []string{"user", "thread", "verify"} {
		if flagWasSet(fs, name) {
			queries++
		}
	}
	if queries > 1 {
		return UsageError("--user, --thread and --verify are mutually exclusive")
	}
	if flagWasSet(fs, "thread") && *threadFlag < 0 {
		return UsageError("--thread must be >= 0")
	}

	cfg, err := config.LoadConfig(common.Config)
	if err != nil {
		return err
	}
	output.apply(fs, &cfg)

	ctx := context.Background()
	switch {
	case flagWasSet(fs, "user"):
		res, err := lookupUser(ctx, cfg, strings.TrimSpace(*userFlag))
		if err != nil {
			return err
		}
		return outputUserThreads(common.JSON, res)
	case flagWasSet(fs, "thread"):
		res, err := lookupThread(ctx, cfg, *threadFlag)
		if err != nil {
			return err
		}
		return outputThread(common.JSON, res)
	case *verifyFlag:
		return verifySnapshot(common.JSON, cfg.OutDir)
	default:
		res, err := describeSnapshot(ctx, cfg)
		if err != nil {
			return err
		}
		return outputManifest(common.JSON, cfg.OutDir, res)
	}
}

func describeSnapshot(ctx context.Context, cfg config.Config) (manifestResult, error) {
	_, m, err := loadSnapshot(cfg.OutDir)
	if err != nil {
		return manifestResult{}, err
	}
	res := manifestResult{Manifest: m}
	if cfg.SQLite == "" {
		return res, nil
	}
	db, err := openStore(cfg.SQLite)
	if err != nil {
		return res, err
	}
	defer func() { _ = db.Close() }()
	res.SQLite = cfg.SQLite
	if res.SQLiteRunID, err = db.LatestRunID(ctx); err != nil {
		return res, err
	}
	if res.SQLiteRunID != m.RunID {
		_ = writeStderr("warning: sqlite mirror %s holds run %q, snapshot holds %q\n", cfg.SQLite, res.SQLiteRunID, m.RunID)
	}
	return res, nil
}

func loadSnapshot(dir string) (*snapshot.Snapshot, snapshot.Manifest, error) {
	snap, m, err := snapshot.Load(dir)
	if err != nil {
		if errors.Is(err, snapshot.ErrIncomplete) || errors.Is(err, os.ErrNotExist) {
			return nil, snapshot.Manifest{}, NotFoundError("no snapshot in %s", dir)
		}
		return nil, snapshot.Manifest{}, err
	}
	return snap, m, nil
}

func openStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NotFoundError("no sqlite database at %s", path)
		}
		return nil, err
	}
	return store.Open(path)
}

func lookupUser(ctx context.Context, cfg config.Config, addr string) (userThreadsResult, error) {
	res := userThreadsResult{User: addr}
	if cfg.SQLite != "" {
		db, err := openStore(cfg.SQLite)
		if err != nil {
			return res, err
		}
		defer func() { _ = db.Close() }()
		threads, err := db.ThreadsForUser(ctx, addr)
		if errors.Is(err, store.ErrUnknownUser) {
			return res, NotFoundError("unknown user: %s", addr)
		}
		res.Threads = threads
		return res, err
	}

	snap, _, err := loadSnapshot(cfg.OutDir)
	if err != nil {
		return res, err
	}
	id, ok := snap.Users[addr]
	if !ok {
		return res, NotFoundError("unknown user: %s", addr)
	}
	subjects := snap.ReverseThreads()
	res.Threads = make([]store.Thread, 0, len(snap.UserThreads[id]))
	for _, thread := range snap.UserThreads[id] {
		res.Threads = append(res.Threads, store.Thread{ID: thread, Subject: subjects[thread]})
	}
	return res, nil
}

func lookupThread(ctx context.Context, cfg config.Config, thread int) (threadResult, error) {
	res := threadResult{Thread: thread}
	if cfg.SQLite != "" {
		db, err := openStore(cfg.SQLite)
		if err != nil {
			return res, err
		}
		defer func() { _ = db.Close() }()
		if res.Users, err = db.UsersForThread(ctx, thread); err != nil {
			return res, err
		}
		if res.Messages, err = db.MessagesInThread(ctx, thread); err != nil {
			return res, err
		}
		if len(res.Users) == 0 {
			return res, NotFoundError("unknown thread: %d", thread)
		}
		return res, nil
	}

	snap, _, err := loadSnapshot(cfg.OutDir)
	if err != nil {
		return res, err
	}
	if thread >= len(snap.Threads) {
		return res, NotFoundError("unknown thread: %d", thread)
	}
	addrs := snap.ReverseUsers()
	res.Users = make([]store.User, 0, len(snap.ThreadUsers[thread]))
	for _, user := range snap.ThreadUsers[thread] {
		res.Users = append(res.Users, store.User{ID: user, Address: addrs[user]})
	}
	res.Messages = []store.MessageRow{}
	for i, msg := range snap.Messages {
		if msg.Thread != thread {
			continue
		}
		res.Messages = append(res.Messages, store.MessageRow{
			ID:       i,
			Time:     msg.Time,
			ThreadID: msg.Thread,
			Sender:   addrs[msg.Sender],
			Body:     msg.Body,
			Path:     msg.Path,
		})
	}
	return res, nil
}

func verifySnapshot(jsonOut bool, dir string) error {
	snap, _, err := loadSnapshot(dir)
	if err != nil {
		return err
	}
	verr := snap.Validate()
	if jsonOut {
		res := verifyResult{OK: verr == nil}
		if verr != nil {
			res.Error = verr.Error()
		}
		if err := writeJSON(os.Stdout, res); err != nil {
			return err
		}
		return verr
	}
	if verr != nil {
		return verr
	}
	return writeStdoutLine("ok")
}

func outputManifest(jsonOut bool, dir string, res manifestResult) error {
	if jsonOut {
		return writeJSON(os.Stdout, res)
	}
	m := res.Manifest
	if err := writeStdout("Snapshot %s (run %s, created %s)\n  root: %s\n  messages: %d  users: %d  threads: %d  skipped: %d\n",
		dir, m.RunID, m.Created, m.Root, m.Counts.Messages, m.Counts.Users, m.Counts.Threads, m.Counts.Skipped); err != nil {
		return err
	}
	if res.SQLite == "" {
		return nil
	}
	return writeStdout("  sqlite: %s (run %s)\n", res.SQLite, res.SQLiteRunID)
}

func outputUserThreads(jsonOut bool, res userThreadsResult) error {
	if jsonOut {
		return writeJSON(os.Stdout, res)
	}
	if len(res.Threads) == 0 {
		return writeStdout("%s participates in no threads\n", res.User)
	}
	for _, t := range res.Threads {
		if err := writeStdout("%d\t%s\n", t.ID, t.Subject); err != nil {
			return err
		}
	}
	return nil
}

func outputThread(jsonOut bool, res threadResult) error {
	if jsonOut {
		return writeJSON(os.Stdout, res)
	}
	if err := writeStdout("Thread %d: %d participant(s), %d message(s)\n", res.Thread, len(res.Users), len(res.Messages)); err != nil {
		return err
	}
	for _, u := range res.Users {
		if err := writeStdout("  %d\t%s\n", u.ID, u.Address); err != nil {
			return err
		}
	}
	for _, m := range res.Messages {
		if err := writeStdout("  [%s] %s  %s\n", m.Time, m.Sender, m.Path); err != nil {
			return err
		}
	}
	return nil
}
