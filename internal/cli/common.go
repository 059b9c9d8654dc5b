package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avivsinai/mailcorpus/internal/config"
	"github.com/avivsinai/mailcorpus/internal/snapshot"
)

type commonFlags struct {
	Config string
	JSON   bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	flags := &commonFlags{}
	fs.StringVar(&flags.Config, "config", defaultConfigPath(), "Config file, YAML/JSON/TOML (or MAILCORPUS_CONFIG)")
	fs.BoolVar(&flags.JSON, "json", false, "Emit JSON output")
	return flags
}

func defaultConfigPath() string {
	return strings.TrimSpace(os.Getenv(envConfig))
}

// outputFlags select where snapshots live. Empty values defer to config.
type outputFlags struct {
	Out    string
	SQLite string
}

func addOutputFlags(fs *flag.FlagSet) *outputFlags {
	flags := &outputFlags{}
	fs.StringVar(&flags.Out, "out", "", "Snapshot directory (default: config out_dir, user_data)")
	fs.StringVar(&flags.SQLite, "sqlite", "", "SQLite database mirroring the snapshot (default: config sqlite)")
	return flags
}

func (o *outputFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	if flagWasSet(fs, "out") {
		cfg.OutDir = o.Out
	}
	if flagWasSet(fs, "sqlite") {
		cfg.SQLite = o.SQLite
	}
}

type runFlags struct {
	common  *commonFlags
	output  *outputFlags
	Workers int
	Quiet   bool
}

func addRunFlags(fs *flag.FlagSet) *runFlags {
	flags := &runFlags{
		common: addCommonFlags(fs),
		output: addOutputFlags(fs),
	}
	fs.IntVar(&flags.Workers, "workers", 0, "Extraction workers (default: config workers, one per CPU)")
	fs.BoolVar(&flags.Quiet, "quiet", false, "Suppress progress output (warnings are still printed)")
	return flags
}

// runOptions is everything an ingest needs after flags, positional
// arguments and config have been merged.
type runOptions struct {
	Root     string
	MaxFiles int
	Config   config.Config
	JSON     bool
	Quiet    bool
}

// resolve merges config (defaults < file < env) with explicitly set flags
// and the positional <root> [max_files].
func (f *runFlags) resolve(fs *flag.FlagSet) (runOptions, error) {
	root, maxFiles, err := parsePositional(fs.Args())
	if err != nil {
		return runOptions{}, err
	}
	cfg, err := config.LoadConfig(f.common.Config)
	if err != nil {
		return runOptions{}, err
	}
	f.output.apply(fs, &cfg)
	if flagWasSet(fs, "workers") {
		if f.Workers < 0 {
			return runOptions{}, UsageError("--workers must be >= 0")
		}
		cfg.Workers = f.Workers
	}
	if maxFiles == 0 {
		maxFiles = cfg.MaxFiles
	}
	if strings.TrimSpace(cfg.OutDir) == "" {
		return runOptions{}, UsageError("--out must not be empty")
	}
	return runOptions{
		Root:     root,
		MaxFiles: maxFiles,
		Config:   cfg,
		JSON:     f.common.JSON,
		Quiet:    f.Quiet || !cfg.Progress,
	}, nil
}

// parsePositional validates <root> [max_files].
func parsePositional(args []string) (string, int, error) {
	if len(args) == 0 || len(args) > 2 {
		return "", 0, UsageError("expected <root> [max_files], got %d argument(s)", len(args))
	}
	root := strings.TrimSpace(args[0])
	if root == "" {
		return "", 0, UsageError("root must not be empty")
	}
	if len(args) == 1 {
		return filepath.Clean(root), 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || n <= 0 {
		return "", 0, UsageError("max_files must be a positive integer, got %q", args[1])
	}
	return filepath.Clean(root), n, nil
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func rootExists(root string) error {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NotFoundError("corpus root not found: %s", root)
		}
		return err
	}
	return nil
}

// outputsUnder lists what mailcorpus itself writes (the snapshot, its lock
// and the SQLite files) that falls inside root, spelled the way a walk of
// root reaches it.
func outputsUnder(root string, cfg config.Config) []string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil
	}
	written := []string{cfg.OutDir, snapshot.LockPath(cfg.OutDir)}
	if cfg.SQLite != "" {
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			written = append(written, cfg.SQLite+suffix)
		}
	}
	var paths []string
	for _, p := range written {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		paths = append(paths, filepath.Join(root, rel))
	}
	return paths
}

func isHelp(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

// parseFlags reports handled=true when help was requested. Flag syntax
// errors are usage errors.
func parseFlags(fs *flag.FlagSet, args []string, usage func()) (bool, error) {
	fs.SetOutput(io.Discard)
	if usage != nil {
		fs.Usage = usage
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, UsageError("%v", err)
	}
	return false, nil
}

func usageWithFlags(fs *flag.FlagSet, usage string, notes ...string) func() {
	return func() {
		_ = writeStdoutLine("Usage:")
		_ = writeStdoutLine("  " + usage)
		if len(notes) > 0 {
			_ = writeStdoutLine("")
			for _, note := range notes {
				_ = writeStdoutLine(note)
			}
		}
		_ = writeStdoutLine("")
		_ = writeStdoutLine("Options:")
		_ = writeFlagDefaults(fs)
	}
}

func writeFlagDefaults(fs *flag.FlagSet) error {
	var buf bytes.Buffer
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	if buf.Len() == 0 {
		return nil
	}
	return writeStdout("%s", buf.String())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStdout(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeStdoutLine(args ...any) error {
	_, err := fmt.Fprintln(os.Stdout, args...)
	return err
}

func writeStderr(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stderr, format, args...)
	return err
}
