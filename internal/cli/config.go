package cli

import (
	"flag"
	"os"
	"strings"

	"github.com/avivsinai/mailcorpus/internal/config"
)

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	common := addCommonFlags(fs)
	writeFlag := fs.String("write", "", "Write the effective configuration to this file")
	forceFlag := fs.Bool("force", false, "Overwrite an existing file with --write")

	usage := usageWithFlags(fs, "mailcorpus config [options]",
		"Prints the configuration after defaults, --config file and MAILCORPUS_*",
		"environment variables have been applied.",
	)
	if handled, err := parseFlags(fs, args, usage); err != nil {
		return err
	} else if handled {
		return nil
	}
	if fs.NArg() > 0 {
		return UsageError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg, err := config.LoadConfig(common.Config)
	if err != nil {
		return err
	}

	if path := strings.TrimSpace(*writeFlag); path != "" {
		if err := config.WriteConfig(path, cfg, *forceFlag); err != nil {
			return err
		}
		return writeStdout("Wrote %s\n", path)
	}

	if common.JSON {
		return writeJSON(os.Stdout, newConfigView(cfg))
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	return writeStdout("%s", data)
}

type watchView struct {
	Debounce     string `json:"debounce"`
	PollInterval string `json:"poll_interval"`
}

// configView renders durations as strings ("2s") rather than nanoseconds.
type configView struct {
	OutDir   string    `json:"out_dir"`
	SQLite   string    `json:"sqlite"`
	Workers  int       `json:"workers"`
	MaxFiles int       `json:"max_files"`
	Progress bool      `json:"progress"`
	Watch    watchView `json:"watch"`
}

func newConfigView(cfg config.Config) configView {
	return configView{
		OutDir:   cfg.OutDir,
		SQLite:   cfg.SQLite,
		Workers:  cfg.Workers,
		MaxFiles: cfg.MaxFiles,
		Progress: cfg.Progress,
		Watch: watchView{
			Debounce:     cfg.Watch.Debounce.String(),
			PollInterval: cfg.Watch.PollInterval.String(),
		},
	}
}
