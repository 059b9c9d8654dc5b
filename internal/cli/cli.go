package cli

const (
	envConfig = "MAILCORPUS_CONFIG"
)

func Run(args []string) error {
	if len(args) == 0 {
		if err := printUsage(); err != nil {
			return err
		}
		return UsageError("missing command")
	}
	if isHelp(args[0]) {
		return printUsage()
	}

	switch args[0] {
	case "ingest":
		return runIngest(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "show":
		return runShow(args[1:])
	case "config":
		return runConfig(args[1:])
	default:
		return UsageError("unknown command: %s", args[0])
	}
}

func printUsage() error {
	lines := []string{
		"mailcorpus - ingest plaintext mail stores into user/thread indices",
		"",
		"Usage:",
		"  mailcorpus <command> [options]",
		"",
		"Commands:",
		"  ingest    Walk a mail store once and write a snapshot",
		"  watch     Ingest, then re-ingest whenever the store changes",
		"  show      Query a written snapshot (user threads, thread participants)",
		"  config    Print or write the effective configuration",
		"",
		"Environment:",
		"  MAILCORPUS_CONFIG     Default config file",
		"  MAILCORPUS_OUT_DIR    Snapshot directory (default user_data)",
		"  MAILCORPUS_SQLITE     Also mirror snapshots into this SQLite db",
		"  MAILCORPUS_WORKERS    Extraction workers (default: one per CPU)",
	}
	for _, line := range lines {
		if err := writeStdoutLine(line); err != nil {
			return err
		}
	}
	return nil
}
