package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func mail(from, to, subject, body string) string {
	return "Message-ID: <18782981.1075855378110.JavaMail.evans@thyme>\n" +
		"Date: Mon, 14 May 2001 16:39:00 -0700 (PDT)\n" +
		"From: " + from + "\n" +
		"To: " + to + "\n" +
		"Subject: " + subject + "\n" +
		"Mime-Version: 1.0\n" +
		"X-From: Phillip K Allen\n" +
		"X-cc: \n" +
		"X-bcc: \n" +
		"\n" + body + "\n"
}

func writeMail(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

// sampleCorpus writes three well-formed messages in one thread plus one
// malformed file.
func sampleCorpus(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "maildir")
	writeMail(t, root, "allen-p/sent/1.", mail("phillip.allen@enron.com", "tim.belden@enron.com", "Q1 Budget", "Numbers attached."))
	writeMail(t, root, "belden-t/inbox/1.", mail("tim.belden@enron.com", "phillip.allen@enron.com", "RE: Q1 Budget", "Looks fine."))
	writeMail(t, root, "belden-t/inbox/2.", mail("john.lavorato@enron.com", "tim.belden@enron.com, phillip.allen@enron.com", "Fwd: Q1 Budget", "Approved."))
	writeMail(t, root, "belden-t/inbox/3.", "From: nobody@enron.com\nthis file has no header block\n")
	return root
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	runErr := fn()

	_ = w.Close()
	os.Stdout = oldStdout
	return <-done, runErr
}

func TestParsePositional(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		root     string
		maxFiles int
		wantErr  bool
	}{
		{"root only", []string{"maildir"}, "maildir", 0, false},
		{"root and budget", []string{"maildir/", "100"}, "maildir", 100, false},
		{"no args", nil, "", 0, true},
		{"too many", []string{"a", "1", "2"}, "", 0, true},
		{"zero budget", []string{"maildir", "0"}, "", 0, true},
		{"negative budget", []string{"maildir", "-5"}, "", 0, true},
		{"non-numeric budget", []string{"maildir", "ten"}, "", 0, true},
		{"blank root", []string{"  "}, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, maxFiles, err := parsePositional(tt.args)
			if tt.wantErr {
				if GetExitCode(err) != ExitUsage {
					t.Fatalf("expected usage error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePositional: %v", err)
			}
			if root != tt.root || maxFiles != tt.maxFiles {
				t.Fatalf("got (%q, %d), want (%q, %d)", root, maxFiles, tt.root, tt.maxFiles)
			}
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := GetExitCode(Run([]string{"frobnicate"})); code != ExitUsage {
		t.Fatalf("exit code = %d, want %d", code, ExitUsage)
	}
}

func TestRunWithoutCommand(t *testing.T) {
	out, err := captureStdout(t, func() error { return Run(nil) })
	if code := GetExitCode(err); code != ExitUsage {
		t.Fatalf("exit code = %d (%v), want %d", code, err, ExitUsage)
	}
	if !bytes.Contains([]byte(out), []byte("mailcorpus <command>")) {
		t.Fatalf("usage not printed: %s", out)
	}
}

func TestRunHelp(t *testing.T) {
	out, err := captureStdout(t, func() error { return Run([]string{"--help"}) })
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("mailcorpus <command>")) {
		t.Fatalf("unexpected help output: %s", out)
	}
	out, err = captureStdout(t, func() error { return Run([]string{"ingest", "-h"}) })
	if err != nil {
		t.Fatalf("ingest -h: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("--out")) && !bytes.Contains([]byte(out), []byte("-out")) {
		t.Fatalf("ingest help lacks flags: %s", out)
	}
}
