package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/avivsinai/mailcorpus/internal/extract"
	"github.com/avivsinai/mailcorpus/internal/snapshot"
)

func mail(from, to, cc, bcc, subject, body string) string {
	return "Message-ID: <1.JavaMail.evans@thyme>\n" +
		"Date: Mon, 14 May 2001 16:39:00 -0700 (PDT)\n" +
		"From: " + from + "\n" +
		"To: " + to + "\n" +
		"Subject: " + subject + "\n" +
		"cc: " + cc + "\n" +
		"bcc: " + bcc + "\n" +
		"X-Folder: \\Phillip_Allen_Jan2002_1\\Allen, Phillip K.\\'Sent Mail\n" +
		"\n" + body + "\n"
}

func write(t *testing.T, root, rel, content string) string {
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

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	write(t, root, "allen-p/sent/1.", mail("phillip.allen@enron.com", "tim.belden@enron.com", "", "", "Q1 Budget", "Numbers attached."))
	write(t, root, "belden-t/inbox/1.", mail("tim.belden@enron.com", "phillip.allen@enron.com", "john.lavorato@enron.com", "", "RE: Q1 Budget", "Looks fine."))
	write(t, root, "lavorato-j/inbox/7.", mail("john.lavorato@enron.com", "phillip.allen@enron.com, tim.belden@enron.com", "", "louise.kitchen@enron.com", "RE: Q1 Budget", "Approved."))
	bad := write(t, root, "lavorato-j/inbox/8.", "From: nobody@enron.com\nno headers here\n")

	var skipped []string
	res, err := Run(context.Background(), root, Options{
		Workers: 3,
		OnSkip: func(path string, err error) {
			if !errors.Is(err, extract.ErrMalformedMessage) {
				t.Errorf("skip error is not malformed: %v", err)
			}
			skipped = append(skipped, path)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(skipped, []string{bad}) {
		t.Fatalf("skipped = %v, want [%s]", skipped, bad)
	}
	if res.Stats.Processed != 3 || res.Stats.Skipped != 1 || res.Stats.Discovered != 4 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}

	snap := res.Snapshot
	if len(snap.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snap.Messages))
	}
	if len(snap.Threads) != 1 {
		t.Fatalf("expected one thread, got %v", snap.Threads)
	}
	thread, ok := snap.Threads["Q1 Budget"]
	if !ok {
		t.Fatalf("normalized subject missing: %v", snap.Threads)
	}
	for _, msg := range snap.Messages {
		if msg.Thread != thread {
			t.Fatalf("message %s in thread %d, want %d", msg.Path, msg.Thread, thread)
		}
	}

	var want []int
	for _, addr := range []string{"phillip.allen@enron.com", "tim.belden@enron.com", "john.lavorato@enron.com", "louise.kitchen@enron.com"} {
		id, ok := snap.Users[addr]
		if !ok {
			t.Fatalf("user %s missing", addr)
		}
		want = append(want, id)
	}
	sort.Ints(want)
	if got := snap.ThreadUsers[thread]; !reflect.DeepEqual(got, want) {
		t.Fatalf("thread participants = %v, want %v", got, want)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestRunAllocatesInTraversalOrder(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 40; i++ {
		write(t, root, fmt.Sprintf("box/%02d.", i), mail(
			fmt.Sprintf("sender%02d@enron.com", i),
			fmt.Sprintf("rcpt%02d@enron.com", i),
			"", "",
			fmt.Sprintf("subject %02d", i),
			"body",
		))
	}

	serial, err := Run(context.Background(), root, Options{Workers: 1})
	if err != nil {
		t.Fatalf("serial Run: %v", err)
	}
	parallel, err := Run(context.Background(), root, Options{Workers: 8})
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}
	if !reflect.DeepEqual(serial.Snapshot, parallel.Snapshot) {
		t.Fatalf("parallel run allocated ids differently from serial run")
	}
	for i, msg := range parallel.Snapshot.Messages {
		if msg.Sender != 2*i || msg.Thread != i {
			t.Fatalf("message %d: sender %d thread %d, want %d and %d", i, msg.Sender, msg.Thread, 2*i, i)
		}
	}
}

func TestRunMaxFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		write(t, root, fmt.Sprintf("d%d/%d.", i%3, i), mail("a@enron.com", "b@enron.com", "", "", fmt.Sprintf("s%d", i), "x"))
	}
	res, err := Run(context.Background(), root, Options{MaxFiles: 4, Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Processed != 4 || len(res.Snapshot.Messages) != 4 {
		t.Fatalf("expected exactly 4 files processed, got %+v", res.Stats)
	}
	if res.Stats.Discovered != 4 {
		t.Fatalf("discovered should honour the budget, got %d", res.Stats.Discovered)
	}
	if err := res.Snapshot.Validate(); err != nil {
		t.Fatalf("budget-limited snapshot invalid: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	if err := snapshot.Write(dir, res.Snapshot, res.Manifest(root, 4)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, m, err := snapshot.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Counts.Messages != 4 || m.MaxFiles != 4 || m.RunID == "" {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if err := loaded.Validate(); err != nil {
		t.Fatalf("loaded snapshot invalid: %v", err)
	}
}

func TestRunMalformedContributesNothing(t *testing.T) {
	root := t.TempDir()
	noSubject := strings.Replace(mail("a@enron.com", "b@enron.com", "", "", "Lonely", "x"), "Subject: Lonely\n", "", 1)
	write(t, root, "only.", noSubject)

	res, err := Run(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := res.Snapshot
	if len(snap.Messages) != 0 || len(snap.Threads) != 0 || len(snap.Users) != 0 {
		t.Fatalf("malformed file leaked into snapshot: %+v", snap)
	}
	if len(snap.ThreadUsers) != 0 || len(snap.UserThreads) != 0 {
		t.Fatalf("malformed file mutated the index: %+v", snap)
	}
	if res.Stats.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %+v", res.Stats)
	}
}

func TestRunSingleFileRoot(t *testing.T) {
	root := t.TempDir()
	path := write(t, root, "1.", mail("a@enron.com", "b@enron.com, c@enron.com", "", "", "hi", "hello"))
	res, err := Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Snapshot.Messages) != 1 || res.Snapshot.Messages[0].Path != path {
		t.Fatalf("unexpected messages: %+v", res.Snapshot.Messages)
	}
	if got := res.Snapshot.Messages[0].Recipients; !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("recipients = %v", got)
	}
}

func TestRunMissingRoot(t *testing.T) {
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	write(t, root, "1.", mail("a@enron.com", "b@enron.com", "", "", "s", "x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, root, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStateApplyOrder(t *testing.T) {
	s := NewState()
	msg := s.Apply(extract.Fields{
		Path:       "p",
		Time:       "t",
		Subject:    "Re: hi",
		Sender:     "s@x",
		Recipients: []string{"r@x"},
		CC:         []string{"c@x", "s@x"},
		BCC:        []string{"b@x"},
		Body:       "body",
	})
	want := snapshot.Message{
		Time: "t", Thread: 0, Sender: 0,
		Recipients: []int{1}, CC: []int{2, 0}, BCC: []int{3},
		Body: "body", Path: "p",
	}
	if !reflect.DeepEqual(msg, want) {
		t.Fatalf("Apply = %+v, want %+v", msg, want)
	}
	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.ThreadUsers[0], []int{0, 1, 2, 3}) {
		t.Fatalf("thread users = %v", snap.ThreadUsers[0])
	}
	if snap.Threads["hi"] != 0 {
		t.Fatalf("threads = %v", snap.Threads)
	}
}
