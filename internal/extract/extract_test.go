package extract

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const enronHeaders = "Message-ID: <18782981.1075855378110.JavaMail.evans@thyme>\n" +
	"Date: Mon, 14 May 2001 16:39:00 -0700 (PDT)\n" +
	"From: phillip.allen@enron.com\n" +
	"To: tim.belden@enron.com, john.lavorato@enron.com\n" +
	"Subject: RE: Q1 Budget\n" +
	"Cc: mike.grigsby@enron.com\n" +
	"Mime-Version: 1.0\n" +
	"Bcc: mike.grigsby@enron.com\n" +
	"X-From: Phillip K Allen\n" +
	"X-To: Tim Belden <Tim Belden/Enron@EnronXGate>\n" +
	"X-cc: \n" +
	"X-bcc: \n"

func TestExtractEnronMessage(t *testing.T) {
	raw := enronHeaders + "\nHere is our forecast.\n\nNumbers   attached.\n"
	fields, err := Extract("maildir/allen-p/sent/1.", []byte(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.Time != "Mon, 14 May 2001 16:39:00 -0700 (PDT)" {
		t.Fatalf("time = %q", fields.Time)
	}
	if fields.Subject != "RE: Q1 Budget" {
		t.Fatalf("subject = %q", fields.Subject)
	}
	if fields.Sender != "phillip.allen@enron.com" {
		t.Fatalf("sender = %q", fields.Sender)
	}
	wantTo := []string{"tim.belden@enron.com", "john.lavorato@enron.com"}
	if !reflect.DeepEqual(fields.Recipients, wantTo) {
		t.Fatalf("recipients = %v, want %v", fields.Recipients, wantTo)
	}
	if !reflect.DeepEqual(fields.CC, []string{"mike.grigsby@enron.com"}) {
		t.Fatalf("cc = %v", fields.CC)
	}
	if !reflect.DeepEqual(fields.BCC, []string{"mike.grigsby@enron.com"}) {
		t.Fatalf("bcc = %v", fields.BCC)
	}
	if fields.Body != "Here is our forecast. Numbers attached. " {
		t.Fatalf("body = %q", fields.Body)
	}
	if fields.Path != "maildir/allen-p/sent/1." {
		t.Fatalf("path = %q", fields.Path)
	}
}

func TestExtractFallsBackToXHeaders(t *testing.T) {
	raw := "Date: Tue, 1 May 2001 09:00:00 -0700 (PDT)\n" +
		"From: a@enron.com\n" +
		"To: b@enron.com\n" +
		"Subject: hello\n" +
		"X-cc: \n" +
		"X-bcc: \n" +
		"\nbody\n"
	fields, err := Extract("f", []byte(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(fields.CC) != 0 || len(fields.BCC) != 0 {
		t.Fatalf("expected empty cc/bcc, got %v %v", fields.CC, fields.BCC)
	}
	if fields.CC == nil || fields.BCC == nil {
		t.Fatalf("expected non-nil empty slices")
	}
}

func TestExtractBodyCollapsesWhitespace(t *testing.T) {
	raw := "Date: Tue, 1 May 2001 09:00:00 -0700 (PDT)\n" +
		"From: a@enron.com\nTo: b@enron.com\nSubject: s\ncc: \nbcc: \n" +
		"\nline one\r\nline    two\n\n\nline three"
	fields, err := Extract("f", []byte(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.Body != "line one line two line three" {
		t.Fatalf("body = %q", fields.Body)
	}
}

func TestExtractStopsAtQuotedReply(t *testing.T) {
	raw := "Date: Tue, 1 May 2001 09:00:00 -0700 (PDT)\n" +
		"From: a@enron.com\nTo: b@enron.com\nSubject: Re: s\ncc: \nbcc: \n" +
		"\nSounds good.\n\n\nJohn Lavorato@ENRON\n05/01/2001 08:15 AM\nTo: a@enron.com\nold text\n"
	fields, err := Extract("f", []byte(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.Body != "Sounds good." {
		t.Fatalf("body = %q", fields.Body)
	}
}

func TestExtractBodyStartingWithQuotedReply(t *testing.T) {
	raw := "Date: Tue, 1 May 2001 09:00:00 -0700 (PDT)\n" +
		"From: a@enron.com\nTo: b@enron.com\nSubject: Fwd: s\ncc: \nbcc: \n" +
		"\nJohn Lavorato@ENRON\n05/01/2001 08:15 AM\nTo: a@enron.com\nold text\n"
	fields, err := Extract("f", []byte(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.Body != "" {
		t.Fatalf("body = %q, want empty", fields.Body)
	}
}

func TestExtractMalformed(t *testing.T) {
	complete := map[string]string{
		"Date":    "Date: Tue, 1 May 2001 09:00:00 -0700 (PDT)",
		"From":    "From: a@enron.com",
		"To":      "To: b@enron.com",
		"Subject": "Subject: s",
		"cc":      "cc: ",
		"bcc":     "bcc: ",
	}
	order := []string{"Date", "From", "To", "Subject", "cc", "bcc"}
	build := func(skip string) string {
		var lines []string
		for _, key := range order {
			if key == skip {
				continue
			}
			lines = append(lines, complete[key])
		}
		return strings.Join(lines, "\n") + "\n\nbody\n"
	}

	for _, missing := range order {
		t.Run("missing "+missing, func(t *testing.T) {
			_, err := Extract("bad/file", []byte(build(missing)))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Fatalf("expected ErrMalformedMessage, got %v", err)
			}
			var merr *MalformedMessageError
			if !errors.As(err, &merr) || merr.Path != "bad/file" {
				t.Fatalf("expected path in error, got %#v", err)
			}
			if !strings.Contains(merr.Reason, missing) {
				t.Fatalf("reason %q does not name %s", merr.Reason, missing)
			}
		})
	}

	t.Run("no body separator", func(t *testing.T) {
		raw := strings.TrimSuffix(build(""), "\n\nbody\n")
		if _, err := Extract("f", []byte(raw)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("expected ErrMalformedMessage, got %v", err)
		}
	})

	t.Run("unparsable date", func(t *testing.T) {
		raw := strings.Replace(build(""), complete["Date"], "Date: yesterday", 1)
		if _, err := Extract("f", []byte(raw)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("expected ErrMalformedMessage, got %v", err)
		}
	})

	t.Run("subject only in body", func(t *testing.T) {
		raw := build("Subject") + "Subject: forwarded\n"
		if _, err := Extract("f", []byte(raw)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("expected ErrMalformedMessage, got %v", err)
		}
	})
}

func TestReadFileWrapsIOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	_, err := ReadFile(path)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}

func TestSanitize(t *testing.T) {
	raw := []byte("caf\xc3\xa9 na\xefve\r\nend\t!")
	got := Sanitize(raw)
	if got != "caf nave\nend\t!" {
		t.Fatalf("Sanitize = %q", got)
	}
}

func TestSplitAddresses(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"a@enron.com", []string{"a@enron.com"}},
		{"a@enron.com, b@enron.com, ", []string{"a@enron.com", "b@enron.com"}},
		{" a@enron.com ,  b@enron.com", []string{"a@enron.com", "b@enron.com"}},
		{"a@enron.com,b@enron.com", []string{"a@enron.com,b@enron.com"}},
	}
	for _, tt := range tests {
		got := SplitAddresses(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("SplitAddresses(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
