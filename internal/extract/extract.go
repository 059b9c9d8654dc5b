// Package extract pulls the date, subject, participants and body out of a
// loosely formatted plaintext mail file.
package extract

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ErrMalformedMessage is matched by every *MalformedMessageError.
var ErrMalformedMessage = errors.New("malformed message")

// MalformedMessageError reports a file that cannot be turned into Fields.
// The file is unrecoverable for the current run.
type MalformedMessageError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

// Fields is the raw material of one message, before identity allocation.
type Fields struct {
	Path       string
	Time       string
	Subject    string
	Sender     string
	Recipients []string
	CC         []string
	BCC        []string
	Body       string
}

const bodySeparator = "\n\n"

var (
	datePattern    = headerPattern("Date", `([A-Z][a-z]+, \d{1,2} [A-Z][a-z]+ \d{4} \d{2}:\d{2}:\d{2} [+-]\d{4} \([A-Z]{3}\))`)
	subjectPattern = headerPattern("Subject", `(.*)`)
	fromPattern    = headerPattern("From", `(.*)`)
	toPattern      = headerPattern("To", `(.*)`)
	ccPattern      = headerPattern("(?i:cc)", `(.*)`)
	bccPattern     = headerPattern("(?i:bcc)", `(.*)`)

	// quoteBoundary marks the start of a quoted reply: a line of content
	// followed by a "5/14/2001 04:39 PM" style timestamp line.
	quoteBoundary = regexp.MustCompile(`\n+.*\n\d+/\d+/\d+ \d+:\d+ [AP]M`)
	multiSpace    = regexp.MustCompile(`  +`)
)

// header pairs the plain label pattern with its X- prefixed fallback.
// cc and bcc labels match case-insensitively ("Cc:" in most mailers).
type header struct {
	name  string
	plain *regexp.Regexp
	x     *regexp.Regexp
}

func headerPattern(label, value string) header {
	return header{
		name:  strings.TrimSuffix(strings.TrimPrefix(label, "(?i:"), ")"),
		plain: regexp.MustCompile(`(?m)^` + label + `: ?` + value + `$`),
		x:     regexp.MustCompile(`(?m)^X-` + label + `: ?` + value + `$`),
	}
}

func (h header) find(block string) (string, bool) {
	if m := h.plain.FindStringSubmatch(block); m != nil {
		return m[1], true
	}
	if m := h.x.FindStringSubmatch(block); m != nil {
		return m[1], true
	}
	return "", false
}

// ReadFile loads and extracts path. Read failures are reported as
// *MalformedMessageError so callers can treat them like parse failures.
func ReadFile(path string) (Fields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fields{}, &MalformedMessageError{Path: path, Reason: "read file", Err: err}
	}
	return Extract(path, data)
}

// Extract parses raw file content. path is only used for reporting.
func Extract(path string, raw []byte) (Fields, error) {
	text := Sanitize(raw)

	sep := strings.Index(text, bodySeparator)
	if sep < 0 {
		return Fields{}, malformed(path, "missing body separator")
	}
	block := text[:sep]

	values := make(map[string]string, 6)
	for _, h := range []header{datePattern, subjectPattern, fromPattern, toPattern, ccPattern, bccPattern} {
		v, ok := h.find(block)
		if !ok {
			return Fields{}, malformed(path, "missing or unparsable "+h.name+" header")
		}
		values[h.name] = v
	}

	return Fields{
		Path:       path,
		Time:       values["Date"],
		Subject:    strings.TrimSpace(values["Subject"]),
		Sender:     strings.TrimSpace(values["From"]),
		Recipients: SplitAddresses(values["To"]),
		CC:         SplitAddresses(values["cc"]),
		BCC:        SplitAddresses(values["bcc"]),
		Body:       NormalizeBody(body(text[sep+1:])),
	}, nil
}

func malformed(path, reason string) error {
	return &MalformedMessageError{Path: path, Reason: reason}
}

// body takes rest starting at the separator's second newline, which may be
// the leading newline of a quoted-reply boundary, and returns the text after
// that newline up to the first boundary.
func body(rest string) string {
	end := len(rest)
	if loc := quoteBoundary.FindStringIndex(rest); loc != nil {
		end = loc[0]
	}
	if end < 1 {
		return ""
	}
	return rest[1:end]
}

// Sanitize replaces invalid UTF-8, drops everything outside 7-bit ASCII and
// removes carriage returns. Non-ASCII content is lost on purpose.
func Sanitize(raw []byte) string {
	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == '\r' })),
	)
	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if r > unicode.MaxASCII || r == '\r' {
				return -1
			}
			return r
		}, strings.ToValidUTF8(string(raw), ""))
	}
	return string(out)
}

// NormalizeBody turns line breaks into spaces and collapses space runs.
func NormalizeBody(s string) string {
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	return multiSpace.ReplaceAllString(s, " ")
}

// SplitAddresses splits a header value on ", " and drops empty tokens.
func SplitAddresses(line string) []string {
	parts := strings.Split(line, ", ")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
