// Package snapshot defines the persisted output of an ingest run and writes
// it all-or-nothing: readers see either the previous complete snapshot or
// the new one, never a mix.
package snapshot

import (
	"errors"
	"fmt"
	"sort"
)

// Schema is bumped when the on-disk layout changes.
const Schema = 1

// File names inside a snapshot directory. The manifest is written last.
const (
	MessagesFile    = "messages.json"
	UsersFile       = "users.json"
	ThreadsFile     = "threads.json"
	ThreadUsersFile = "thread_users.json"
	UserThreadsFile = "user_threads.json"
	ManifestFile    = "manifest.json"
)

// Message is one successfully extracted mail file.
type Message struct {
	Time       string `json:"time"`
	Thread     int    `json:"thread"`
	Sender     int    `json:"sender"`
	Recipients []int  `json:"recipients"`
	CC         []int  `json:"cc"`
	BCC        []int  `json:"bcc"`
	Body       string `json:"message"`
	Path       string `json:"filepath"`
}

// Participants returns sender, recipients, cc and bcc in that order,
// duplicates included.
func (m Message) Participants() []int {
	out := make([]int, 0, 1+len(m.Recipients)+len(m.CC)+len(m.BCC))
	out = append(out, m.Sender)
	out = append(out, m.Recipients...)
	out = append(out, m.CC...)
	out = append(out, m.BCC...)
	return out
}

// Snapshot is the finalized state of one run.
type Snapshot struct {
	Messages    []Message
	Users       map[string]int
	Threads     map[string]int
	ThreadUsers map[int][]int
	UserThreads map[int][]int
}

// Counts summarizes a snapshot and the run that produced it.
type Counts struct {
	Messages  int `json:"messages"`
	Users     int `json:"users"`
	Threads   int `json:"threads"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// Manifest marks a snapshot directory as complete.
type Manifest struct {
	Schema   int    `json:"schema"`
	RunID    string `json:"run_id"`
	Created  string `json:"created"`
	Root     string `json:"root"`
	MaxFiles int    `json:"max_files,omitempty"`
	Counts   Counts `json:"counts"`
}

// ErrInvalid is matched by errors returned from Validate.
var ErrInvalid = errors.New("invalid snapshot")

// Validate checks id density and that the two indices are exact inverses.
func (s *Snapshot) Validate() error {
	if err := checkDense("user", s.Users); err != nil {
		return err
	}
	if err := checkDense("thread", s.Threads); err != nil {
		return err
	}
	for i, msg := range s.Messages {
		if msg.Thread < 0 || msg.Thread >= len(s.Threads) {
			return fmt.Errorf("%w: message %d has unknown thread %d", ErrInvalid, i, msg.Thread)
		}
		for _, user := range msg.Participants() {
			if user < 0 || user >= len(s.Users) {
				return fmt.Errorf("%w: message %d has unknown user %d", ErrInvalid, i, user)
			}
			if !containsSorted(s.ThreadUsers[msg.Thread], user) {
				return fmt.Errorf("%w: user %d of message %d missing from thread %d", ErrInvalid, user, i, msg.Thread)
			}
		}
	}
	for thread, users := range s.ThreadUsers {
		for _, user := range users {
			if !containsSorted(s.UserThreads[user], thread) {
				return fmt.Errorf("%w: thread %d lists user %d but not vice versa", ErrInvalid, thread, user)
			}
		}
	}
	for user, threads := range s.UserThreads {
		for _, thread := range threads {
			if !containsSorted(s.ThreadUsers[thread], user) {
				return fmt.Errorf("%w: user %d lists thread %d but not vice versa", ErrInvalid, user, thread)
			}
		}
	}
	return nil
}

func checkDense(kind string, ids map[string]int) error {
	seen := make([]bool, len(ids))
	for key, id := range ids {
		if id < 0 || id >= len(ids) || seen[id] {
			return fmt.Errorf("%w: %s id %d for %q is not dense", ErrInvalid, kind, id, key)
		}
		seen[id] = true
	}
	return nil
}

func containsSorted(values []int, v int) bool {
	i := sort.SearchInts(values, v)
	return i < len(values) && values[i] == v
}

// ReverseUsers maps user ids back to addresses.
func (s *Snapshot) ReverseUsers() []string {
	out := make([]string, len(s.Users))
	for addr, id := range s.Users {
		if id >= 0 && id < len(out) {
			out[id] = addr
		}
	}
	return out
}

// ReverseThreads maps thread ids back to normalized subjects.
func (s *Snapshot) ReverseThreads() []string {
	out := make([]string, len(s.Threads))
	for subject, id := range s.Threads {
		if id >= 0 && id < len(out) {
			out[id] = subject
		}
	}
	return out
}
