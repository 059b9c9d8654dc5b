package ingest

import (
	"github.com/avivsinai/mailcorpus/internal/extract"
	"github.com/avivsinai/mailcorpus/internal/registry"
	"github.com/avivsinai/mailcorpus/internal/snapshot"
	"github.com/avivsinai/mailcorpus/internal/xref"
)

// State is everything one run builds. Only the ingest writer mutates it.
type State struct {
	users    *registry.Registry
	threads  *registry.Registry
	index    *xref.Index
	messages []snapshot.Message
}

func NewState() *State {
	return &State{
		users:   registry.NewUsers(),
		threads: registry.NewThreads(),
		index:   xref.New(),
	}
}

// Apply allocates ids for f (sender, recipients, cc, bcc, then thread),
// appends the message and records the participants in the index.
func (s *State) Apply(f extract.Fields) snapshot.Message {
	msg := snapshot.Message{
		Time:   f.Time,
		Sender: s.users.Allocate(f.Sender),
		Body:   f.Body,
		Path:   f.Path,
	}
	msg.Recipients = s.allocateAll(f.Recipients)
	msg.CC = s.allocateAll(f.CC)
	msg.BCC = s.allocateAll(f.BCC)
	msg.Thread = s.threads.Allocate(f.Subject)

	s.messages = append(s.messages, msg)
	s.index.Record(msg.Thread, msg.Participants())
	return msg
}

func (s *State) allocateAll(addrs []string) []int {
	ids := make([]int, 0, len(addrs))
	for _, addr := range addrs {
		ids = append(ids, s.users.Allocate(addr))
	}
	return ids
}

// Snapshot finalizes the state into serializable form.
func (s *State) Snapshot() *snapshot.Snapshot {
	threadUsers, userThreads := s.index.Finalize()
	messages := make([]snapshot.Message, len(s.messages))
	copy(messages, s.messages)
	return &snapshot.Snapshot{
		Messages:    messages,
		Users:       s.users.Map(),
		Threads:     s.threads.Map(),
		ThreadUsers: threadUsers,
		UserThreads: userThreads,
	}
}
