package registry

import "strings"

// Registry maps keys to ids in first-seen order.
// It is not safe for concurrent use; the ingest writer is its only caller.
type Registry struct {
	ids       map[string]int
	normalize func(string) string
}

// NewUsers returns a registry keyed by address exactly as written.
func NewUsers() *Registry {
	return &Registry{ids: make(map[string]int)}
}

// NewThreads returns a registry keyed by NormalizeSubject(subject).
func NewThreads() *Registry {
	return &Registry{ids: make(map[string]int), normalize: NormalizeSubject}
}

// Allocate returns the id for key, assigning the next free id if key is new.
func (r *Registry) Allocate(key string) int {
	key = r.key(key)
	if id, ok := r.ids[key]; ok {
		return id
	}
	id := len(r.ids)
	r.ids[key] = id
	return id
}

// Map returns a copy of the key -> id mapping.
func (r *Registry) Map() map[string]int {
	out := make(map[string]int, len(r.ids))
	for k, v := range r.ids {
		out[k] = v
	}
	return out
}

func (r *Registry) key(raw string) string {
	if r.normalize == nil {
		return raw
	}
	return r.normalize(raw)
}

// replyPrefixes are stripped from the front of a subject, repeatedly.
var replyPrefixes = []string{"RE: ", "Re: ", "FWD: ", "Fwd: "}

// NormalizeSubject strips leading reply/forward prefixes so that
// "RE: Q1 Budget", "Re: Fwd: Q1 Budget" and "Q1 Budget" collapse to one key.
// It is idempotent.
func NormalizeSubject(subject string) string {
	for {
		stripped := false
		for _, prefix := range replyPrefixes {
			if strings.HasPrefix(subject, prefix) {
				subject = subject[len(prefix):]
				stripped = true
			}
		}
		if !stripped {
			return subject
		}
	}
}
