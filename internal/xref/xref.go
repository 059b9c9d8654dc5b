// Package xref maintains the thread <-> user participation indices.
// Both directions are updated together, so u is a participant of t exactly
// when t is one of u's threads.
package xref

import "sort"

type set map[int]struct{}

// Index is the pair of additive participation maps.
// It is not safe for concurrent use.
type Index struct {
	threadUsers map[int]set
	userThreads map[int]set
}

func New() *Index {
	return &Index{
		threadUsers: make(map[int]set),
		userThreads: make(map[int]set),
	}
}

// Record unions participants into the thread's set and the thread into
// each participant's set. Repeating a call has no further effect.
func (x *Index) Record(thread int, participants []int) {
	users, ok := x.threadUsers[thread]
	if !ok {
		users = make(set, len(participants))
		x.threadUsers[thread] = users
	}
	for _, user := range participants {
		users[user] = struct{}{}
		threads, ok := x.userThreads[user]
		if !ok {
			threads = make(set, 1)
			x.userThreads[user] = threads
		}
		threads[thread] = struct{}{}
	}
}

// Finalize converts both indices into sorted slices for serialization.
func (x *Index) Finalize() (threadUsers, userThreads map[int][]int) {
	threadUsers = make(map[int][]int, len(x.threadUsers))
	for thread, users := range x.threadUsers {
		threadUsers[thread] = sorted(users)
	}
	userThreads = make(map[int][]int, len(x.userThreads))
	for user, threads := range x.userThreads {
		userThreads[user] = sorted(threads)
	}
	return threadUsers, userThreads
}

func sorted(s set) []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
