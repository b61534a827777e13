// Package reconcile decides, per conversation thread, which messages have
// already been shown and which arrived through a live update and are still
// held back. It is the single source of truth for read/unread state within
// one viewer session.
//
// A thread moves through three states:
//
//	Untracked    no entry in the store
//	Settled-only entry exists, nothing pending
//	HasPending   entry exists, pending is non-empty
//
// SetInitialMessages and AddNewMessages create entries, AddNewMessages grows
// pending, and ShowNewMessages folds pending back into settled.
package reconcile

import (
	"sync"

	"claudeview/internal/types"
)

// ThreadState is a copy of one thread's partition, returned by Store.State.
type ThreadState struct {
	Settled []types.Message `json:"settled"`
	Pending []types.Message `json:"pending"`
}

// threadState is the mutable per-thread record. The id sets mirror the
// identities present in each slice; settled may also hold identity-less
// messages captured at baseline time, which never appear in settledIDs.
type threadState struct {
	settled    []types.Message
	pending    []types.Message
	settledIDs map[string]struct{}
	pendingIDs map[string]struct{}
}

func newThreadState(thread types.Thread) *threadState {
	ts := &threadState{
		settled:    make([]types.Message, 0, len(thread)),
		settledIDs: make(map[string]struct{}, len(thread)),
		pendingIDs: make(map[string]struct{}),
	}
	ts.settle(thread)
	return ts
}

// settle appends messages straight into settled, skipping identities it
// already knows. Used for baselines, never for live growth.
func (ts *threadState) settle(thread types.Thread) {
	for _, msg := range thread {
		id, ok := MessageIdentity(msg)
		if !ok {
			ts.settled = append(ts.settled, msg)
			continue
		}
		if ts.knows(id) {
			continue
		}
		ts.settled = append(ts.settled, msg)
		ts.settledIDs[id] = struct{}{}
	}
}

func (ts *threadState) knows(id string) bool {
	if _, ok := ts.settledIDs[id]; ok {
		return true
	}
	_, ok := ts.pendingIDs[id]
	return ok
}

// Store maps thread identity to ThreadState. The zero value is not usable;
// call NewStore.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*threadState
}

// NewStore creates an empty store. Every thread starts Untracked.
func NewStore() *Store {
	return &Store{threads: make(map[string]*threadState)}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// SetInitialMessages replaces the whole store with a baseline built from the
// snapshot: every trackable thread becomes Settled-only with all of its
// messages. Threads without a resolvable id stay Untracked. Call it once per
// full load and again whenever the query changes; never interleave it with
// an in-flight AddNewMessages for a different query.
func (s *Store) SetInitialMessages(snapshot []types.Thread) {
	threads := make(map[string]*threadState, len(snapshot))
	for _, thread := range snapshot {
		id, ok := ThreadID(thread)
		if !ok {
			continue
		}
		if existing, dup := threads[id]; dup {
			existing.settle(thread)
			continue
		}
		threads[id] = newThreadState(thread)
	}

	s.mu.Lock()
	s.threads = threads
	s.mu.Unlock()
}

// AddNewMessages diffs a snapshot against the store. Unknown trackable
// threads are adopted fully settled (thread discovery is not "new
// messages"). For known threads every message whose identity is not yet in
// settled or pending is appended to pending in snapshot order. Messages
// without identity are ignored. Returns the number of messages that became
// pending.
//
// Applying the same snapshot twice is a no-op the second time.
func (s *Store) AddNewMessages(snapshot []types.Thread) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	created := make(map[string]struct{})
	for _, thread := range snapshot {
		id, ok := ThreadID(thread)
		if !ok {
			continue
		}

		ts, exists := s.threads[id]
		if !exists {
			s.threads[id] = newThreadState(thread)
			created[id] = struct{}{}
			continue
		}
		if _, fresh := created[id]; fresh {
			// same thread listed twice in one snapshot: still baseline
			ts.settle(thread)
			continue
		}

		for _, msg := range thread {
			msgID, ok := MessageIdentity(msg)
			if !ok || ts.knows(msgID) {
				continue
			}
			ts.pending = append(ts.pending, msg)
			ts.pendingIDs[msgID] = struct{}{}
			added++
		}
	}
	return added
}

// ShowNewMessages reveals a thread's pending messages by appending them to
// settled in their arrival order, then clears pending. Unknown threads and
// threads with nothing pending are left alone. Returns how many messages
// were moved.
func (s *Store) ShowNewMessages(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.threads[threadID]
	if !ok || len(ts.pending) == 0 {
		return 0
	}

	moved := 0
	for _, msg := range ts.pending {
		id, ok := MessageIdentity(msg)
		if !ok {
			continue
		}
		if _, dup := ts.settledIDs[id]; dup {
			continue
		}
		ts.settled = append(ts.settled, msg)
		ts.settledIDs[id] = struct{}{}
		moved++
	}
	ts.pending = nil
	ts.pendingIDs = make(map[string]struct{})
	return moved
}

// ShowAllNewMessages reveals every thread. Returns the total moved.
func (s *Store) ShowAllNewMessages() int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.threads))
	for id, ts := range s.threads {
		if len(ts.pending) > 0 {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	total := 0
	for _, id := range ids {
		total += s.ShowNewMessages(id)
	}
	return total
}

// Clear drops every thread back to Untracked.
func (s *Store) Clear() {
	s.mu.Lock()
	s.threads = make(map[string]*threadState)
	s.mu.Unlock()
}

// =============================================================================
// INSPECTION
// =============================================================================

// State returns a copy of a thread's partition.
func (s *Store) State(threadID string) (ThreadState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.threads[threadID]
	if !ok {
		return ThreadState{}, false
	}
	return ThreadState{
		Settled: append([]types.Message(nil), ts.settled...),
		Pending: append([]types.Message(nil), ts.pending...),
	}, true
}

// Len returns the number of tracked threads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// TotalUnread sums pending counts over all threads.
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, ts := range s.threads {
		total += len(ts.pending)
	}
	return total
}
