package reconcile

import "claudeview/internal/types"

// ThreadView is what a renderer needs for one thread.
type ThreadView struct {
	ThreadID    string          `json:"threadId,omitempty"`
	Tracked     bool            `json:"tracked"`
	Messages    []types.Message `json:"messages"`
	UnreadCount int             `json:"unreadCount"`
	HasUnread   bool            `json:"hasUnread"`
}

// DisplayMessages returns the messages to show for a thread: the settled
// partition when the thread is tracked, otherwise the thread exactly as
// given. Untracked threads fail open so data is never hidden.
func (s *Store) DisplayMessages(thread types.Thread, threadID string) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ts, ok := s.threads[threadID]; ok {
		return append([]types.Message(nil), ts.settled...)
	}
	return failOpen(thread)
}

// UnreadCount is the number of pending messages for a thread, 0 if untracked.
func (s *Store) UnreadCount(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ts, ok := s.threads[threadID]; ok {
		return len(ts.pending)
	}
	return 0
}

// HasUnreadMessages reports whether a thread has anything pending.
func (s *Store) HasUnreadMessages(threadID string) bool {
	return s.UnreadCount(threadID) > 0
}

// View resolves the thread's id and bundles its projections under one read
// lock, so the messages and the count always agree.
func (s *Store) View(thread types.Thread) ThreadView {
	id, _ := ThreadID(thread)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, tracked := s.threads[id]
	if !tracked {
		return ThreadView{ThreadID: id, Messages: failOpen(thread)}
	}
	return ThreadView{
		ThreadID:    id,
		Tracked:     true,
		Messages:    append([]types.Message(nil), ts.settled...),
		UnreadCount: len(ts.pending),
		HasUnread:   len(ts.pending) > 0,
	}
}

// Views projects a whole snapshot in order.
func (s *Store) Views(snapshot []types.Thread) []ThreadView {
	views := make([]ThreadView, 0, len(snapshot))
	for _, thread := range snapshot {
		views = append(views, s.View(thread))
	}
	return views
}

func failOpen(thread types.Thread) []types.Message {
	if thread == nil {
		return []types.Message{}
	}
	return thread
}
