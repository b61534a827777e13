package logs

import (
	"fmt"

	"claudeview/internal/types"
)

// GroupMode decides how a session's messages are cut into threads.
type GroupMode string

const (
	// GroupExchange starts a new thread at every user prompt.
	GroupExchange GroupMode = "exchange"
	// GroupSession makes each session file one thread.
	GroupSession GroupMode = "session"
)

// ParseGroupMode validates a configured mode. Empty means GroupExchange.
func ParseGroupMode(s string) (GroupMode, error) {
	switch GroupMode(s) {
	case "", GroupExchange:
		return GroupExchange, nil
	case GroupSession:
		return GroupSession, nil
	}
	return "", fmt.Errorf("unknown group mode %q (want exchange or session)", s)
}

// Group cuts messages into threads. Message order is preserved inside and
// across threads.
func Group(messages []types.Message, mode GroupMode) []types.Thread {
	if len(messages) == 0 {
		return nil
	}
	if mode == GroupSession {
		return []types.Thread{append(types.Thread(nil), messages...)}
	}

	var (
		threads []types.Thread
		current types.Thread
	)
	for _, msg := range messages {
		if msg.Role == types.RoleUser && len(current) > 0 {
			threads = append(threads, current)
			current = nil
		}
		current = append(current, msg)
	}
	if len(current) > 0 {
		threads = append(threads, current)
	}
	return threads
}
