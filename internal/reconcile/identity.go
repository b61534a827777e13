package reconcile

import (
	"strings"

	"claudeview/internal/types"
)

// MessageIdentity returns the stable identity of a message: its server-issued
// id when present and non-blank. A missing id is reported as ok=false and is
// never replaced with a value derived from content or timestamp, since content
// repeats and such keys collide.
func MessageIdentity(msg types.Message) (string, bool) {
	id := strings.TrimSpace(msg.ID)
	if id == "" {
		return "", false
	}
	return id, true
}

// ThreadID derives the identity of a thread from its anchor message: the
// first user message that has an identity, or failing that the first message
// of any role that has one. Threads with no identifiable message return
// ok=false and cannot be tracked across snapshots.
func ThreadID(thread types.Thread) (string, bool) {
	for _, msg := range thread {
		if msg.Role != types.RoleUser {
			continue
		}
		if id, ok := MessageIdentity(msg); ok {
			return id, true
		}
	}
	for _, msg := range thread {
		if id, ok := MessageIdentity(msg); ok {
			return id, true
		}
	}
	return "", false
}
