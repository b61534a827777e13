// Package types provides shared type definitions for claudeview.
// These types are used across the logs, reconcile, ingest and server packages.
package types

import (
	"strings"
	"time"
)

// =============================================================================
// MESSAGE TYPES (from JSONL parsing)
// =============================================================================

// Message roles. A Message is always exactly one of these.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation. Messages are value objects: nothing
// downstream of the log reader mutates them.
type Message struct {
	ID        string `json:"id,omitempty"` // JSONL uuid; may be empty
	Role      string `json:"role"`         // user, assistant
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`           // ISO-8601
	SessionID string `json:"sessionId,omitempty"` // Source session file
	Project   string `json:"project,omitempty"`   // Decoded project folder
}

// Time parses the message timestamp. Returns the zero time when absent or malformed.
func (m Message) Time() time.Time {
	return ParseTimestamp(m.Timestamp)
}

// Thread is an ordered sequence of messages forming one conversation exchange.
// A Thread carries no id of its own; see reconcile.ThreadID.
type Thread []Message

// First returns the first message of the thread, if any.
func (t Thread) First() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[0], true
}

// Last returns the last message of the thread, if any.
func (t Thread) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// StartedAt is the timestamp of the first message that has a parseable one.
func (t Thread) StartedAt() time.Time {
	for _, m := range t {
		if ts := m.Time(); !ts.IsZero() {
			return ts
		}
	}
	return time.Time{}
}

// UpdatedAt is the latest parseable timestamp in the thread.
func (t Thread) UpdatedAt() time.Time {
	var latest time.Time
	for _, m := range t {
		if ts := m.Time(); ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

// =============================================================================
// QUERY TYPES
// =============================================================================

// Sort orders for thread listings.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// Query selects which threads a snapshot contains. Two snapshots are only
// comparable for new-message purposes when they were taken under equal queries.
type Query struct {
	From     time.Time `json:"from,omitzero"`
	To       time.Time `json:"to,omitzero"`
	Project  string    `json:"project,omitempty"`
	Keyword  string    `json:"keyword,omitempty"`
	Sort     string    `json:"sort,omitempty"`
	Page     int       `json:"page,omitempty"`     // 1-based
	PageSize int       `json:"pageSize,omitempty"` // 0 = source default
}

// Normalize fills defaults and trims free-text fields.
func (q Query) Normalize(defaultPageSize int) Query {
	q.Project = strings.TrimSpace(q.Project)
	q.Keyword = strings.TrimSpace(q.Keyword)
	if q.Sort != SortOldest {
		q.Sort = SortNewest
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	return q
}

// =============================================================================
// EVENT TYPES (for client push)
// =============================================================================

// Event names pushed over the WebSocket feed.
const (
	EventConversationsChanged = "conversations:changed"
	EventNotificationsChanged = "notifications:changed"
)

// EventEnvelope wraps all events with routing information.
// All events pushed to clients use this envelope pattern.
type EventEnvelope struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId,omitempty"` // Present for session-scoped events
	Payload   any    `json:"payload,omitempty"`
}

// =============================================================================
// TIMESTAMP HELPERS
// =============================================================================

// ParseTimestamp converts an ISO timestamp string to time.Time.
func ParseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
