// Package types provides JSONL event type definitions for Claude Code session files.
package types

// =============================================================================
// EVENT TYPE CONSTANTS
// =============================================================================

// JSONL event type discriminators
const (
	EventTypeUser                = "user"
	EventTypeAssistant           = "assistant"
	EventTypeSystem              = "system"
	EventTypeSummary             = "summary"
	EventTypeFileHistorySnapshot = "file-history-snapshot"
	EventTypeQueueOperation      = "queue-operation"
)

// =============================================================================
// BASE EVENT TYPE
// =============================================================================

// JSONLEvent contains common fields present across most JSONL events.
type JSONLEvent struct {
	Type        string `json:"type"`
	UUID        string `json:"uuid,omitempty"`
	Timestamp   string `json:"timestamp"`
	SessionID   string `json:"sessionId,omitempty"`
	ParentUUID  string `json:"parentUuid,omitempty"`
	Cwd         string `json:"cwd,omitempty"`
	IsSidechain bool   `json:"isSidechain,omitempty"`
}

// =============================================================================
// USER EVENT
// =============================================================================

// UserEvent represents a user input line in the JSONL session file.
type UserEvent struct {
	JSONLEvent
	Message                   UserMessage `json:"message"`
	IsCompactSummary          bool        `json:"isCompactSummary,omitempty"`
	IsVisibleInTranscriptOnly bool        `json:"isVisibleInTranscriptOnly,omitempty"`
	IsMeta                    bool        `json:"isMeta,omitempty"`
}

// UserMessage represents the message content in a user event.
type UserMessage struct {
	Role    string `json:"role"`    // "user"
	Content any    `json:"content"` // string or []ContentBlock (for tool_result)
}

// =============================================================================
// ASSISTANT EVENT
// =============================================================================

// AssistantEvent represents the assistant's response in the JSONL session file.
type AssistantEvent struct {
	JSONLEvent
	RequestID         string           `json:"requestId,omitempty"`
	Message           AssistantMessage `json:"message"`
	IsAPIErrorMessage bool             `json:"isApiErrorMessage,omitempty"`
}

// AssistantMessage represents the message content in an assistant event.
type AssistantMessage struct {
	Model      string         `json:"model"`
	ID         string         `json:"id"`
	Role       string         `json:"role"` // "assistant"
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
}

// ContentBlock is a single block within a message. Only text blocks
// contribute to Message.Content; the rest are kept for classification.
type ContentBlock struct {
	Type      string `json:"type"` // text, tool_use, tool_result, image, thinking
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
}
