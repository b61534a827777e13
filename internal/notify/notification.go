// Package notify keeps the notification inbox: events raised by Claude Code
// hooks (or by agents over MCP) that the user has not dismissed yet.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sources a notification can come from.
const (
	SourceHook = "hook"
	SourceMCP  = "mcp"
)

// Hook event names Claude Code sends that get a tailored title.
const (
	EventNotification      = "Notification"
	EventStop              = "Stop"
	EventSubagentStop      = "SubagentStop"
	EventPreToolUse        = "PreToolUse"
	EventPermissionRequest = "PermissionRequest"
	EventSessionStart      = "SessionStart"
	EventSessionEnd        = "SessionEnd"
)

// Notification is one inbox entry.
type Notification struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Kind      string    `json:"kind,omitempty"` // hook notification_type, or MCP type
	Source    string    `json:"source"`
	SessionID string    `json:"sessionId,omitempty"`
	Project   string    `json:"project,omitempty"`
	ToolName  string    `json:"toolName,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// Filter narrows List.
type Filter struct {
	UnreadOnly bool
	Event      string
	Limit      int // 0 = no limit
}

// Stats summarizes the inbox.
type Stats struct {
	Total   int            `json:"total"`
	Unread  int            `json:"unread"`
	ByEvent map[string]int `json:"byEvent"`
}

// =============================================================================
// HOOK PAYLOADS
// =============================================================================

// HookPayload is the subset of a Claude Code hook body the inbox uses.
type HookPayload struct {
	HookEventName    string `json:"hook_event_name"`
	SessionID        string `json:"session_id"`
	Cwd              string `json:"cwd"`
	Message          string `json:"message"`
	Title            string `json:"title"`
	NotificationType string `json:"notification_type"`
	ToolName         string `json:"tool_name"`
}

// ErrInvalidHook is wrapped by every ParseHook failure.
var ErrInvalidHook = errors.New("invalid hook payload")

// ParseHook turns a hook body into a notification without an id or
// timestamp. Events it has no special handling for are still accepted.
func ParseHook(body []byte) (Notification, error) {
	var p HookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidHook, err)
	}
	event := strings.TrimSpace(p.HookEventName)
	if event == "" {
		return Notification{}, fmt.Errorf("%w: missing hook_event_name", ErrInvalidHook)
	}

	n := Notification{
		Event:     event,
		Kind:      p.NotificationType,
		Source:    SourceHook,
		SessionID: p.SessionID,
		Project:   p.Cwd,
		ToolName:  p.ToolName,
		Title:     p.Title,
		Message:   p.Message,
	}
	if n.Title == "" {
		n.Title = defaultTitle(n)
	}
	if n.Message == "" {
		n.Message = defaultMessage(n)
	}
	return n, nil
}

func defaultTitle(n Notification) string {
	switch n.Event {
	case EventNotification:
		return "Claude needs your attention"
	case EventStop:
		return "Claude finished responding"
	case EventSubagentStop:
		return "Sub-agent finished"
	case EventPreToolUse, EventPermissionRequest:
		if n.ToolName != "" {
			return "Permission requested: " + n.ToolName
		}
		return "Permission requested"
	case EventSessionStart:
		return "Session started"
	case EventSessionEnd:
		return "Session ended"
	}
	return n.Event
}

func defaultMessage(n Notification) string {
	if n.Project == "" {
		return ""
	}
	return "in " + n.Project
}
