package mcpserver

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"claudeview/internal/notify"
)

// handleNotifyUser handles the NotifyUser tool call by adding an entry to
// the inbox.
func (s *Service) handleNotifyUser(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil || strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	notifType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}
	if !slices.Contains(NotifyTypes, notifType) {
		return mcp.NewToolResultError("type must be one of: " + strings.Join(NotifyTypes, ", ")), nil
	}

	// Optional fields
	title := req.GetString("title", "")
	fromAgent := req.GetString("from_agent", "")
	sessionID := req.GetString("session_id", "")

	if title == "" && fromAgent != "" {
		title = "Message from " + fromAgent
	}

	n, err := s.inbox.Add(notify.Notification{
		Event:     ToolNotifyUser,
		Kind:      notifType,
		Source:    notify.SourceMCP,
		SessionID: sessionID,
		Title:     title,
		Message:   message,
	})
	if err != nil {
		s.logger.Error("notify user failed", zap.Error(err))
		return mcp.NewToolResultError("failed to store notification"), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Notification sent (id %s)", n.ID)), nil
}

// handleUnreadSummary reports the inbox unread counts.
func (s *Service) handleUnreadSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.inbox.Stats()
	if err != nil {
		s.logger.Error("unread summary failed", zap.Error(err))
		return mcp.NewToolResultError("failed to read inbox"), nil
	}

	unread, err := s.inbox.List(notify.Filter{UnreadOnly: true})
	if err != nil {
		return mcp.NewToolResultError("failed to read inbox"), nil
	}
	byEvent := map[string]int{}
	for _, n := range unread {
		byEvent[n.Event]++
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d unread of %d notifications", stats.Unread, stats.Total)
	events := make([]string, 0, len(byEvent))
	for event := range byEvent {
		events = append(events, event)
	}
	sort.Strings(events)
	for _, event := range events {
		fmt.Fprintf(&sb, "\n- %s: %d", event, byEvent[event])
	}
	return mcp.NewToolResultText(sb.String()), nil
}
