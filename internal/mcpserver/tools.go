package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names exposed to agents.
const (
	ToolNotifyUser    = "NotifyUser"
	ToolUnreadSummary = "UnreadSummary"
)

// NotifyTypes are the accepted values of NotifyUser's type argument.
var NotifyTypes = []string{"info", "success", "warning", "question"}

const notifyUserInstruction = `Send a notification to the user's claudeview inbox. Use it when you finish a long task, hit a blocker, or need the user to look at something. The notification stays in the inbox until the user marks it read.`

const unreadSummaryInstruction = `Return how many notifications in the user's claudeview inbox are still unread, with a count per event. Use it before sending another notification to avoid piling up duplicates.`

// CreateNotifyUserTool creates the NotifyUser tool definition
func CreateNotifyUserTool() mcp.Tool {
	return mcp.NewTool(ToolNotifyUser,
		mcp.WithDescription(notifyUserInstruction),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The notification message"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Notification type: 'info', 'success', 'warning', or 'question'"),
			mcp.Enum(NotifyTypes...),
		),
		mcp.WithString("title",
			mcp.Description("Optional notification title"),
		),
		mcp.WithString("from_agent",
			mcp.Description("Your agent name/slug for identification (optional but recommended)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Your Claude Code session id, if known"),
		),
	)
}

// CreateUnreadSummaryTool creates the UnreadSummary tool definition
func CreateUnreadSummaryTool() mcp.Tool {
	return mcp.NewTool(ToolUnreadSummary,
		mcp.WithDescription(unreadSummaryInstruction),
	)
}
