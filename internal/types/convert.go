// Package types provides conversion from classified JSONL events to displayable Messages.
package types

import (
	"regexp"
	"strings"
)

// imageRefPattern matches duplicate image reference messages that should be filtered out.
var imageRefPattern = regexp.MustCompile(`^\s*\[Image: source: [^\]]+\]\s*$`)

// ConvertToMessage converts a classified JSONL event to a Message.
// Returns nil for events that are not part of the visible conversation:
// system lines, summaries, meta prompts, tool-result carriers and API errors.
func ConvertToMessage(classified *ClassifiedJSONLEvent) *Message {
	if classified == nil {
		return nil
	}

	switch classified.EventType {
	case JSONLEventUser:
		return convertUserToMessage(classified.User)
	case JSONLEventAssistant:
		return convertAssistantToMessage(classified.Assistant)
	default:
		return nil
	}
}

// =============================================================================
// USER EVENT CONVERSION
// =============================================================================

func convertUserToMessage(event *UserEvent) *Message {
	if event == nil {
		return nil
	}

	if event.IsMeta || event.IsVisibleInTranscriptOnly || event.IsSidechain {
		return nil
	}

	content, hasText := extractUserContent(event.Message.Content)

	// tool_result-only lines are carriers for the previous tool_use, not prompts
	if !hasText {
		return nil
	}

	if imageRefPattern.MatchString(content) {
		return nil
	}

	return &Message{
		ID:        strings.TrimSpace(event.UUID),
		Role:      RoleUser,
		Content:   content,
		Timestamp: event.Timestamp,
		SessionID: event.SessionID,
	}
}

// extractUserContent extracts text content from user message content.
// Content can be a string or []any (array of content blocks).
func extractUserContent(rawContent any) (string, bool) {
	switch c := rawContent.(type) {
	case string:
		return c, strings.TrimSpace(c) != ""

	case []any:
		var sb strings.Builder
		hasText := false
		for _, block := range c {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			switch blockMap["type"] {
			case "text":
				text, _ := blockMap["text"].(string)
				sb.WriteString(text)
				if strings.TrimSpace(text) != "" {
					hasText = true
				}
			case "image":
				hasText = true
			}
		}
		return sb.String(), hasText
	}

	return "", false
}

// =============================================================================
// ASSISTANT EVENT CONVERSION
// =============================================================================

func convertAssistantToMessage(event *AssistantEvent) *Message {
	if event == nil || event.IsAPIErrorMessage || event.IsSidechain {
		return nil
	}

	var sb strings.Builder
	for _, block := range event.Message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	// Assistant lines that only carry tool_use or thinking blocks still belong
	// to the exchange; keep them unless they are completely empty.
	if sb.Len() == 0 && len(event.Message.Content) == 0 {
		return nil
	}

	return &Message{
		ID:        strings.TrimSpace(event.UUID),
		Role:      RoleAssistant,
		Content:   sb.String(),
		Timestamp: event.Timestamp,
		SessionID: event.SessionID,
	}
}
