// Package types provides event classification using the Discriminated Union pattern.
// The `type` field in each JSON line acts as the discriminator (tag) that determines
// which concrete Go type should be used for full parsing.
package types

import (
	"encoding/json"
	"fmt"
)

// JSONLEventType represents the classified type of a JSONL event.
type JSONLEventType int

const (
	JSONLEventUnknown JSONLEventType = iota
	JSONLEventUser
	JSONLEventAssistant
	JSONLEventSystem
	JSONLEventSummary
	JSONLEventIgnored // file-history-snapshot, queue-operation
)

// String returns a human-readable name for the event type.
func (t JSONLEventType) String() string {
	switch t {
	case JSONLEventUser:
		return "user"
	case JSONLEventAssistant:
		return "assistant"
	case JSONLEventSystem:
		return "system"
	case JSONLEventSummary:
		return "summary"
	case JSONLEventIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ClassifiedJSONLEvent holds the parsed JSONL event with its classified type.
// At most ONE of the event pointers is non-nil, chosen by EventType.
type ClassifiedJSONLEvent struct {
	EventType JSONLEventType

	User      *UserEvent
	Assistant *AssistantEvent
}

// ClassifyJSONLEvent parses a JSONL line and returns a classified event.
// It uses two-pass parsing: first extracting the discriminator, then parsing
// user and assistant lines into their concrete type. Other lines are
// classified by discriminator alone.
func ClassifyJSONLEvent(line []byte) (*ClassifiedJSONLEvent, error) {
	if len(line) == 0 {
		return nil, fmt.Errorf("empty line")
	}

	var discriminator struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &discriminator); err != nil {
		return nil, fmt.Errorf("parse discriminator: %w", err)
	}

	result := &ClassifiedJSONLEvent{}

	switch discriminator.Type {
	case EventTypeUser:
		var event UserEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse user event: %w", err)
		}
		result.EventType = JSONLEventUser
		result.User = &event

	case EventTypeAssistant:
		var event AssistantEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse assistant event: %w", err)
		}
		result.EventType = JSONLEventAssistant
		result.Assistant = &event

	// system and summary lines never render; the tag is enough
	case EventTypeSystem:
		result.EventType = JSONLEventSystem

	case EventTypeSummary:
		result.EventType = JSONLEventSummary

	case EventTypeFileHistorySnapshot, EventTypeQueueOperation:
		result.EventType = JSONLEventIgnored

	default:
		result.EventType = JSONLEventUnknown
	}

	return result, nil
}
