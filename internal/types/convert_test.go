package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convertLine(t *testing.T, line string) *Message {
	t.Helper()
	classified, err := ClassifyJSONLEvent([]byte(line))
	require.NoError(t, err)
	return ConvertToMessage(classified)
}

func TestConvertUserString(t *testing.T) {
	msg := convertLine(t, `{"type":"user","uuid":"u1","timestamp":"2025-01-02T03:04:05Z","sessionId":"s1","message":{"role":"user","content":"hello"}}`)
	require.NotNil(t, msg)
	assert.Equal(t, "u1", msg.ID)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "s1", msg.SessionID)
}

func TestConvertUserBlocks(t *testing.T) {
	msg := convertLine(t, `{"type":"user","uuid":"u2","message":{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}`)
	require.NotNil(t, msg)
	assert.Equal(t, "ab", msg.Content)
}

func TestConvertSkipsNonConversationLines(t *testing.T) {
	lines := map[string]string{
		"tool result carrier": `{"type":"user","uuid":"u3","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}`,
		"meta":                `{"type":"user","uuid":"u4","isMeta":true,"message":{"role":"user","content":"caveat"}}`,
		"image ref":           `{"type":"user","uuid":"u5","message":{"role":"user","content":"[Image: source: /tmp/x.png]"}}`,
		"api error":           `{"type":"assistant","uuid":"a9","isApiErrorMessage":true,"message":{"role":"assistant","content":[{"type":"text","text":"err"}]}}`,
		"summary":             `{"type":"summary","summary":"s","leafUuid":"x"}`,
		"system":              `{"type":"system","subtype":"turn_duration","uuid":"y"}`,
		"snapshot":            `{"type":"file-history-snapshot","messageId":"m"}`,
	}
	for name, line := range lines {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, convertLine(t, line))
		})
	}
}

func TestConvertAssistant(t *testing.T) {
	msg := convertLine(t, `{"type":"assistant","uuid":"a1","timestamp":"2025-01-02T03:04:06Z","message":{"role":"assistant","content":[{"type":"thinking","thinking":"hm"},{"type":"text","text":"answer"}]}}`)
	require.NotNil(t, msg)
	assert.Equal(t, "a1", msg.ID)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "answer", msg.Content)
}

func TestClassifyRejectsGarbage(t *testing.T) {
	_, err := ClassifyJSONLEvent([]byte("not json"))
	assert.Error(t, err)
	_, err = ClassifyJSONLEvent(nil)
	assert.Error(t, err)
}

func TestClassifyMetadataByTagOnly(t *testing.T) {
	// payload fields of the wrong shape must not matter for skipped lines
	tests := []struct {
		line string
		want JSONLEventType
	}{
		{`{"type":"summary","summary":123,"leafUuid":["x"]}`, JSONLEventSummary},
		{`{"type":"system","subtype":{"k":1},"timestamp":false}`, JSONLEventSystem},
		{`{"type":"queue-operation","operation":7}`, JSONLEventIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			event, err := ClassifyJSONLEvent([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.EventType)
			assert.Nil(t, event.User)
			assert.Nil(t, event.Assistant)
			assert.Nil(t, convertLine(t, tt.line))
		})
	}
}

func TestQueryNormalize(t *testing.T) {
	q := Query{Project: "  web ", Sort: "sideways"}.Normalize(25)
	assert.Equal(t, "web", q.Project)
	assert.Equal(t, SortNewest, q.Sort)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 25, q.PageSize)
}
