package notify

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claudeview/internal/types"
)

type recorder struct {
	mu     sync.Mutex
	events []types.EventEnvelope
}

func (r *recorder) emit(e types.EventEnvelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestInbox(t *testing.T) (*Inbox, *recorder) {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "inbox", "notifications.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec := &recorder{}
	inbox := NewInbox(store, rec.emit, nil)
	clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	inbox.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return inbox, rec
}

func TestParseHook(t *testing.T) {
	n, err := ParseHook([]byte(`{"hook_event_name":"Notification","session_id":"s1","cwd":"/work/web","message":"Claude is waiting for your input","notification_type":"idle_prompt"}`))
	require.NoError(t, err)
	assert.Equal(t, EventNotification, n.Event)
	assert.Equal(t, "s1", n.SessionID)
	assert.Equal(t, "/work/web", n.Project)
	assert.Equal(t, "idle_prompt", n.Kind)
	assert.Equal(t, "Claude needs your attention", n.Title)
	assert.Equal(t, "Claude is waiting for your input", n.Message)
	assert.Equal(t, SourceHook, n.Source)
}

func TestParseHookDefaults(t *testing.T) {
	tests := []struct {
		body  string
		title string
	}{
		{`{"hook_event_name":"Stop","cwd":"/p"}`, "Claude finished responding"},
		{`{"hook_event_name":"PreToolUse","tool_name":"Bash"}`, "Permission requested: Bash"},
		{`{"hook_event_name":"PermissionRequest"}`, "Permission requested"},
		{`{"hook_event_name":"SomethingNew"}`, "SomethingNew"},
		{`{"hook_event_name":"Stop","title":"custom"}`, "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			n, err := ParseHook([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.title, n.Title)
		})
	}

	n, err := ParseHook([]byte(`{"hook_event_name":"Stop","cwd":"/p"}`))
	require.NoError(t, err)
	assert.Equal(t, "in /p", n.Message)
}

func TestParseHookRejects(t *testing.T) {
	for _, body := range []string{``, `not json`, `{}`, `{"hook_event_name":"  "}`} {
		_, err := ParseHook([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidHook, body)
	}
}

func TestInboxAddAndList(t *testing.T) {
	inbox, rec := newTestInbox(t)

	first, err := inbox.AddHook([]byte(`{"hook_event_name":"Notification","message":"one"}`))
	require.NoError(t, err)
	second, err := inbox.Add(Notification{Event: "NotifyUser", Source: SourceMCP, Message: "two"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, rec.count())

	all, err := inbox.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, SourceMCP, all[0].Source)
	assert.True(t, all[1].CreatedAt.Equal(first.CreatedAt))

	limited, err := inbox.List(Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byEvent, err := inbox.List(Filter{Event: "Notification"})
	require.NoError(t, err)
	require.Len(t, byEvent, 1)
	assert.Equal(t, "one", byEvent[0].Message)
}

func TestInboxRequiresEvent(t *testing.T) {
	inbox, _ := newTestInbox(t)
	_, err := inbox.Add(Notification{Message: "x"})
	assert.Error(t, err)
}

func TestInboxReadAndDelete(t *testing.T) {
	inbox, rec := newTestInbox(t)
	a, err := inbox.Add(Notification{Event: EventStop})
	require.NoError(t, err)
	b, err := inbox.Add(Notification{Event: EventNotification})
	require.NoError(t, err)
	_, err = inbox.Add(Notification{Event: EventNotification})
	require.NoError(t, err)

	require.NoError(t, inbox.MarkRead(a.ID))
	got, err := inbox.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	unread, err := inbox.List(Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	stats, err := inbox.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Unread)
	assert.Equal(t, map[string]int{EventStop: 1, EventNotification: 2}, stats.ByEvent)

	require.NoError(t, inbox.Delete(b.ID))
	assert.ErrorIs(t, inbox.Delete(b.ID), ErrNotFound)
	assert.ErrorIs(t, inbox.MarkRead("missing"), ErrNotFound)
	_, err = inbox.Get(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	before := rec.count()
	changed, err := inbox.MarkAllRead()
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, before+1, rec.count())
	assert.Equal(t, 0, inbox.UnreadCount())

	// nothing left to mark, no event
	changed, err = inbox.MarkAllRead()
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Equal(t, before+1, rec.count())
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "n.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	inbox := NewInbox(store, nil, nil)
	n, err := inbox.Add(Notification{Event: EventStop, Message: "kept"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Message)
}

func TestEmptyStats(t *testing.T) {
	inbox, _ := newTestInbox(t)
	stats, err := inbox.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Empty(t, stats.ByEvent)
}
