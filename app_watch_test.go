package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claudeview/internal/ingest"
	"claudeview/internal/reconcile"
	"claudeview/internal/types"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeServer serves a mutable snapshot and pushes change events on demand.
type fakeServer struct {
	mu      sync.Mutex
	threads []types.Thread
	events  chan types.EventEnvelope
}

func newFakeServer(t *testing.T, threads ...types.Thread) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{threads: threads, events: make(chan types.EventEnvelope, 8)}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"threads": fs.threads})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			select {
			case event := <-fs.events:
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) set(threads ...types.Thread) {
	fs.mu.Lock()
	fs.threads = threads
	fs.mu.Unlock()
	fs.events <- types.EventEnvelope{EventType: types.EventConversationsChanged}
}

func message(id, role, content string) types.Message {
	return types.Message{ID: id, Role: role, Content: content, Project: "/work/web"}
}

func runWatch(t *testing.T, srv *httptest.Server, reveal bool) (*syncBuffer, context.CancelFunc, <-chan error) {
	t.Helper()
	out := &syncBuffer{}
	w := &watchClient{serverURL: srv.URL, reveal: reveal, out: newRenderer(out)}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.run(ctx, types.Query{}) }()
	return out, cancel, errc
}

func TestWatchAnnouncesNewMessages(t *testing.T) {
	fs, srv := newFakeServer(t, types.Thread{message("u1", types.RoleUser, "fix the build")})
	out, cancel, errc := runWatch(t, srv, false)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "1 threads")
	}, 5*time.Second, 10*time.Millisecond)

	fs.set(types.Thread{
		message("u1", types.RoleUser, "fix the build"),
		message("a1", types.RoleAssistant, "done"),
		message("a2", types.RoleAssistant, "and tested"),
	})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "2 new messages")
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotContains(t, out.String(), "and tested")

	cancel()
	assert.NoError(t, <-errc)
}

func TestWatchRevealPrintsMessages(t *testing.T) {
	fs, srv := newFakeServer(t, types.Thread{message("u1", types.RoleUser, "fix the build")})
	out, cancel, errc := runWatch(t, srv, true)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "1 threads")
	}, 5*time.Second, 10*time.Millisecond)

	fs.set(types.Thread{
		message("u1", types.RoleUser, "fix the build"),
		message("a1", types.RoleAssistant, "done"),
	})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "assistant: done")
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotContains(t, out.String(), "new message")

	cancel()
	assert.NoError(t, <-errc)
}

func TestAnnounceOnlyChangedThreads(t *testing.T) {
	var (
		mu       sync.Mutex
		snapshot []types.Thread
	)
	setSnapshot := func(threads ...types.Thread) {
		mu.Lock()
		snapshot = threads
		mu.Unlock()
	}
	source := ingest.SourceFunc(func(context.Context, types.Query) ([]types.Thread, error) {
		mu.Lock()
		defer mu.Unlock()
		return snapshot, nil
	})

	web := func(extra ...types.Message) types.Thread {
		return append(types.Thread{message("u1", types.RoleUser, "web thread")}, extra...)
	}
	api := func(extra ...types.Message) types.Thread {
		return append(types.Thread{message("u2", types.RoleUser, "api thread")}, extra...)
	}

	ctx := context.Background()
	pipeline := ingest.NewPipeline(source, nil, nil)
	setSnapshot(web(), api())
	require.NoError(t, pipeline.Load(ctx, types.Query{}))

	out := &syncBuffer{}
	w := &watchClient{out: newRenderer(out)}
	refresh := func() {
		_, err := pipeline.Refresh(ctx)
		require.NoError(t, err)
		w.announce(pipeline)
	}

	setSnapshot(web(message("a1", types.RoleAssistant, "x")), api())
	refresh()
	assert.Equal(t, 1, strings.Count(out.String(), "web thread"))

	// only the api thread grew; the web badge is not repeated
	setSnapshot(web(message("a1", types.RoleAssistant, "x")), api(message("a2", types.RoleAssistant, "y")))
	refresh()
	assert.Equal(t, 1, strings.Count(out.String(), "web thread"))
	assert.Equal(t, 1, strings.Count(out.String(), "api thread"))

	setSnapshot(web(message("a1", types.RoleAssistant, "x"), message("a3", types.RoleAssistant, "z")), api(message("a2", types.RoleAssistant, "y")))
	refresh()
	assert.Equal(t, 2, strings.Count(out.String(), "web thread"))
	assert.Contains(t, out.String(), "2 new messages")
	assert.Equal(t, 1, strings.Count(out.String(), "api thread"))
}

func TestWatchFailsWhenServerDown(t *testing.T) {
	w := &watchClient{serverURL: "http://127.0.0.1:1", out: newRenderer(&syncBuffer{})}
	err := w.run(context.Background(), types.Query{})
	assert.Error(t, err)
}

func TestParseFlagTime(t *testing.T) {
	zero, err := parseFlagTime("", false)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	exact, err := parseFlagTime("2025-03-04T05:06:07Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), exact.UTC())

	start, err := parseFlagTime("2025-03-04", false)
	require.NoError(t, err)
	end, err := parseFlagTime("2025-03-04", true)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour-time.Nanosecond, end.Sub(start))
	assert.Equal(t, time.UTC, start.Location())
	assert.Equal(t, time.Date(2025, 3, 4, 23, 59, 59, 999999999, time.UTC), end)

	_, err = parseFlagTime("yesterday", false)
	assert.Error(t, err)
}

func TestQueryFromFlags(t *testing.T) {
	cmd := newWatchCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--project", "web", "--keyword", "build", "--sort", "oldest", "--page-size", "5", "--to", "2025-01-31"}))

	q, err := queryFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, "web", q.Project)
	assert.Equal(t, "build", q.Keyword)
	assert.Equal(t, types.SortOldest, q.Sort)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 5, q.PageSize)
	assert.True(t, q.From.IsZero())
	assert.Equal(t, 31, q.To.Day())

	bad := newWatchCmd()
	require.NoError(t, bad.ParseFlags([]string{"--from", "soon"}))
	_, err = queryFromFlags(bad)
	assert.Error(t, err)
}

func TestRendererPending(t *testing.T) {
	out := &syncBuffer{}
	r := newRenderer(out)
	view := reconcile.ThreadView{
		ThreadID:    "u1",
		Tracked:     true,
		Messages:    []types.Message{message("u1", types.RoleUser, "line one\nline two")},
		UnreadCount: 1,
		HasUnread:   true,
	}
	r.Pending(view)
	assert.Contains(t, out.String(), "1 new message ")
	assert.Contains(t, out.String(), "line one line two")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("  a\n\tb ", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	out := &syncBuffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "claudeview dev\n", out.String())
}
