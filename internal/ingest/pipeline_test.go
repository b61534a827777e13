package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claudeview/internal/types"
)

// fakeSource serves snapshots keyed by project. A gate, when set, blocks the
// next fetch for that project until released.
type fakeSource struct {
	mu        sync.Mutex
	snapshots map[string][]types.Thread
	gates     map[string]chan struct{}
	err       error
	calls     int
	inFlight  int
	maxFlight int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snapshots: make(map[string][]types.Thread),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeSource) set(project string, threads ...types.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[project] = threads
}

func (f *fakeSource) gate(project string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[project] = ch
	return ch
}

func (f *fakeSource) FetchThreads(ctx context.Context, query types.Query) ([]types.Thread, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	f.maxFlight = max(f.maxFlight, f.inFlight)
	gate := f.gates[query.Project]
	delete(f.gates, query.Project)
	err := f.err
	snapshot := f.snapshots[query.Project]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		f.mu.Lock()
		snapshot = f.snapshots[query.Project]
		f.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func msg(id, role string) types.Message {
	return types.Message{ID: id, Role: role, Content: id}
}

func TestLoadSeedsBaseline(t *testing.T) {
	src := newFakeSource()
	src.set("web", types.Thread{msg("u1", types.RoleUser), msg("a1", types.RoleAssistant)})

	p := NewPipeline(src, nil, nil)
	require.NoError(t, p.Load(context.Background(), types.Query{Project: "web"}))

	assert.True(t, p.Loaded())
	views := p.Views()
	require.Len(t, views, 1)
	assert.Len(t, views[0].Messages, 2)
	assert.Equal(t, 0, views[0].UnreadCount)
}

func TestRefreshHoldsBackGrowth(t *testing.T) {
	src := newFakeSource()
	src.set("web", types.Thread{msg("u1", types.RoleUser), msg("a1", types.RoleAssistant)})

	p := NewPipeline(src, nil, nil)
	require.NoError(t, p.Load(context.Background(), types.Query{Project: "web"}))

	src.set("web", types.Thread{msg("u1", types.RoleUser), msg("a1", types.RoleAssistant), msg("a2", types.RoleAssistant)})
	added, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	views := p.Views()
	require.Len(t, views, 1)
	assert.Len(t, views[0].Messages, 2)
	assert.Equal(t, 1, views[0].UnreadCount)

	assert.Equal(t, 1, p.Reveal("u1"))
	assert.Len(t, p.Views()[0].Messages, 3)
}

func TestRefreshBeforeLoadIsNoop(t *testing.T) {
	src := newFakeSource()
	p := NewPipeline(src, nil, nil)

	added, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, src.calls)
}

func TestSupersededLoadIsDropped(t *testing.T) {
	src := newFakeSource()
	src.set("old", types.Thread{msg("old-u", types.RoleUser)})
	src.set("new", types.Thread{msg("new-u", types.RoleUser)})
	release := src.gate("old")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	p := NewPipeline(src, nil, metrics)

	done := make(chan error, 1)
	go func() { done <- p.Load(context.Background(), types.Query{Project: "old"}) }()

	// wait until the old fetch is parked on its gate
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Load(context.Background(), types.Query{Project: "new"}))
	close(release)
	require.NoError(t, <-done)

	_, ok := p.Store().State("old-u")
	assert.False(t, ok, "stale baseline must not land")
	_, ok = p.Store().State("new-u")
	assert.True(t, ok)
	assert.Equal(t, "new", p.Query().Project)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StaleDropped))
}

func TestRefreshDroppedWhenQueryChanges(t *testing.T) {
	src := newFakeSource()
	src.set("a", types.Thread{msg("a-u", types.RoleUser)})
	src.set("b", types.Thread{msg("b-u", types.RoleUser)})

	p := NewPipeline(src, nil, nil)
	require.NoError(t, p.Load(context.Background(), types.Query{Project: "a"}))

	src.set("a", types.Thread{msg("a-u", types.RoleUser), msg("a-1", types.RoleAssistant)})
	release := src.gate("a")

	done := make(chan int, 1)
	go func() {
		added, _ := p.Refresh(context.Background())
		done <- added
	}()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Load(context.Background(), types.Query{Project: "b"}))
	close(release)
	assert.Equal(t, 0, <-done)

	_, ok := p.Store().State("a-u")
	assert.False(t, ok)
	assert.Equal(t, 0, p.Store().TotalUnread())
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestConcurrentRefreshesDoNotOverlap(t *testing.T) {
	src := newFakeSource()
	src.set("", types.Thread{msg("u1", types.RoleUser)})
	p := NewPipeline(src, nil, nil)
	require.NoError(t, p.Load(context.Background(), types.Query{}))

	src.set("", types.Thread{msg("u1", types.RoleUser), msg("a1", types.RoleAssistant)})
	release := src.gate("")

	results := make(chan int, 2)
	refresh := func() {
		added, err := p.Refresh(context.Background())
		assert.NoError(t, err)
		results <- added
	}
	go refresh()
	require.Eventually(t, func() bool { return src.callCount() == 2 }, time.Second, 5*time.Millisecond)

	go refresh()
	// the second refresh waits for the first instead of fetching alongside it
	assert.Never(t, func() bool { return src.callCount() > 2 }, 100*time.Millisecond, 5*time.Millisecond)

	close(release)
	total := <-results + <-results
	assert.Equal(t, 1, total, "the second refresh sees nothing new")
	assert.Equal(t, 3, src.callCount())

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.maxFlight)
	assert.Equal(t, 1, p.Store().UnreadCount("u1"))
}

func TestLoadWhileRefreshWaits(t *testing.T) {
	src := newFakeSource()
	src.set("a", types.Thread{msg("a-u", types.RoleUser)})
	src.set("b", types.Thread{msg("b-u", types.RoleUser)})
	p := NewPipeline(src, nil, nil)
	require.NoError(t, p.Load(context.Background(), types.Query{Project: "a"}))

	src.set("a", types.Thread{msg("a-u", types.RoleUser), msg("a-1", types.RoleAssistant)})
	release := src.gate("a")

	first := make(chan int, 1)
	go func() {
		added, _ := p.Refresh(context.Background())
		first <- added
	}()
	require.Eventually(t, func() bool { return src.callCount() == 2 }, time.Second, 5*time.Millisecond)

	second := make(chan int, 1)
	go func() {
		added, _ := p.Refresh(context.Background())
		second <- added
	}()
	assert.Never(t, func() bool { return src.callCount() > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	// Load is not held up by the queued refreshes
	require.NoError(t, p.Load(context.Background(), types.Query{Project: "b"}))
	src.set("b", types.Thread{msg("b-u", types.RoleUser), msg("b-1", types.RoleAssistant)})

	close(release)
	assert.Equal(t, 0, <-first, "refresh for the old query is dropped")
	assert.Equal(t, 1, <-second, "queued refresh runs against the new query")

	_, ok := p.Store().State("a-u")
	assert.False(t, ok)
	assert.Equal(t, 1, p.Store().UnreadCount("b-u"))
	assert.Equal(t, "b", p.Query().Project)
}

func TestLoadErrorIsWrapped(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("disk gone")

	metrics := NewMetrics(prometheus.NewRegistry())
	p := NewPipeline(src, nil, metrics)
	err := p.Load(context.Background(), types.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, src.err)
	assert.False(t, p.Loaded())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FetchErrors))
}

func TestRunRefreshesOnSignal(t *testing.T) {
	src := newFakeSource()
	src.set("", types.Thread{msg("u1", types.RoleUser)})

	p := NewPipeline(src, nil, nil)
	require.NoError(t, p.Load(context.Background(), types.Query{}))

	ctx, cancel := context.WithCancel(context.Background())
	trigger := NewTrigger()
	errc := make(chan error, 1)
	changed := make(chan int, 4)
	go func() { errc <- p.Run(ctx, trigger.C(), func(added int) { changed <- added }) }()

	src.set("", types.Thread{msg("u1", types.RoleUser), msg("a1", types.RoleAssistant)})
	trigger.Fire()
	trigger.Fire()

	require.Eventually(t, func() bool {
		return p.Store().UnreadCount("u1") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, <-changed)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestTriggerCoalesces(t *testing.T) {
	trigger := NewTrigger()
	for i := 0; i < 10; i++ {
		trigger.Fire()
	}
	<-trigger.C()
	select {
	case <-trigger.C():
		t.Fatal("signals were not coalesced")
	default:
	}
}
