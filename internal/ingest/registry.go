package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"claudeview/internal/reconcile"
	"claudeview/internal/types"
)

// ErrViewNotFound is returned for unknown or pruned view ids.
var ErrViewNotFound = errors.New("view not found")

// refreshConcurrency bounds how many views refresh at once after a change.
const refreshConcurrency = 4

// View is one viewer session: a client's own pipeline and store.
type View struct {
	ID        string
	CreatedAt time.Time

	pipeline *Pipeline
	mu       sync.Mutex
	lastSeen time.Time
}

// ViewSnapshot is the renderable state of a view.
type ViewSnapshot struct {
	ID          string                 `json:"id"`
	Query       types.Query            `json:"query"`
	Loaded      bool                   `json:"loaded"`
	Threads     []reconcile.ThreadView `json:"threads"`
	TotalUnread int                    `json:"totalUnread"`
}

// Pipeline returns the view's pipeline.
func (v *View) Pipeline() *Pipeline {
	return v.pipeline
}

// Snapshot renders the view.
func (v *View) Snapshot() ViewSnapshot {
	return ViewSnapshot{
		ID:          v.ID,
		Query:       v.pipeline.Query(),
		Loaded:      v.pipeline.Loaded(),
		Threads:     v.pipeline.Views(),
		TotalUnread: v.pipeline.Store().TotalUnread(),
	}
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry hosts the viewer sessions of a server, all reading from the same
// source.
type Registry struct {
	source  Source
	logger  *zap.Logger
	metrics *Metrics
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	views map[string]*View
}

// NewRegistry creates an empty registry. A ttl of zero disables pruning.
func NewRegistry(source Source, ttl time.Duration, logger *zap.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source:  source,
		logger:  logger,
		metrics: metrics,
		ttl:     ttl,
		now:     time.Now,
		views:   make(map[string]*View),
	}
}

// Create registers a new view and seeds it with query. The view is
// registered even when the first load fails so the client can retry with
// SetQuery.
func (r *Registry) Create(ctx context.Context, query types.Query) (*View, error) {
	now := r.now()
	id := uuid.New().String()
	v := &View{
		ID:        id,
		CreatedAt: now,
		pipeline:  NewPipeline(r.source, r.logger.With(zap.String("view", id)), r.metrics),
		lastSeen:  now,
	}

	r.mu.Lock()
	r.views[v.ID] = v
	count := len(r.views)
	r.mu.Unlock()
	r.metrics.setViews(count)

	r.logger.Info("view created", zap.String("view", v.ID), zap.String("project", query.Project))
	if err := v.pipeline.Load(ctx, query); err != nil {
		return v, err
	}
	return v, nil
}

// Get returns a view and marks it as seen.
func (r *Registry) Get(id string) (*View, error) {
	r.mu.RLock()
	v, ok := r.views[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrViewNotFound
	}
	v.touch(r.now())
	return v, nil
}

// SetQuery changes a view's filter and re-seeds its baseline.
func (r *Registry) SetQuery(ctx context.Context, id string, query types.Query) (*View, error) {
	v, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if err := v.pipeline.Load(ctx, query); err != nil {
		return v, err
	}
	return v, nil
}

// Reveal shows a thread's pending messages in one view.
func (r *Registry) Reveal(id, threadID string) (int, error) {
	v, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	moved := v.pipeline.Reveal(threadID)
	r.updatePending()
	return moved, nil
}

// RevealAll shows every pending message in one view.
func (r *Registry) RevealAll(id string) (int, error) {
	v, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	moved := v.pipeline.Store().ShowAllNewMessages()
	r.updatePending()
	return moved, nil
}

// Remove drops a view.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	_, ok := r.views[id]
	delete(r.views, id)
	count := len(r.views)
	r.mu.Unlock()
	if !ok {
		return ErrViewNotFound
	}
	r.metrics.setViews(count)
	r.updatePending()
	return nil
}

// Len returns the number of hosted views.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// RefreshAll refreshes every view after a change signal and returns the
// number of messages that became pending across all of them. Per-view fetch
// failures are logged, not returned; one broken view never blocks the rest.
func (r *Registry) RefreshAll(ctx context.Context) int {
	views := r.snapshot()

	var (
		mu    sync.Mutex
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, v := range views {
		g.Go(func() error {
			added, err := v.pipeline.Refresh(gctx)
			if err != nil {
				r.logger.Warn("view refresh failed", zap.String("view", v.ID), zap.Error(err))
				return nil
			}
			mu.Lock()
			total += added
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.updatePending()
	return total
}

// Run refreshes all views on every signal and prunes idle ones until ctx is
// done. onChange, if set, is called after a refresh that produced pending
// messages.
func (r *Registry) Run(ctx context.Context, signals <-chan struct{}, onChange func(added int)) error {
	var prune <-chan time.Time
	if r.ttl > 0 {
		ticker := time.NewTicker(r.ttl / 2)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-signals:
			if !ok {
				return nil
			}
			added := r.RefreshAll(ctx)
			if added > 0 && onChange != nil {
				onChange(added)
			}
		case <-prune:
			r.Prune()
		}
	}
}

// Prune drops views that have not been read for longer than the ttl.
// Returns how many were removed.
func (r *Registry) Prune() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	removed := 0
	for id, v := range r.views {
		if v.idleSince().Before(cutoff) {
			delete(r.views, id)
			removed++
			r.logger.Info("view expired", zap.String("view", id))
		}
	}
	count := len(r.views)
	r.mu.Unlock()

	if removed > 0 {
		r.metrics.setViews(count)
		r.updatePending()
	}
	return removed
}

func (r *Registry) snapshot() []*View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	return views
}

func (r *Registry) updatePending() {
	if r.metrics == nil {
		return
	}
	total := 0
	for _, v := range r.snapshot() {
		total += v.pipeline.Store().TotalUnread()
	}
	r.metrics.setPending(total)
}
