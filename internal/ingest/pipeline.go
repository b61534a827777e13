// Package ingest feeds conversation snapshots into a reconciliation store.
// A full load seeds the store's baseline; change signals trigger incremental
// refreshes whose new messages are held back as pending.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"claudeview/internal/reconcile"
	"claudeview/internal/types"
)

// Source fetches the threads matching a query. Implementations must be safe
// for concurrent use.
type Source interface {
	FetchThreads(ctx context.Context, query types.Query) ([]types.Thread, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, query types.Query) ([]types.Thread, error)

// FetchThreads calls f.
func (f SourceFunc) FetchThreads(ctx context.Context, query types.Query) ([]types.Thread, error) {
	return f(ctx, query)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline owns one store and the query it is filtered by.
//
// Every Load bumps a generation counter. A fetch remembers the generation it
// started under and its result is applied only if the counter has not moved,
// so a slow response for an old query can never land in the store after the
// query changed. Refreshes are serialized so two incremental fetches never
// race each other.
type Pipeline struct {
	source  Source
	store   *reconcile.Store
	logger  *zap.Logger
	metrics *Metrics

	mu         sync.Mutex
	generation uint64
	query      types.Query
	loaded     bool
	threads    []types.Thread

	refreshMu sync.Mutex
}

// NewPipeline creates a pipeline over source with an empty store. logger and
// metrics may be nil.
func NewPipeline(source Source, logger *zap.Logger, metrics *Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:  source,
		store:   reconcile.NewStore(),
		logger:  logger,
		metrics: metrics,
	}
}

// Store exposes the underlying reconciliation store.
func (p *Pipeline) Store() *reconcile.Store {
	return p.store
}

// Query returns the query the store is currently filtered by.
func (p *Pipeline) Query() types.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Loaded reports whether a baseline has been applied for the current query.
func (p *Pipeline) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Load switches to query and seeds the store from a full fetch. The store is
// cleared immediately so nothing from the previous query is shown while the
// fetch is in flight. If another Load starts before this fetch returns, the
// result is dropped.
func (p *Pipeline) Load(ctx context.Context, query types.Query) error {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.query = query
	p.loaded = false
	p.threads = nil
	p.store.Clear()
	p.mu.Unlock()

	threads, err := p.source.FetchThreads(ctx, query)
	if err != nil {
		p.metrics.fetchFailed()
		return fmt.Errorf("load snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		p.metrics.staleDropped()
		p.logger.Debug("dropped superseded load", zap.Uint64("generation", gen), zap.Uint64("current", p.generation))
		return nil
	}
	p.store.SetInitialMessages(threads)
	p.threads = threads
	p.loaded = true
	p.metrics.applied("initial")
	p.logger.Debug("applied initial snapshot", zap.Int("threads", len(threads)), zap.Uint64("generation", gen))
	return nil
}

// Refresh fetches the current query again and diffs it into the store.
// It returns how many messages became pending. Nothing is applied before
// the first successful Load, or when a Load happened during the fetch.
func (p *Pipeline) Refresh(ctx context.Context) (int, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	p.mu.Lock()
	gen, query, loaded := p.generation, p.query, p.loaded
	p.mu.Unlock()
	if !loaded {
		return 0, nil
	}

	threads, err := p.source.FetchThreads(ctx, query)
	if err != nil {
		p.metrics.fetchFailed()
		return 0, fmt.Errorf("refresh snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		p.metrics.staleDropped()
		p.logger.Debug("dropped superseded refresh", zap.Uint64("generation", gen), zap.Uint64("current", p.generation))
		return 0, nil
	}
	added := p.store.AddNewMessages(threads)
	p.threads = threads
	p.metrics.applied("incremental")
	if added > 0 {
		p.logger.Debug("new messages pending", zap.Int("added", added), zap.Int("unread", p.store.TotalUnread()))
	}
	return added, nil
}

// Run refreshes on every signal until ctx is done. Fetch errors are logged
// and the loop keeps going; the next signal retries. onChange, if set, is
// called after a refresh that produced pending messages.
func (p *Pipeline) Run(ctx context.Context, signals <-chan struct{}, onChange func(added int)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-signals:
			if !ok {
				return nil
			}
			added, err := p.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("refresh failed", zap.Error(err))
				continue
			}
			if added > 0 && onChange != nil {
				onChange(added)
			}
		}
	}
}

// =============================================================================
// PRESENTATION
// =============================================================================

// Threads returns the most recently applied snapshot.
func (p *Pipeline) Threads() []types.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Thread(nil), p.threads...)
}

// Views projects the most recently applied snapshot through the store.
func (p *Pipeline) Views() []reconcile.ThreadView {
	return p.store.Views(p.Threads())
}

// Reveal shows a thread's pending messages and returns how many moved.
func (p *Pipeline) Reveal(threadID string) int {
	return p.store.ShowNewMessages(threadID)
}
