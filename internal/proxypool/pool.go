// File: internal/proxypool/pool.go
package proxypool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wafidbot/wafidbot/internal/observability"
)

// ErrNoCandidates is returned by Refresh when every configured source came
// back empty or failed. The pool keeps its previous entries in that case.
var ErrNoCandidates = errors.New("proxypool: refresh produced no candidates")

// ErrAllUnreachable is returned by Refresh when candidates were fetched but
// none survived validation. The pool keeps its previous entries.
var ErrAllUnreachable = errors.New("proxypool: no candidate passed validation")

// Pool owns a mutable list of proxy endpoints and hands them out round-robin.
//
// The mutex protects only the in-memory entries/cursor pair. Refresh performs
// its slow fetch and validation phases entirely outside the lock and re-enters
// it only for the final atomic swap, so concurrent Next callers keep serving
// from the pre-refresh snapshot until the swap commits.
type Pool struct {
	mu      sync.Mutex
	entries []Endpoint
	cursor  int

	sources   []Source
	validator *Validator

	refreshGroup singleflight.Group
	logger       *zap.Logger
	events       *observability.EventLog
}

// NewPool creates a pool fed by the given sources. A nil validator disables
// reachability probing: fetched candidates enter the pool marked healthy.
func NewPool(logger *zap.Logger, events *observability.EventLog, sources []Source, validator *Validator) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = observability.NewEventLog(zap.NewNop())
	}
	return &Pool{
		sources:   sources,
		validator: validator,
		logger:    logger.Named("proxypool"),
		events:    events,
	}
}

// SetEntries atomically replaces the pool contents and resets the cursor.
func (p *Pool) SetEntries(entries []Endpoint) {
	snapshot := make([]Endpoint, len(entries))
	copy(snapshot, entries)

	p.mu.Lock()
	p.entries = snapshot
	p.cursor = 0
	p.mu.Unlock()
}

// Next returns the next endpoint in round-robin order. Unhealthy endpoints are
// skipped unless the healthy subset is empty, in which case the pool degrades
// to serving unhealthy entries rather than stalling the caller. The second
// return value is false when the pool is empty. Next never performs I/O.
func (p *Pool) Next() (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return Endpoint{}, false
	}

	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if p.entries[idx].Healthy {
			p.cursor = (idx + 1) % n
			return p.entries[idx], true
		}
	}

	// No healthy endpoint; serve the next one regardless.
	ep := p.entries[p.cursor%n]
	p.cursor = (p.cursor + 1) % n
	return ep, true
}

// Len returns the number of entries in the current snapshot.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Snapshot returns a copy of the current entries list.
func (p *Pool) Snapshot() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Endpoint, len(p.entries))
	copy(out, p.entries)
	return out
}

// Refresh re-fetches the endpoint list from all sources, validates the
// candidates, and atomically swaps them in. Concurrent Refresh calls are
// collapsed into a single in-flight fetch. On failure the existing entries
// are left untouched.
func (p *Pool) Refresh(ctx context.Context) error {
	_, err, _ := p.refreshGroup.Do("refresh", func() (interface{}, error) {
		return nil, p.refresh(ctx)
	})
	return err
}

func (p *Pool) refresh(ctx context.Context) error {
	// Phase 1: fetch and validate without holding the lock.
	seen := make(map[string]struct{})
	var candidates []Endpoint
	for _, src := range p.sources {
		eps, err := src.Fetch(ctx)
		if err != nil {
			p.logger.Warn("proxy source failed", zap.String("source", src.Name()), zap.Error(err))
			p.events.Warning("proxy source " + src.Name() + " failed: " + err.Error())
			continue
		}
		for _, ep := range eps {
			if _, dup := seen[ep.key()]; dup {
				continue
			}
			seen[ep.key()] = struct{}{}
			candidates = append(candidates, ep)
		}
	}

	if len(candidates) == 0 {
		p.events.Error("proxy refresh failed: no candidates fetched")
		return ErrNoCandidates
	}

	healthy := len(candidates)
	if p.validator != nil {
		candidates = p.validator.Validate(ctx, candidates)
		healthy = 0
		for _, ep := range candidates {
			if ep.Healthy {
				healthy++
			}
		}
		if healthy == 0 {
			p.events.Error("proxy refresh failed: all candidates unreachable")
			return ErrAllUnreachable
		}
	} else {
		for i := range candidates {
			candidates[i].Healthy = true
		}
	}

	// Phase 2: the atomic swap is the only work done under the lock.
	p.mu.Lock()
	p.entries = candidates
	p.cursor = 0
	p.mu.Unlock()

	p.logger.Info("proxy pool refreshed",
		zap.Int("total", len(candidates)),
		zap.Int("healthy", healthy))
	p.events.Recordf(observability.LevelInfo,
		"proxy pool refreshed: %d endpoints (%d healthy)", len(candidates), healthy)
	return nil
}
