// Package summits resolves summit keys to coordinates through a process-lifetime cache.
package summits

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rimio/sota-notifier/internal/sota"
)

// Fetcher performs the remote summit lookup on a cache miss.
type Fetcher interface {
	FetchSummit(ctx context.Context, key sota.SummitKey) (sota.Summit, error)
}

// Resolver memoizes summit lookups. Entries are never evicted; failures are never cached.
//
// Two concurrent misses on the same key both go to the network. Summit metadata is
// immutable so the second write simply replaces an identical value.
type Resolver struct {
	fetcher Fetcher

	mu    sync.RWMutex
	cache map[sota.SummitKey]sota.Summit
}

// NewResolver builds a resolver with an empty cache.
func NewResolver(f Fetcher) *Resolver {
	return &Resolver{fetcher: f, cache: make(map[sota.SummitKey]sota.Summit)}
}

// Resolve returns the cached summit or fetches and caches it.
func (r *Resolver) Resolve(ctx context.Context, key sota.SummitKey) (sota.Summit, error) {
	if s, ok := r.Cached(key); ok {
		return s, nil
	}
	s, err := r.fetcher.FetchSummit(ctx, key)
	if err != nil {
		if !errors.Is(err, sota.ErrLocationUnavailable) {
			err = fmt.Errorf("%w: %s: %v", sota.ErrLocationUnavailable, key, err)
		}
		return sota.Summit{}, err
	}
	r.mu.Lock()
	r.cache[key] = s
	r.mu.Unlock()
	return s, nil
}

// Cached returns a cache entry without touching the network.
func (r *Resolver) Cached(key sota.SummitKey) (sota.Summit, bool) {
	r.mu.RLock()
	s, ok := r.cache[key]
	r.mu.RUnlock()
	return s, ok
}

// Len reports the number of cached summits.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
