// Package cache decorates an Embedder with a ristretto cache and
// singleflight deduplication.
//
// Embedding the same text twice is common (repeated queries, retried adds)
// and local inference is the slow path of a search, so hits skip the
// backend entirely and concurrent embeds of identical text collapse into
// one backend call.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/engram-dev/engram/memory"
)

// Config configures the cache.
type Config struct {
	// MaxEntries bounds the number of cached vectors. Default: 4096.
	MaxEntries int64
}

// Embedder wraps another Embedder with caching.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
	group singleflight.Group
}

// New creates a caching decorator around inner.
func New(inner memory.Embedder, cfg *Config) (*Embedder, error) {
	maxEntries := int64(4096)
	if cfg != nil && cfg.MaxEntries > 0 {
		maxEntries = cfg.MaxEntries
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Embedder{inner: inner, cache: c}, nil
}

// Embed returns the cached vector for text, or embeds through the inner
// backend. Errors are never cached; memory.ErrUnavailable passes through
// untouched so stickiness still works upstream.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		vec := v.([]float32)
		return append([]float32(nil), vec...), nil
	}

	v, err, _ := e.group.Do(text, func() (any, error) {
		vec, err := e.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		e.cache.Set(text, vec, 1)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	vec := v.([]float32)
	return append([]float32(nil), vec...), nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
