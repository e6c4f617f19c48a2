// Package mock provides a deterministic embedder for testing.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/engram-dev/engram/memory"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Embedder generates deterministic unit vectors from a text hash. Identical
// texts always embed identically, so tests can reason about cosine scores.
//
// EmbedErr and Unavailable inject failures: the former simulates a
// transient backend error, the latter a backend that reports itself gone.
type Embedder struct {
	dims int

	// EmbedErr, when set, is returned by every Embed call.
	EmbedErr error

	// Unavailable, when true, makes Embed return memory.ErrUnavailable.
	Unavailable bool
}

// New creates a mock embedder with DefaultDimensions.
func New() *Embedder {
	return NewWithDimensions(DefaultDimensions)
}

// NewWithDimensions creates a mock embedder with a custom vector size.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dims: dims}
}

// Embed creates a deterministic embedding from the text hash, seeding a
// linear congruential generator and normalizing to a unit vector.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Unavailable {
		return nil, memory.ErrUnavailable
	}
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dims)
	for i := 0; i < m.dims; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dims
}

// normalize converts the vector to unit length in place.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
