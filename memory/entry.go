package memory

import "time"

// Entry is a single stored memory.
//
// Entries are immutable after creation: the only mutation path is deletion.
// The embedding, when present, is owned exclusively by the entry and its
// length always equals the store's pinned dimensionality.
type Entry struct {
	// ID is unique across the store's lifetime and never reused, even
	// after deletion.
	ID int64

	// Content is the caller-supplied text. Never empty, never truncated.
	Content string

	// CreatedAt is set once at creation.
	CreatedAt time.Time

	// Embedding is present only if the embedding backend was available at
	// insert time.
	Embedding []float32
}

// HasEmbedding reports whether the entry carries a vector.
func (e *Entry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// Clone returns a deep copy. Store implementations that decode into shared
// buffers must hand out clones so no two entries alias one vector.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Embedding != nil {
		c.Embedding = append([]float32(nil), e.Embedding...)
	}
	return &c
}
