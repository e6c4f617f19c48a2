// Package memstore provides an in-memory RecordStore.
//
// It backs tests and ephemeral deployments; entries do not survive the
// process. The durable implementation lives in store/wal.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/engram-dev/engram/memory"
)

// Store is a process-local, mutex-serialized RecordStore.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]*memory.Entry
	order   []int64 // insertion order, ascending ID
	nextID  int64
	now     func() time.Time
	closed  bool
}

// Option configures the store.
type Option func(*Store)

// WithClock substitutes the timestamp source. Tests use it to force
// CreatedAt ties.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[int64]*memory.Entry),
		nextID:  1,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a new entry and returns its ID.
func (s *Store) Put(ctx context.Context, content string, embedding []float32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}

	e := &memory.Entry{
		ID:        s.nextID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if embedding != nil {
		e.Embedding = append([]float32(nil), embedding...)
	}
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	s.nextID++
	return e.ID, nil
}

// Get returns a copy of the entry with the given ID.
func (s *Store) Get(ctx context.Context, id int64) (*memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %d: %w", id, memory.ErrNotFound)
	}
	return e.Clone(), nil
}

// List returns up to limit entries, newest-first by CreatedAt with ties
// broken by descending ID.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*memory.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.entries[ids[i]], s.entries[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*memory.Entry, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id].Clone()
	}
	return out, nil
}

// Scan returns a cursor over a snapshot of the live entries, oldest-first
// by ID. Writes after Scan returns are not observed by the cursor.
func (s *Store) Scan(ctx context.Context) (memory.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", memory.ErrStorage)
	}

	snapshot := make([]*memory.Entry, 0, len(s.entries))
	for _, id := range s.order {
		if e, ok := s.entries[id]; ok {
			snapshot = append(snapshot, e.Clone())
		}
	}
	return &cursor{entries: snapshot, pos: -1}, nil
}

// Delete removes an entry, reporting whether it existed. The ID is never
// reused afterwards.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	delete(s.entries, id)
	return true, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type cursor struct {
	entries []*memory.Entry
	pos     int
}

func (c *cursor) Next() bool {
	if c.pos+1 >= len(c.entries) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Entry() *memory.Entry { return c.entries[c.pos] }
func (c *cursor) Err() error           { return nil }
func (c *cursor) Close() error         { return nil }
