package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Service exposes the public memory operations: Add, List, Search, Delete.
// It validates inputs before any storage access and owns the sticky
// embedder-availability flag; scoring and storage live elsewhere.
type Service struct {
	store    RecordStore
	embedder Embedder
	engine   *Engine
	avail    *Availability
	config   *Config
}

// NewService creates a Service. embedder may be nil, which pins the store
// to lexical mode from the start.
func NewService(store RecordStore, embedder Embedder, config *Config) *Service {
	if config == nil {
		config = DefaultConfig
	}
	config = config.withDefaults()

	avail := NewAvailability(embedder != nil)
	return &Service{
		store:    store,
		embedder: embedder,
		engine:   NewEngine(store, embedder, avail, config.MaxSearchResults),
		avail:    avail,
		config:   config,
	}
}

// EmbeddingAvailable reports whether new entries are still being embedded.
func (s *Service) EmbeddingAvailable() bool {
	return s.avail.Available()
}

// DefaultListLimit is the page size for callers that do not pick their own.
func (s *Service) DefaultListLimit() int {
	return s.config.DefaultListLimit
}

// AddResult is the outcome of Add.
type AddResult struct {
	ID                  int64
	StoredWithEmbedding bool
}

// Add validates and persists a new entry. The entry is durable before Add
// returns. An unavailable embedder is not an error; the entry is simply
// stored without a vector.
func (s *Service) Add(ctx context.Context, content string) (*AddResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrValidation)
	}

	var embedding []float32
	if s.avail.Available() {
		vec, err := s.embedder.Embed(ctx, content)
		switch {
		case err == nil:
			embedding = vec
		case errors.Is(err, ErrUnavailable):
			s.avail.markUnavailable()
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			// The entry must never be lost to a flaky backend; store
			// it vectorless and leave the sticky flag alone.
			log.Printf("[MEMORY] Embed failed, storing without vector: %v", err)
		}
	}

	id, err := s.store.Put(ctx, content, embedding)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}

	log.Printf("[MEMORY] Added entry %d (embedded=%t)", id, embedding != nil)
	return &AddResult{ID: id, StoredWithEmbedding: embedding != nil}, nil
}

// List returns up to limit entries, newest-first. A limit of zero yields an
// empty result; limits above the configured maximum are clamped.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrValidation, limit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", ErrValidation, offset)
	}
	if limit == 0 {
		return nil, nil
	}
	if limit > s.config.MaxListLimit {
		limit = s.config.MaxListLimit
	}

	entries, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return entries, nil
}

// Search ranks all stored entries against the query and returns at most
// limit results along with the scoring mode the call committed to. An empty
// store, an empty query or a limit of zero yield an empty result, not an
// error.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, Mode, error) {
	if limit < 0 {
		return nil, ModeLexical, fmt.Errorf("%w: negative limit %d", ErrValidation, limit)
	}
	if strings.TrimSpace(query) == "" || limit == 0 {
		return nil, ModeLexical, nil
	}

	if s.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SearchTimeout)
		defer cancel()
	}

	results, mode, err := s.engine.Search(ctx, query, limit)
	if err != nil {
		return nil, mode, err
	}
	log.Printf("[MEMORY] Search %q returned %d results (mode=%s)", truncateLog(query, 50), len(results), mode)
	return results, mode, nil
}

// Delete removes an entry. It is idempotent: deleting an absent ID reports
// false without erroring.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	if deleted {
		log.Printf("[MEMORY] Deleted entry %d", id)
	}
	return deleted, nil
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
