package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
)

// Mode identifies the scoring mode a search committed to.
type Mode string

const (
	// ModeVector means the query embedded successfully and entries with
	// vectors were scored by cosine similarity.
	ModeVector Mode = "vector"

	// ModeLexical means every entry was scored by lexical token overlap.
	ModeLexical Mode = "lexical"
)

// Result pairs an entry with its relevance score.
//
// Vector-mode scores lie in [-1, 1]; lexical scores in [0, 1]. Within one
// vector-mode call, entries lacking a vector carry the lexical score for
// the same query text — a deliberate scale mismatch callers must be aware
// of when interpreting absolute score values.
type Result struct {
	Entry *Entry
	Score float64
}

// Availability is the sticky process-wide embedder state. Once unavailable,
// it never becomes available again for the life of the process; this keeps
// a single store from mixing scoring modes call by call.
type Availability struct {
	unavailable atomic.Bool
}

// NewAvailability creates the flag. Pass available=false when no embedding
// backend is configured at all.
func NewAvailability(available bool) *Availability {
	a := &Availability{}
	if !available {
		a.unavailable.Store(true)
	}
	return a
}

// Available reports whether the embedding backend may still be used.
func (a *Availability) Available() bool {
	return !a.unavailable.Load()
}

func (a *Availability) markUnavailable() {
	if a.unavailable.CompareAndSwap(false, true) {
		log.Printf("[MEMORY] Embedding backend unavailable, lexical mode is now permanent")
	}
}

// Engine ranks stored entries against a query.
//
// Each call commits to exactly one scoring mode: vector mode iff the query
// embedded successfully, lexical mode otherwise. Cosine and lexical scores
// are never compared across calls; within a vector-mode call an entry
// without a vector falls back to the lexical formula.
type Engine struct {
	store      RecordStore
	embedder   Embedder
	avail      *Availability
	maxResults int
}

// NewEngine creates a retrieval engine. embedder may be nil; avail must
// reflect that (NewAvailability(false)). maxResults caps every search;
// larger requested limits are clamped, not rejected.
func NewEngine(store RecordStore, embedder Embedder, avail *Availability, maxResults int) *Engine {
	if maxResults <= 0 {
		maxResults = DefaultConfig.MaxSearchResults
	}
	return &Engine{
		store:      store,
		embedder:   embedder,
		avail:      avail,
		maxResults: maxResults,
	}
}

// Search embeds the query best-effort, scans all entries, scores and ranks
// them, and returns at most limit results ordered by descending score with
// ties broken by descending CreatedAt, then descending ID.
//
// An unavailable embedder is not an error here; it forces lexical mode for
// the whole call. A context deadline aborts with ErrTimeout and no partial
// ranked list is ever returned.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Result, Mode, error) {
	if limit <= 0 {
		return nil, ModeLexical, nil
	}
	if limit > e.maxResults {
		limit = e.maxResults
	}

	tokens := Tokenize(query)

	mode := ModeLexical
	var queryVec []float32
	if e.embedder != nil && e.avail.Available() {
		vec, err := e.embedder.Embed(ctx, query)
		switch {
		case err == nil:
			queryVec = vec
			mode = ModeVector
		case errors.Is(err, ErrUnavailable):
			e.avail.markUnavailable()
		case ctx.Err() != nil:
			return nil, mode, searchCtxErr(ctx)
		default:
			// Transient failure: this call degrades to lexical mode
			// without latching the sticky flag.
			log.Printf("[MEMORY] Query embed failed, falling back to lexical: %v", err)
		}
	}

	// A query with no tokens can match nothing in lexical mode.
	if mode == ModeLexical && len(tokens) == 0 {
		return nil, mode, nil
	}

	cur, err := e.store.Scan(ctx)
	if err != nil {
		return nil, mode, fmt.Errorf("scan: %w", err)
	}
	defer cur.Close()

	var results []Result
	for cur.Next() {
		if ctx.Err() != nil {
			return nil, mode, searchCtxErr(ctx)
		}
		entry := cur.Entry()

		var score float64
		if mode == ModeVector && entry.HasEmbedding() {
			score = CosineSimilarity(queryVec, entry.Embedding)
		} else {
			score = LexicalOverlap(tokens, entry.Content)
		}
		results = append(results, Result{Entry: entry, Score: score})
	}
	if err := cur.Err(); err != nil {
		return nil, mode, fmt.Errorf("scan: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Entry.CreatedAt.Equal(b.Entry.CreatedAt) {
			return a.Entry.CreatedAt.After(b.Entry.CreatedAt)
		}
		return a.Entry.ID > b.Entry.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, mode, nil
}

func searchCtxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("search aborted: %w", ErrTimeout)
	}
	return ctx.Err()
}
