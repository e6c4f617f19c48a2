package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engram-dev/engram/memory"
	"github.com/engram-dev/engram/memory/embedder/mock"
	"github.com/engram-dev/engram/memory/store/memstore"
)

// countingEmbedder wraps the mock embedder and counts backend calls.
type countingEmbedder struct {
	*mock.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.Embedder.Embed(ctx, text)
}

func mustPut(t *testing.T, store memory.RecordStore, content string, embedding []float32) int64 {
	t.Helper()
	id, err := store.Put(context.Background(), content, embedding)
	if err != nil {
		t.Fatalf("Put(%q): %v", content, err)
	}
	return id
}

func mustEmbed(t *testing.T, e memory.Embedder, text string) []float32 {
	t.Helper()
	vec, err := e.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed(%q): %v", text, err)
	}
	return vec
}

func TestEngineVectorMode(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	embedder := mock.New()

	mustPut(t, store, "the build script is in scripts", mustEmbed(t, embedder, "the build script is in scripts"))
	mustPut(t, store, "alice owns the billing service", mustEmbed(t, embedder, "alice owns the billing service"))

	engine := memory.NewEngine(store, embedder, memory.NewAvailability(true), 10)
	results, mode, err := engine.Search(ctx, "the build script is in scripts", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeVector {
		t.Fatalf("mode = %s, want vector", mode)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// An identical text embeds identically, so the top score is cosine 1.
	if results[0].Entry.Content != "the build script is in scripts" {
		t.Errorf("top result = %q", results[0].Entry.Content)
	}
	if results[0].Score < 0.999 {
		t.Errorf("top score = %v, want ~1", results[0].Score)
	}
	for _, r := range results {
		if r.Score < -1 || r.Score > 1 {
			t.Errorf("vector score %v outside [-1, 1]", r.Score)
		}
	}
}

func TestEngineLexicalMode(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	mustPut(t, store, "the build script is in scripts", nil)
	mustPut(t, store, "deploys go through staging", nil)

	engine := memory.NewEngine(store, nil, memory.NewAvailability(false), 10)
	results, mode, err := engine.Search(ctx, "build script", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeLexical {
		t.Fatalf("mode = %s, want lexical", mode)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Score != 1.0 {
		t.Errorf("top score = %v, want 1.0", results[0].Score)
	}
	if results[1].Score != 0.0 {
		t.Errorf("bottom score = %v, want 0.0", results[1].Score)
	}
}

func TestEngineVectorlessEntryFallsBackToLexical(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	embedder := mock.New()

	mustPut(t, store, "unrelated zebra content", mustEmbed(t, embedder, "unrelated zebra content"))
	mustPut(t, store, "query text verbatim", nil) // stored before the backend came up

	engine := memory.NewEngine(store, embedder, memory.NewAvailability(true), 10)
	results, mode, err := engine.Search(ctx, "query text verbatim", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeVector {
		t.Fatalf("mode = %s, want vector", mode)
	}
	var lexicalScore float64
	for _, r := range results {
		if r.Entry.Content == "query text verbatim" {
			lexicalScore = r.Score
		}
	}
	if lexicalScore != 1.0 {
		t.Errorf("vectorless entry score = %v, want lexical 1.0", lexicalScore)
	}
}

func TestEngineTieBreaks(t *testing.T) {
	ctx := context.Background()

	// A fixed clock forces CreatedAt ties for the first two entries.
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	times := []time.Time{base, base, base.Add(time.Minute)}
	i := 0
	store := memstore.New(memstore.WithClock(func() time.Time {
		ts := times[i]
		i++
		return ts
	}))

	// All three match fully, so every score is 1.0.
	id1 := mustPut(t, store, "build one", nil)
	id2 := mustPut(t, store, "build two", nil)
	id3 := mustPut(t, store, "build three", nil)

	engine := memory.NewEngine(store, nil, memory.NewAvailability(false), 10)
	results, _, err := engine.Search(ctx, "build", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Newest CreatedAt first; equal CreatedAt breaks by descending ID.
	want := []int64{id3, id2, id1}
	for j, r := range results {
		if r.Entry.ID != want[j] {
			t.Errorf("results[%d].ID = %d, want %d", j, r.Entry.ID, want[j])
		}
	}
}

func TestEngineClampsLimit(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	for range 5 {
		mustPut(t, store, "build entry", nil)
	}

	engine := memory.NewEngine(store, nil, memory.NewAvailability(false), 3)
	results, _, err := engine.Search(ctx, "build", 1000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want clamp to 3", len(results))
	}
}

func TestEngineEmptyTokenSetLexical(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	mustPut(t, store, "anything", nil)

	engine := memory.NewEngine(store, nil, memory.NewAvailability(false), 10)
	results, mode, err := engine.Search(ctx, "   ", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeLexical || len(results) != 0 {
		t.Errorf("got %d results (mode=%s), want empty lexical", len(results), mode)
	}
}

func TestEngineEmptyStore(t *testing.T) {
	engine := memory.NewEngine(memstore.New(), nil, memory.NewAvailability(false), 10)
	results, _, err := engine.Search(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestEngineTimeout(t *testing.T) {
	store := memstore.New()
	mustPut(t, store, "entry", nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	engine := memory.NewEngine(store, nil, memory.NewAvailability(false), 10)
	results, _, err := engine.Search(ctx, "entry", 10)
	if !errors.Is(err, memory.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if results != nil {
		t.Errorf("got partial results on timeout: %v", results)
	}
}

func TestEngineStickyUnavailability(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	mustPut(t, store, "build entry", nil)

	embedder := &countingEmbedder{Embedder: mock.New()}
	embedder.Unavailable = true
	avail := memory.NewAvailability(true)

	engine := memory.NewEngine(store, embedder, avail, 10)
	_, mode, err := engine.Search(ctx, "build", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeLexical {
		t.Errorf("mode = %s, want lexical after unavailability", mode)
	}
	if avail.Available() {
		t.Error("availability should have latched to unavailable")
	}

	// The latched flag keeps later calls off the backend entirely.
	before := embedder.calls
	if _, _, err := engine.Search(ctx, "build", 10); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if embedder.calls != before {
		t.Errorf("embedder called %d more times after latch", embedder.calls-before)
	}
}

func TestEngineTransientEmbedErrorDoesNotLatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	mustPut(t, store, "build entry", nil)

	embedder := &countingEmbedder{Embedder: mock.New()}
	embedder.EmbedErr = errors.New("backend hiccup")
	avail := memory.NewAvailability(true)

	engine := memory.NewEngine(store, embedder, avail, 10)
	_, mode, err := engine.Search(ctx, "build", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeLexical {
		t.Errorf("mode = %s, want lexical for this call", mode)
	}
	if !avail.Available() {
		t.Error("transient error should not latch unavailability")
	}

	// The backend recovers and the next call is vector mode again.
	embedder.EmbedErr = nil
	_, mode, err = engine.Search(ctx, "build", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeVector {
		t.Errorf("mode = %s, want vector after recovery", mode)
	}
}
