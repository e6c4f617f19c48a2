package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/engram-dev/engram/memory"
	"github.com/engram-dev/engram/memory/embedder/mock"
	"github.com/engram-dev/engram/memory/store/memstore"
)

func newService(embedder memory.Embedder) *memory.Service {
	return memory.NewService(memstore.New(), embedder, &memory.Config{
		MaxListLimit:     5,
		MaxSearchResults: 5,
	})
}

func TestServiceAddValidation(t *testing.T) {
	svc := newService(nil)
	for _, content := range []string{"", "   ", "\t\n"} {
		if _, err := svc.Add(context.Background(), content); !errors.Is(err, memory.ErrValidation) {
			t.Errorf("Add(%q) err = %v, want ErrValidation", content, err)
		}
	}
}

func TestServiceAddThenListIncludesOnce(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)

	res, err := svc.Add(ctx, "remember this")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	entries, err := svc.List(ctx, 5, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	count := 0
	for _, e := range entries {
		if e.ID == res.ID {
			count++
			if e.Content != "remember this" {
				t.Errorf("content = %q", e.Content)
			}
		}
	}
	if count != 1 {
		t.Errorf("entry appears %d times, want exactly once", count)
	}
}

func TestServiceIDsMonotonicAndNeverReused(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)

	first, _ := svc.Add(ctx, "first")
	second, _ := svc.Add(ctx, "second")
	if second.ID <= first.ID {
		t.Fatalf("ids not monotonic: %d then %d", first.ID, second.ID)
	}

	if _, err := svc.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	third, _ := svc.Add(ctx, "third")
	if third.ID <= second.ID {
		t.Errorf("id %d reused after deleting %d", third.ID, second.ID)
	}
}

func TestServiceListBoundaries(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)
	for range 10 {
		if _, err := svc.Add(ctx, "entry"); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	entries, err := svc.List(ctx, 0, 0)
	if err != nil || len(entries) != 0 {
		t.Errorf("List(0) = %d entries, err %v; want empty, nil", len(entries), err)
	}

	// The configured maximum is 5; a huge limit clamps instead of failing.
	entries, err = svc.List(ctx, 1000, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("List(1000) = %d entries, want clamp to 5", len(entries))
	}

	if _, err := svc.List(ctx, -1, 0); !errors.Is(err, memory.ErrValidation) {
		t.Errorf("List(-1) err = %v, want ErrValidation", err)
	}
	if _, err := svc.List(ctx, 5, -1); !errors.Is(err, memory.ErrValidation) {
		t.Errorf("List(5, -1) err = %v, want ErrValidation", err)
	}
}

func TestServiceListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)
	svc.Add(ctx, "oldest")
	svc.Add(ctx, "middle")
	svc.Add(ctx, "newest")

	entries, err := svc.List(ctx, 5, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.CreatedAt.After(prev.CreatedAt) {
			t.Errorf("entries not newest-first at %d", i)
		}
		if cur.CreatedAt.Equal(prev.CreatedAt) && cur.ID > prev.ID {
			t.Errorf("CreatedAt tie not broken by descending ID at %d", i)
		}
	}
}

func TestServiceDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)
	res, _ := svc.Add(ctx, "to delete")

	deleted, err := svc.Delete(ctx, res.ID)
	if err != nil || !deleted {
		t.Fatalf("first Delete = %t, %v; want true, nil", deleted, err)
	}
	deleted, err = svc.Delete(ctx, res.ID)
	if err != nil || deleted {
		t.Fatalf("second Delete = %t, %v; want false, nil", deleted, err)
	}

	entries, _ := svc.List(ctx, 5, 0)
	for _, e := range entries {
		if e.ID == res.ID {
			t.Errorf("deleted entry %d still listed", res.ID)
		}
	}
}

func TestServiceSearchEmptyStore(t *testing.T) {
	svc := newService(nil)
	results, _, err := svc.Search(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestServiceSearchValidation(t *testing.T) {
	svc := newService(nil)
	if _, _, err := svc.Search(context.Background(), "query", -1); !errors.Is(err, memory.ErrValidation) {
		t.Errorf("Search(limit=-1) err = %v, want ErrValidation", err)
	}
	results, _, err := svc.Search(context.Background(), "query", 0)
	if err != nil || len(results) != 0 {
		t.Errorf("Search(limit=0) = %d results, err %v; want empty, nil", len(results), err)
	}
}

func TestServiceDegradedLexicalMode(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()
	embedder.Unavailable = true
	svc := newService(embedder)

	res, err := svc.Add(ctx, "the build script is in scripts")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.StoredWithEmbedding {
		t.Error("entry embedded despite unavailable backend")
	}
	if svc.EmbeddingAvailable() {
		t.Error("availability should have latched during Add")
	}

	results, mode, err := svc.Search(ctx, "build script", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeLexical {
		t.Errorf("mode = %s, want lexical", mode)
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("lexical score %v outside [0, 1]", r.Score)
		}
	}
	if len(results) == 0 || results[0].Score != 1.0 {
		t.Errorf("results = %+v, want full-overlap top hit", results)
	}
}

func TestServiceVectorMode(t *testing.T) {
	ctx := context.Background()
	svc := newService(mock.New())

	res, err := svc.Add(ctx, "the build script is in scripts")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !res.StoredWithEmbedding {
		t.Fatal("entry not embedded with available backend")
	}

	results, mode, err := svc.Search(ctx, "the build script is in scripts", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mode != memory.ModeVector {
		t.Fatalf("mode = %s, want vector", mode)
	}
	if len(results) != 1 || results[0].Score < 0.999 {
		t.Errorf("results = %+v, want single ~1.0 hit", results)
	}
}

func TestServiceTransientEmbedFailureStoresVectorless(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()
	embedder.EmbedErr = errors.New("backend hiccup")
	svc := newService(embedder)

	res, err := svc.Add(ctx, "survives the hiccup")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.StoredWithEmbedding {
		t.Error("embedding reported despite failed embed")
	}
	if !svc.EmbeddingAvailable() {
		t.Error("transient failure must not latch unavailability")
	}
}
