package memory

import "context"

// RecordStore is the durable storage backend for entries.
// Implementations: wal.Store (durable log), memstore.Store (in-memory).
//
// All operations must be serialized at the storage boundary so a reader
// never observes a partially written entry.
type RecordStore interface {
	// Put allocates the next unique ID, persists the entry durably and
	// returns the ID. The entry is durable before Put returns.
	Put(ctx context.Context, content string, embedding []float32) (int64, error)

	// Get returns the entry with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Entry, error)

	// List returns up to limit entries, newest-first by CreatedAt with
	// ties broken by descending ID, skipping the first offset entries of
	// that ordering. limit <= 0 yields an empty slice.
	List(ctx context.Context, limit, offset int) ([]*Entry, error)

	// Scan returns a restartable cursor over all live entries. The cursor
	// observes a snapshot taken at creation and holds at most one entry's
	// payload in memory at a time when the backing medium streams.
	Scan(ctx context.Context) (Cursor, error)

	// Delete removes the entry if present. It reports whether an entry
	// existed; a missing ID is not an error.
	Delete(ctx context.Context, id int64) (bool, error)

	// Close flushes and releases the backing medium.
	Close() error
}

// Cursor iterates a scan one entry at a time, in the style of bufio.Scanner.
//
//	cur, err := store.Scan(ctx)
//	...
//	defer cur.Close()
//	for cur.Next() {
//		use(cur.Entry())
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor interface {
	// Next advances to the next entry. It returns false when the scan is
	// exhausted or failed; Err distinguishes the two.
	Next() bool

	// Entry returns the current entry. Valid only after a true Next.
	// The returned entry is owned by the caller.
	Entry() *Entry

	// Err returns the first error encountered, if any.
	Err() error

	// Close releases cursor resources. Safe to call more than once.
	Close() error
}

// Embedder converts text to a fixed-length vector.
//
// ErrUnavailable is a first-class outcome, not an exceptional one: it means
// no backend is configured or the backend failed to initialize. Callers
// treat it as sticky for the life of the process (see Service).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
