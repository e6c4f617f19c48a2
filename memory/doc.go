// Package memory provides a persistent memory store with similarity-ranked
// retrieval.
//
// Free-text entries are persisted durably and retrieved by ranking them
// against a query string. When an embedding backend is configured, ranking
// uses cosine similarity over embedding vectors; without one, a
// deterministic lexical overlap score takes over. Both modes share the same
// ordering contract: descending score, ties broken by descending creation
// time, then descending ID.
//
// Architecture:
//   - RecordStore: durable keyed storage of entries (store/wal for the
//     log-backed implementation, store/memstore for tests and ephemeral use)
//   - Embedder: text-to-vector conversion (embedder/mock, embedder/onnx,
//     embedder/openai, with embedder/cache as a decorator)
//   - Engine: query embedding, full scan, scoring, ranking, truncation
//   - Service: validated add/list/search/delete operations
//
// Embedder availability is sticky process-wide state: once the backend
// reports it is unavailable, the service stops embedding new entries and
// every search runs in lexical mode, so a single store never flips between
// scoring modes call by call.
package memory
