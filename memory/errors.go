package memory

import "errors"

// Error taxonomy. Operations wrap these sentinels with fmt.Errorf("...: %w")
// so callers can classify with errors.Is.
var (
	// ErrValidation rejects bad input before any storage access. A failed
	// validation is never partially applied.
	ErrValidation = errors.New("memory: validation failed")

	// ErrStorage means the backing medium is unreachable or corrupt. The
	// failed operation had no effect.
	ErrStorage = errors.New("memory: storage failure")

	// ErrNotFound is returned by lookups of absent IDs. Delete treats an
	// absent ID as a no-op success instead.
	ErrNotFound = errors.New("memory: entry not found")

	// ErrUnavailable means the embedding backend is not usable. It is a
	// degraded mode, not an operation failure: no service operation ever
	// returns it to the caller.
	ErrUnavailable = errors.New("memory: embedder unavailable")

	// ErrTimeout means a search exceeded its time budget. An aborted
	// search returns nothing rather than a truncated ranked list.
	ErrTimeout = errors.New("memory: search timed out")
)
