package memory

import "time"

// Config holds Service configuration.
type Config struct {
	// DefaultListLimit is used by callers that do not choose their own
	// page size. Default: 10.
	DefaultListLimit int

	// MaxListLimit is the hard cap on List page sizes. Larger requests
	// are clamped, never rejected. Default: 100.
	MaxListLimit int

	// MaxSearchResults is the hard cap on Search result counts. Larger
	// requests are clamped, never rejected. Default: 100.
	MaxSearchResults int

	// SearchTimeout bounds a single Search call, including the embed
	// step, which may run local model inference. Zero disables the
	// service-level deadline. Default: 30s.
	SearchTimeout time.Duration
}

// DefaultConfig returns sensible defaults for a local tool server.
var DefaultConfig = &Config{
	DefaultListLimit: 10,
	MaxListLimit:     100,
	MaxSearchResults: 100,
	SearchTimeout:    30 * time.Second,
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.DefaultListLimit <= 0 {
		out.DefaultListLimit = DefaultConfig.DefaultListLimit
	}
	if out.MaxListLimit <= 0 {
		out.MaxListLimit = DefaultConfig.MaxListLimit
	}
	if out.MaxSearchResults <= 0 {
		out.MaxSearchResults = DefaultConfig.MaxSearchResults
	}
	return &out
}
