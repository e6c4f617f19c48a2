// Package config resolves deployment settings from an optional yaml file
// and environment overrides. Use it instead of hard-coding parameters.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides. ENGRAM_FILE mirrors the env-configured store
// location the deployments expect; the rest follow the same prefix.
const (
	EnvStorePath = "ENGRAM_FILE"
	EnvEmbedder  = "ENGRAM_EMBEDDER"
)

// Yaml keys.
const (
	KeyStorePath        = "store_path"
	KeyDefaultListLimit = "default_list_limit"
	KeyMaxListLimit     = "max_list_limit"
	KeyMaxSearchResults = "max_search_results"
	KeySearchTimeout    = "search_timeout_ms"
	KeyEmbedder         = "embedder" // none | mock | openai | onnx
	KeyEmbedDimensions  = "embed_dimensions"
)

// DefaultStorePath is used when neither yaml nor environment name one.
const DefaultStorePath = "engram.db"

// Config is a yaml-backed settings map with typed accessors.
type Config struct {
	values map[string]any
}

// Load reads settings from a yaml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return &Config{values: values}, nil
}

// Default returns an empty configuration; every accessor falls back to its
// default and environment overrides still apply.
func Default() *Config {
	return &Config{values: make(map[string]any)}
}

// StorePath resolves the store location: ENGRAM_FILE, then the yaml key,
// then DefaultStorePath.
func (c *Config) StorePath() string {
	if p := os.Getenv(EnvStorePath); p != "" {
		return p
	}
	return c.GetStringOrDefault(KeyStorePath, DefaultStorePath)
}

// EmbedderKind resolves the embedding backend selection: ENGRAM_EMBEDDER,
// then the yaml key, then "none".
func (c *Config) EmbedderKind() string {
	if k := os.Getenv(EnvEmbedder); k != "" {
		return k
	}
	return c.GetStringOrDefault(KeyEmbedder, "none")
}

// GetString returns a string-typed parameter, or "" when absent or not a
// string.
func (c *Config) GetString(key string) string {
	value, ok := c.values[key]
	if !ok {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	return str
}

// GetStringOrDefault returns a string-typed parameter, or defaultValue when
// absent or not a string.
func (c *Config) GetStringOrDefault(key, defaultValue string) string {
	value := c.GetString(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetIntOrDefault returns an integer-typed parameter, or defaultValue when
// absent or not an integer.
func (c *Config) GetIntOrDefault(key string, defaultValue int) int {
	value, ok := c.values[key]
	if !ok {
		return defaultValue
	}
	intValue, ok := value.(int)
	if !ok {
		return defaultValue
	}
	return intValue
}

// GetDurationOrDefault returns a duration parameter stored as integer
// milliseconds, or defaultValue when absent or unparsable.
func (c *Config) GetDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	intValue := c.GetIntOrDefault(key, -1)
	if intValue < 0 {
		return defaultValue
	}
	return time.Duration(intValue) * time.Millisecond
}
