package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engram.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvEmbedder, "")
	c := writeConfig(t, `
store_path: /var/lib/engram/engram.db
max_list_limit: 250
search_timeout_ms: 5000
embedder: mock
`)

	if got := c.GetString(KeyStorePath); got != "/var/lib/engram/engram.db" {
		t.Errorf("store_path = %q", got)
	}
	if got := c.GetIntOrDefault(KeyMaxListLimit, 100); got != 250 {
		t.Errorf("max_list_limit = %d", got)
	}
	if got := c.GetDurationOrDefault(KeySearchTimeout, time.Minute); got != 5*time.Second {
		t.Errorf("search_timeout = %v", got)
	}
	if got := c.EmbedderKind(); got != "mock" {
		t.Errorf("embedder = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv(EnvStorePath, "")
	t.Setenv(EnvEmbedder, "")
	c := Default()

	if got := c.StorePath(); got != DefaultStorePath {
		t.Errorf("StorePath() = %q, want %q", got, DefaultStorePath)
	}
	if got := c.EmbedderKind(); got != "none" {
		t.Errorf("EmbedderKind() = %q, want none", got)
	}
	if got := c.GetIntOrDefault(KeyMaxListLimit, 100); got != 100 {
		t.Errorf("GetIntOrDefault = %d, want 100", got)
	}
	if got := c.GetDurationOrDefault(KeySearchTimeout, 30*time.Second); got != 30*time.Second {
		t.Errorf("GetDurationOrDefault = %v", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	c := writeConfig(t, `
store_path: from-file.db
embedder: mock
`)

	t.Setenv(EnvStorePath, "from-env.db")
	t.Setenv(EnvEmbedder, "openai")

	if got := c.StorePath(); got != "from-env.db" {
		t.Errorf("StorePath() = %q, want env override", got)
	}
	if got := c.EmbedderKind(); got != "openai" {
		t.Errorf("EmbedderKind() = %q, want env override", got)
	}
}

func TestWrongTypeFallsBack(t *testing.T) {
	c := writeConfig(t, `
max_list_limit: not-a-number
store_path: 12345
search_timeout_ms: -5
`)

	if got := c.GetIntOrDefault(KeyMaxListLimit, 100); got != 100 {
		t.Errorf("GetIntOrDefault = %d, want fallback 100", got)
	}
	if got := c.GetString(KeyStorePath); got != "" {
		t.Errorf("GetString = %q, want empty for non-string", got)
	}
	if got := c.GetDurationOrDefault(KeySearchTimeout, time.Second); got != time.Second {
		t.Errorf("GetDurationOrDefault = %v, want fallback", got)
	}
}
