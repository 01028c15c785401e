package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Routing.MaxIterations != 3 {
		t.Errorf("expected 3 iterations, got %d", cfg.Routing.MaxIterations)
	}
	if cfg.Routing.ClarifyThreshold != 0.7 {
		t.Errorf("expected 0.7, got %v", cfg.Routing.ClarifyThreshold)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Database.Driver)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[server]
addr = ":9090"

[routing]
max_iterations = 2
chunk_timeout = "5s"
`), 0644)

	cfg := Load(path)
	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Routing.MaxIterations != 2 {
		t.Errorf("expected 2, got %d", cfg.Routing.MaxIterations)
	}
	if cfg.Routing.ChunkTimeout.Std() != 5*time.Second {
		t.Errorf("expected 5s, got %s", cfg.Routing.ChunkTimeout.Std())
	}
	// Defaults preserved
	if cfg.Routing.EvalAlpha != 0.7 {
		t.Errorf("default should be preserved, got %v", cfg.Routing.EvalAlpha)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RELAY_LLM_API_KEY", "env-key")
	t.Setenv("RELAY_ADDR", ":7070")
	t.Setenv("RELAY_MAX_ITERATIONS", "2")

	cfg := Load("/nonexistent/path.toml")
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected :7070, got %s", cfg.Server.Addr)
	}
	if cfg.Routing.MaxIterations != 2 {
		t.Errorf("expected 2, got %d", cfg.Routing.MaxIterations)
	}
	// Fallback: embedding gets the LLM key
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("expected embedding fallback to env-key, got %s", cfg.Embedding.APIKey)
	}
}

func TestBadDurationRejected(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Error("expected parse error")
	}
	if err := d.UnmarshalText([]byte("45s")); err != nil {
		t.Errorf("valid duration rejected: %v", err)
	}
	if d.Std() != 45*time.Second {
		t.Errorf("expected 45s, got %s", d.Std())
	}
}
