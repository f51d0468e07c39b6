package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("SITEVOICE_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Completion.BaseURL != "https://api.together.xyz/v1" {
		t.Errorf("base url = %q", cfg.Completion.BaseURL)
	}
	if cfg.Completion.Model == "" {
		t.Error("default completion model missing")
	}
	if len(cfg.Completion.FallbackModels) == 0 {
		t.Error("default fallback models missing")
	}
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("dimension = %d, want 768", cfg.Embedding.Dimension)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv("SITEVOICE_CONFIG_DIR", t.TempDir())

	cfg := defaultConfig()
	cfg.Completion.Model = "custom-model"
	cfg.Watch.InboxDir = "/tmp/inbox"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Completion.Model != "custom-model" {
		t.Errorf("model = %q", loaded.Completion.Model)
	}
	if loaded.Watch.InboxDir != "/tmp/inbox" {
		t.Errorf("inbox = %q", loaded.Watch.InboxDir)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SITEVOICE_CONFIG_DIR", dir)

	// Only the model is set; everything else should fall back to defaults.
	data := []byte("completion:\n  model: override-model\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Completion.Model != "override-model" {
		t.Errorf("model = %q", cfg.Completion.Model)
	}
	if cfg.Embedding.Model == "" {
		t.Error("embedding default lost on partial config")
	}
}

func TestTimeouts(t *testing.T) {
	c := CompletionConfig{TimeoutSeconds: 10}
	if c.Timeout() != 10*time.Second {
		t.Errorf("timeout = %v", c.Timeout())
	}
	zero := CompletionConfig{}
	if zero.Timeout() != 60*time.Second {
		t.Errorf("default timeout = %v", zero.Timeout())
	}
	e := EmbeddingConfig{}
	if e.Timeout() != 30*time.Second {
		t.Errorf("embedding default timeout = %v", e.Timeout())
	}
}

func TestDirOverrides(t *testing.T) {
	t.Setenv("SITEVOICE_CONFIG_DIR", "/custom/config")
	t.Setenv("SITEVOICE_DATA_DIR", "/custom/data")

	if dir, _ := GetConfigDir(); dir != "/custom/config" {
		t.Errorf("config dir = %q", dir)
	}
	if dir, _ := GetDataDir(); dir != "/custom/data" {
		t.Errorf("data dir = %q", dir)
	}
}
