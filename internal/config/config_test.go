package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validTestConfig() *Config {
	cfg := Default()
	cfg.AI.APIKey = "sk-1234567890abcdef1234567890abcdef"
	cfg.Paths.OutputDir = "results"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"api key too short", func(c *Config) { c.AI.APIKey = "short" }, true},
		{"empty api key allowed for mock runs", func(c *Config) { c.AI.APIKey = "" }, false},
		{"missing base url", func(c *Config) { c.AI.BaseURL = "" }, true},
		{"bad base url", func(c *Config) { c.AI.BaseURL = "not-a-url" }, true},
		{"timeout too small", func(c *Config) { c.AI.Timeout = 1 }, true},
		{"zero max attempts", func(c *Config) { c.Regeneration.MaxAttempts = 0 }, true},
		{"threshold above one", func(c *Config) { c.Regeneration.QualityThreshold = 1.5 }, true},
		{"missing image model", func(c *Config) { c.AI.ImageModel = "" }, true},
		{"too many concurrent sessions", func(c *Config) { c.Limits.MaxConcurrentSessions = 500 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Regeneration.MaxAttempts < 1 {
		t.Error("default max attempts must be at least 1")
	}
	if cfg.Regeneration.QualityThreshold < 0 || cfg.Regeneration.QualityThreshold > 1 {
		t.Errorf("default threshold %v out of range", cfg.Regeneration.QualityThreshold)
	}
	if !cfg.Regeneration.CyclicEnabled {
		t.Error("cyclic regeneration should default on")
	}
	if cfg.Limits.MaxConcurrentSessions < 1 {
		t.Error("default concurrency must be at least 1")
	}
}

func TestConfigValidateFillsOutputDir(t *testing.T) {
	cfg := validTestConfig()
	cfg.Paths.OutputDir = ""

	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Paths.OutputDir == "" {
		t.Error("validate should fill a default output dir")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := []byte(`ai:
  api_key: sk-1234567890abcdef1234567890abcdef
  base_url: https://api.openai.com/v1
  text_model: gpt-4o-mini
  image_model: dall-e-3
  timeout: 120
regeneration:
  max_attempts: 7
  quality_threshold: 0.6
  cyclic_enabled: true
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IMAGEBREAK_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Regeneration.MaxAttempts != 7 {
		t.Errorf("max attempts = %d, want 7", cfg.Regeneration.MaxAttempts)
	}
	if cfg.Regeneration.QualityThreshold != 0.6 {
		t.Errorf("threshold = %v, want 0.6", cfg.Regeneration.QualityThreshold)
	}
	// Unspecified limits fall back to defaults.
	if cfg.Limits.MaxConcurrentSessions != DefaultLimits().MaxConcurrentSessions {
		t.Errorf("concurrency = %d, want default", cfg.Limits.MaxConcurrentSessions)
	}
}

func TestSaveMasksAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := validTestConfig()
	if err := Save(cfg, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("empty config written")
	}
	if strings.Contains(string(data), cfg.AI.APIKey) {
		t.Error("saved config must not contain the API key")
	}
	if !strings.Contains(string(data), "${OPENAI_API_KEY}") {
		t.Error("saved config should carry the env-var placeholder")
	}
}
