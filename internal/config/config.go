package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ardada2468/ImageBreak/internal/core"
)

type Config struct {
	AI           AIConfig         `yaml:"ai" validate:"required"`
	Regeneration core.RegenConfig `yaml:"regeneration" validate:"required"`
	Paths        PathsConfig      `yaml:"paths"`
	Limits       Limits           `yaml:"limits" validate:"required"`
}

type AIConfig struct {
	// APIKey may stay empty for mock runs; live provider construction
	// checks for it.
	APIKey     string `yaml:"api_key" validate:"omitempty,min=20"`
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	TextModel  string `yaml:"text_model" validate:"required"`
	ImageModel string `yaml:"image_model" validate:"required"`
	Timeout    int    `yaml:"timeout" validate:"required,min=10,max=3600"`
	// Moderation toggles the optional moderation collaborator.
	Moderation bool `yaml:"moderation"`
}

type PathsConfig struct {
	OutputDir string `yaml:"output_dir"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := getConfigPath()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		cfg := Default()
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			cfg.AI.APIKey = apiKey
		}
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.AI.APIKey == "" || cfg.AI.APIKey == "${OPENAI_API_KEY}" {
		cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			BaseURL:    "https://api.openai.com/v1",
			TextModel:  "gpt-4o-mini",
			ImageModel: "dall-e-3",
			Timeout:    120,
		},
		Regeneration: core.RegenConfig{
			MaxAttempts:      5,
			QualityThreshold: 0.7,
			CyclicEnabled:    true,
		},
		Limits: DefaultLimits(),
	}
}

func getConfigPath() string {
	// 1. Explicit config path via environment variable
	if path := os.Getenv("IMAGEBREAK_CONFIG"); path != "" {
		return path
	}

	// 2. XDG_CONFIG_HOME (XDG Base Directory Specification)
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "imagebreak", "config.yaml")
	}

	// 3. Default to ~/.config/imagebreak/config.yaml
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "imagebreak", "config.yaml")
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) validate() error {
	if c.Paths.OutputDir == "" {
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			c.Paths.OutputDir = filepath.Join(xdgData, "imagebreak", "results")
		} else {
			home, _ := os.UserHomeDir()
			c.Paths.OutputDir = filepath.Join(home, ".local", "share", "imagebreak", "results")
		}
	} else {
		c.Paths.OutputDir = expandTilde(c.Paths.OutputDir)
	}

	if c.Limits.MaxConcurrentSessions == 0 {
		c.Limits = DefaultLimits()
	}

	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Save writes the config to path with the API key replaced by an env-var
// placeholder.
func Save(cfg *Config, path string) error {
	cfgToSave := *cfg
	cfgToSave.AI.APIKey = "${OPENAI_API_KEY}"

	data, err := yaml.Marshal(&cfgToSave)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
