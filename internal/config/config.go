package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the sitevoice configuration
type Config struct {
	Completion CompletionConfig `yaml:"completion"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Watch      WatchConfig      `yaml:"watch"`
	Serve      ServeConfig      `yaml:"serve"`
}

// CompletionConfig configures the text-completion service.
// FallbackModels are tried in order after Model fails.
type CompletionConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	Model          string   `yaml:"model"`
	FallbackModels []string `yaml:"fallback_models,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url,omitempty"`
	APIKeyEnv      string `yaml:"api_key_env,omitempty"`
	Model          string `yaml:"model"`
	Dimension      int    `yaml:"dimension"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// WatchConfig configures the transcript inbox watcher.
type WatchConfig struct {
	InboxDir string `yaml:"inbox_dir,omitempty"`
	UserID   string `yaml:"user_id,omitempty"`
}

// ServeConfig configures the HTTP API.
type ServeConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Defaults match the original deployment: a Together-style
// OpenAI-compatible endpoint for both completions and embeddings.
func defaultConfig() *Config {
	return &Config{
		Completion: CompletionConfig{
			BaseURL:        "https://api.together.xyz/v1",
			APIKeyEnv:      "TOGETHER_API_KEY",
			Model:          "mistralai/Mixtral-8x7B-Instruct-v0.1",
			FallbackModels: []string{"mistralai/Mistral-7B-Instruct-v0.2"},
			TimeoutSeconds: 60,
		},
		Embedding: EmbeddingConfig{
			Model:          "togethercomputer/m2-bert-80M-32k-retrieval",
			Dimension:      768,
			TimeoutSeconds: 30,
		},
		Serve: ServeConfig{Addr: ":8090"},
	}
}

// Timeout returns the configured per-attempt timeout.
func (c *CompletionConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the configured embedding call timeout.
func (c *EmbeddingConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIKey resolves the API key from the configured environment variable.
func (c *CompletionConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return os.Getenv("TOGETHER_API_KEY")
	}
	return os.Getenv(c.APIKeyEnv)
}

// APIKey resolves the embedding API key, falling back to the completion key env.
func (c *EmbeddingConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return os.Getenv("TOGETHER_API_KEY")
	}
	return os.Getenv(c.APIKeyEnv)
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("SITEVOICE_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sitevoice"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("SITEVOICE_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Sitevoice"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "sitevoice"), nil
	}

	return filepath.Join(home, ".local", "share", "sitevoice"), nil
}

// Load loads config from the config file
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
