package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all promptforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generation API configuration
	LLM LLMConfig `yaml:"llm"`

	// Batch orchestration defaults
	Batch BatchConfig `yaml:"batch"`

	// Local persistence
	Storage StorageConfig `yaml:"storage"`

	// Preset file location
	Presets PresetsConfig `yaml:"presets"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text generation client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`

	// Minimum gap enforced between outbound requests
	RequestGap string `yaml:"request_gap"`

	// Retry budget for well-formed but empty completions
	EmptyRetries    int    `yaml:"empty_retries"`
	EmptyRetryDelay string `yaml:"empty_retry_delay"`
}

// BatchConfig configures default run parameters.
// Per-item overrides and run options shadow these.
type BatchConfig struct {
	Instruction     string `yaml:"instruction"`
	OutputsPerRound int    `yaml:"outputs_per_round"`
	TotalRounds     int    `yaml:"total_rounds"`
	Translation     bool   `yaml:"translation"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Debounce window for queue snapshot saves
	SaveDebounce string `yaml:"save_debounce"`

	// Fields longer than this are truncated before a snapshot write
	// is dropped entirely
	MaxFieldBytes int `yaml:"max_field_bytes"`
}

// PresetsConfig configures the preset file and its watcher.
type PresetsConfig struct {
	Path        string `yaml:"path"`
	WatchReload bool   `yaml:"watch_reload"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "promptforge",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			Timeout:         "120s",
			RequestGap:      "100ms",
			EmptyRetries:    3,
			EmptyRetryDelay: "1s",
		},

		Batch: BatchConfig{
			Instruction:     "Rewrite the text to be clearer and more compelling.",
			OutputsPerRound: 3,
			TotalRounds:     1,
			Translation:     false,
		},

		Storage: StorageConfig{
			DatabasePath:  ".pforge/promptforge.db",
			SaveDebounce:  "2s",
			MaxFieldBytes: 64 * 1024,
		},

		Presets: PresetsConfig{
			Path:        ".pforge/presets.yaml",
			WatchReload: true,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("PFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("PFORGE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if path := os.Getenv("PFORGE_PRESETS"); path != "" {
		c.Presets.Path = path
	}
}

// validate rejects configurations the orchestrator cannot honor.
func (c *Config) validate() error {
	if c.Batch.OutputsPerRound < 1 {
		return fmt.Errorf("batch.outputs_per_round must be >= 1, got %d", c.Batch.OutputsPerRound)
	}
	if c.Batch.TotalRounds < 1 {
		return fmt.Errorf("batch.total_rounds must be >= 1, got %d", c.Batch.TotalRounds)
	}
	if c.LLM.EmptyRetries < 0 {
		return fmt.Errorf("llm.empty_retries must be >= 0, got %d", c.LLM.EmptyRetries)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the generation call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetRequestGap returns the minimum gap between outbound requests.
func (c *Config) GetRequestGap() time.Duration {
	return parseDuration(c.LLM.RequestGap, 100*time.Millisecond)
}

// GetEmptyRetryDelay returns the initial backoff for empty-response retries.
func (c *Config) GetEmptyRetryDelay() time.Duration {
	return parseDuration(c.LLM.EmptyRetryDelay, time.Second)
}

// GetSaveDebounce returns the snapshot save debounce window.
func (c *Config) GetSaveDebounce() time.Duration {
	return parseDuration(c.Storage.SaveDebounce, 2*time.Second)
}
