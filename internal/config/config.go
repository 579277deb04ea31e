package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sheetwright configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Script generation (LLM) settings
	Generation GenerationConfig `yaml:"generation"`

	// Sandboxed interpreter settings
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Daily usage accounting
	Usage UsageConfig `yaml:"usage"`

	// Local persistent storage
	Storage StorageConfig `yaml:"storage"`

	// Orchestration behaviour
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// HTTP upload/download surface
	Server ServerConfig `yaml:"server"`
}

// UsageConfig configures the per-day generation quota.
type UsageConfig struct {
	DailyLimit int    `yaml:"daily_limit"`
	StorageKey string `yaml:"storage_key"` // bump the key to reset every client on release
	Timezone   string `yaml:"timezone"`    // IANA name used to cut calendar days
}

// StorageConfig configures the local key-value database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	// Placeholders are instruction texts treated as "not filled in".
	Placeholders []string `yaml:"placeholders"`

	// DownloadSuffix is appended to the uploaded file stem for the result.
	DownloadSuffix string `yaml:"download_suffix"`
}

// ServerConfig configures `sheetwright serve`.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
}

// DefaultPlaceholder is the text written into A1 of the starter template.
const DefaultPlaceholder = "Write your instruction for this sheet here"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sheetwright",
		Version: "0.4.0",

		Generation: GenerationConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.1,
			Timeout:     "120s",
			MaxRetries:  8,
			BaseDelay:   "1500ms",
			Factor:      1.8,
			MaxJitter:   "1s",
		},

		Sandbox: SandboxConfig{
			Backend:         SandboxEmbedded,
			Name:            "sheetwright",
			PythonBinary:    "python3",
			Packages:        []string{"pandas", "openpyxl"},
			InputName:       "input.xlsx",
			OutputName:      "output.xlsx",
			ScratchName:     "temp_input.xlsx",
			ScriptName:      "script.py",
			ForbiddenImport: "xlsxwriter",
			ExecTimeout:     "5m",
			InstallTimeout:  "10m",
			MaxOutputBytes:  4 * 1024 * 1024,
		},

		Usage: UsageConfig{
			DailyLimit: 20,
			StorageKey: "sheetwright.usage.v1",
			Timezone:   "UTC",
		},

		Storage: StorageConfig{
			DatabasePath: ".sheetwright/state.db",
		},

		Pipeline: PipelineConfig{
			Placeholders:   []string{DefaultPlaceholder},
			DownloadSuffix: "_edited",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},

		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
			MaxUploadBytes:  20 * 1024 * 1024,
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

	// Override with environment variables
	cfg.applyEnvOverrides()

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
	// GEMINI_API_KEY wins over the generic Google key
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Generation.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generation.APIKey = key
	}
	if model := os.Getenv("SHEETWRIGHT_MODEL"); model != "" {
		c.Generation.Model = model
	}

	if path := os.Getenv("SHEETWRIGHT_DB"); path != "" {
		c.Storage.DatabasePath = path
	}

	if raw := os.Getenv("SHEETWRIGHT_DAILY_LIMIT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			c.Usage.DailyLimit = n
		}
	}

	if backend := os.Getenv("SHEETWRIGHT_SANDBOX"); backend != "" {
		c.Sandbox.Backend = SandboxBackend(backend)
	}
}

// GetShutdownTimeout returns the HTTP shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetLocation resolves the usage timezone, falling back to UTC.
func (c *Config) GetLocation() *time.Location {
	if c.Usage.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Usage.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration.
// A missing API key is not reported here: it surfaces per run as a
// ConfigurationError so that read-only commands keep working without one.
func (c *Config) Validate() error {
	if c.Generation.Provider != "gemini" {
		return fmt.Errorf("invalid generation provider: %s (valid: [gemini])", c.Generation.Provider)
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must be >= 0")
	}
	if c.Usage.DailyLimit < 0 {
		return fmt.Errorf("usage.daily_limit must be >= 0")
	}
	if c.Usage.StorageKey == "" {
		return fmt.Errorf("usage.storage_key is required")
	}
	if _, err := time.LoadLocation(c.Usage.Timezone); c.Usage.Timezone != "" && err != nil {
		return fmt.Errorf("invalid usage.timezone %q: %w", c.Usage.Timezone, err)
	}
	return c.Sandbox.validate()
}
