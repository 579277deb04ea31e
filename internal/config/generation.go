package config

import "time"

// GenerationConfig configures the script generator and its retry policy.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"` // optional endpoint override
	Temperature float32 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`

	// Retry policy: delay(n) = BaseDelay * Factor^n + U[0, MaxJitter)
	MaxRetries int     `yaml:"max_retries"`
	BaseDelay  string  `yaml:"base_delay"`
	Factor     float64 `yaml:"factor"`
	MaxJitter  string  `yaml:"max_jitter"`
}

// GetTimeout returns the per-request timeout as a duration.
func (g GenerationConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetBaseDelay returns the first backoff step.
func (g GenerationConfig) GetBaseDelay() time.Duration {
	d, err := time.ParseDuration(g.BaseDelay)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

// GetMaxJitter returns the upper bound of the random backoff component.
func (g GenerationConfig) GetMaxJitter() time.Duration {
	d, err := time.ParseDuration(g.MaxJitter)
	if err != nil {
		return time.Second
	}
	return d
}

// CheckAPIKey returns a ConfigurationError when no key is configured.
func (g GenerationConfig) CheckAPIKey() error {
	if g.APIKey == "" {
		return &ConfigurationError{
			Setting: "generation.api_key",
			Hint:    "set GEMINI_API_KEY (or GOOGLE_API_KEY) in the environment",
		}
	}
	return nil
}
