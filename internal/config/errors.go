package config

import "fmt"

// ConfigurationError reports a missing or unusable setting. It is surfaced
// to the user as a message, never as a crash.
type ConfigurationError struct {
	Setting string
	Hint    string
}

func (e *ConfigurationError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("configuration error: %s is not set", e.Setting)
	}
	return fmt.Sprintf("configuration error: %s is not set (%s)", e.Setting, e.Hint)
}
