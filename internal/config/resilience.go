package config

import "github.com/intervox-ai/intervox/internal/resilience"

// RetryConfig converts the entry into a [resilience.RetryConfig] named name.
// Zero fields keep the resilience package defaults.
func (e RetryEntry) RetryConfig(name string) resilience.RetryConfig {
	return resilience.RetryConfig{
		Name:           name,
		MaxAttempts:    e.MaxAttempts,
		InitialBackoff: e.InitialBackoff.Std(),
		MaxBackoff:     e.MaxBackoff.Std(),
		AttemptTimeout: e.AttemptTimeout.Std(),
	}
}

// BreakerConfig converts the entry into a [resilience.BreakerConfig] named
// name.
func (e BreakerEntry) BreakerConfig(name string) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:         name,
		MaxFailures:  e.MaxFailures,
		ResetTimeout: e.ResetTimeout.Std(),
	}
}
