package events

import "context"

// Hook represents a handler that can be executed when an event occurs.
type Hook interface {
	Execute(ctx context.Context, event Event) error
	Type() string
	ID() string
}

// HookConfig configures hook execution.
type HookConfig struct {
	Timeout     string `yaml:"timeout"`      // default: "30s"
	Concurrency int    `yaml:"concurrency"`  // default: 10
	StdioFormat string `yaml:"stdio_format"` // "json", "env", or ""
}

// DefaultHookConfig returns a configuration with sensible defaults.
func DefaultHookConfig() HookConfig {
	return HookConfig{
		Timeout:     "30s",
		Concurrency: 10,
		StdioFormat: "",
	}
}
