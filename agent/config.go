// Agent configuration types.
//
// Information Hiding:
// - Default values hidden

package agent

import "strings"

// DefaultFallbackCapability is the capability of the single step planned
// when the model gives no usable plan.
const DefaultFallbackCapability = "query"

// DirectCapability is planned when the model decides the task needs no
// action at all.
const DirectCapability = "general"

// Config holds orchestrator configuration.
type Config struct {
	// FallbackCapability is used when planning falls back to one step.
	FallbackCapability string `mapstructure:"fallback_capability" yaml:"fallback_capability"`

	// MaxSteps caps the plan length; extra model steps are dropped.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		FallbackCapability: DefaultFallbackCapability,
		MaxSteps:           8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.FallbackCapability = strings.ToLower(strings.TrimSpace(c.FallbackCapability))
	if c.FallbackCapability == "" {
		c.FallbackCapability = d.FallbackCapability
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	return c
}
