// Orchestrator builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
	"github.com/richinex/scribe/tools"
)

// Builder provides fluent configuration for creating an Orchestrator.
// Usage: agent.NewBuilder(registry).Completer(c).Build()
type Builder struct {
	registry  *tools.Registry
	completer llm.Completer
	critic    Critic
	evaluator *eval.Evaluator
	config    Config
	logger    zerolog.Logger
}

// NewBuilder creates a builder around an action registry.
func NewBuilder(registry *tools.Registry) *Builder {
	return &Builder{
		registry: registry,
		config:   DefaultConfig(),
		logger:   zerolog.Nop(),
	}
}

// Completer sets the language model used for planning and, unless a critic
// is set, for reflection.
func (b *Builder) Completer(c llm.Completer) *Builder {
	b.completer = c
	return b
}

// Critic sets the reflection critic.
func (b *Builder) Critic(c Critic) *Builder {
	b.critic = c
	return b
}

// Evaluator sets the shared evaluator.
func (b *Builder) Evaluator(e *eval.Evaluator) *Builder {
	b.evaluator = e
	return b
}

// Config sets the orchestrator configuration.
func (b *Builder) Config(c Config) *Builder {
	b.config = c
	return b
}

// Logger sets the logger.
func (b *Builder) Logger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// Build creates the orchestrator. Without a critic, a completer implies the
// LLM critic and no completer implies the rule critic. Without an evaluator
// a fresh one with default weights is used.
func (b *Builder) Build() (*Orchestrator, error) {
	if b.registry == nil {
		return nil, fmt.Errorf("orchestrator needs an action registry: %w", model.ErrConfiguration)
	}

	critic := b.critic
	if critic == nil {
		if b.completer != nil {
			critic = NewLLMCritic(b.completer)
		} else {
			critic = RuleCritic{}
		}
	}

	evaluator := b.evaluator
	if evaluator == nil {
		var err error
		if evaluator, err = eval.New(eval.WithLogger(b.logger)); err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		registry:  b.registry,
		reasoner:  NewReasoner(b.completer, b.config, b.logger),
		reflector: NewReflector(critic, b.logger),
		evaluator: evaluator,
		logger:    b.logger,
	}, nil
}
