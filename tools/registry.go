// Package tools provides action management and registration.
//
// Information Hiding:
// - Action storage and lookup implementation hidden
// - Schema compilation hidden
// - Registration order kept for deterministic candidate ranking

package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/richinex/scribe/model"
)

type entry struct {
	spec    ActionSpec
	handler Handler
	schema  *gojsonschema.Schema
}

// Registry holds actions keyed by name, in registration order.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*entry
	order    []*entry
	executor *Executor
	logger   zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithExecutorConfig sets the deadline and retry policy for Invoke.
func WithExecutorConfig(cfg ExecutorConfig) RegistryOption {
	return func(r *Registry) { r.executor.config = cfg }
}

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
		r.executor.logger = l
	}
}

// NewRegistry creates a new empty action registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:   make(map[string]*entry),
		executor: NewExecutor(ExecutorConfig{}, zerolog.Nop()),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an action. A repeated name fails with ErrDuplicateAction and
// an uncompilable schema with ErrConfiguration.
func (r *Registry) Register(spec ActionSpec, h Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("action name is empty: %w", model.ErrConfiguration)
	}
	if h == nil {
		return fmt.Errorf("action %s has no handler: %w", spec.Name, model.ErrConfiguration)
	}
	schema, err := compileSchema(spec.InputSchema)
	if err != nil {
		return fmt.Errorf("action %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[spec.Name]; exists {
		return fmt.Errorf("action %q already registered: %w", spec.Name, model.ErrDuplicateAction)
	}
	e := &entry{spec: spec.clone(), handler: h, schema: schema}
	r.byName[spec.Name] = e
	r.order = append(r.order, e)
	return nil
}

// RegisterAction registers an Action under its own spec.
func (r *Registry) RegisterAction(a Action) error {
	return r.Register(a.Spec(), a)
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ActionSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok {
		return ActionSpec{}, false
	}
	return e.spec.clone(), true
}

// FindCandidates returns the specs tagged with capability, in registration
// order. Matching is exact tag membership.
func (r *Registry) FindCandidates(capability string) []ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ActionSpec
	for _, e := range r.order {
		if e.spec.HasTag(capability) {
			out = append(out, e.spec.clone())
		}
	}
	return out
}

// Specs returns every spec in registration order.
func (r *Registry) Specs() []ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ActionSpec, len(r.order))
	for i, e := range r.order {
		out[i] = e.spec.clone()
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	for i, e := range r.order {
		names[i] = e.spec.Name
	}
	return names
}

// Tags returns the capability vocabulary: every tag of every action, in
// first-seen order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var tags []string
	for _, e := range r.order {
		for _, t := range e.spec.Tags {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Description returns a formatted description of all actions for LLM prompts.
func (r *Registry) Description() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var descriptions []string
	for _, e := range r.order {
		var params []string
		required := requiredSet(e.spec.InputSchema)
		props, _ := e.spec.InputSchema["properties"].(map[string]any)
		for _, name := range sortedKeys(props) {
			prop, _ := props[name].(map[string]any)
			need := "optional"
			if required[name] {
				need = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%v): %v [%s]", name, prop["type"], prop["description"], need))
		}
		descriptions = append(descriptions, fmt.Sprintf(
			"Action: %s\nTags: %s\nDescription: %s\nParameters:\n%s",
			e.spec.Name, strings.Join(e.spec.Tags, ", "), e.spec.Description, strings.Join(params, "\n")))
	}
	return strings.Join(descriptions, "\n\n")
}

// Invoke validates inputs and runs the named action. It never returns an
// error: every failure is captured into the record.
func (r *Registry) Invoke(ctx context.Context, name string, inputs map[string]any) model.ExecutionRecord {
	start := time.Now()
	rec := model.ExecutionRecord{Action: name, Inputs: inputs, StartedAt: start.UTC()}

	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		rec.Error = fmt.Errorf("action %q is not registered: %w", name, model.ErrUnknownAction)
		return rec
	}

	rec.Tags = append([]string(nil), e.spec.Tags...)
	rec.SideEffecting = e.spec.SideEffecting
	rec.Inputs = withDefaults(e.spec.InputSchema, inputs)

	if err := validateInputs(e.schema, rec.Inputs); err != nil {
		rec.Error = fmt.Errorf("action %s: %w", name, err)
		rec.Duration = time.Since(start)
		r.logger.Warn().Str("action", name).Err(rec.Error).Msg("rejected inputs")
		return rec
	}

	out, err := r.executor.Run(ctx, e.spec, e.handler, rec.Inputs)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Error = err
		r.logger.Warn().Str("action", name).Dur("duration", rec.Duration).Err(err).Msg("action failed")
		return rec
	}

	rec.Output = out.Text
	rec.Data = out.Data
	rec.SideEffects = out.SideEffects
	r.logger.Info().Str("action", name).Dur("duration", rec.Duration).Msg("action completed")
	return rec
}

func requiredSet(schema map[string]any) map[string]bool {
	out := make(map[string]bool)
	switch req := schema["required"].(type) {
	case []string:
		for _, n := range req {
			out[n] = true
		}
	case []any:
		for _, n := range req {
			if s, ok := n.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}
