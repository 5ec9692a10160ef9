// Package tools provides the capability-tagged action registry.
//
// Information Hiding:
// - Action execution details hidden behind Handler
// - Input schemas compiled and enforced by the Registry
// - Timeout, retry and panic isolation hidden in the Executor
// - Every failure is captured into an ExecutionRecord, never propagated
package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/richinex/scribe/model"
)

// ActionSpec is the static registration metadata of an action. It is
// immutable once registered.
type ActionSpec struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Tags          []string       `json:"capability_tags"`
	InputSchema   map[string]any `json:"input_schema"`
	SideEffecting bool           `json:"side_effecting"`
	Timeout       time.Duration  `json:"-"`
}

// HasTag reports whether tag is one of the spec's capability tags.
func (s ActionSpec) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// String returns a one-line summary of the spec.
func (s ActionSpec) String() string {
	return fmt.Sprintf("%s [%s]: %s", s.Name, strings.Join(s.Tags, ", "), s.Description)
}

func (s ActionSpec) clone() ActionSpec {
	s.Tags = slices.Clone(s.Tags)
	return s
}

// Output is what a handler produces on success.
type Output struct {
	Text        string
	Data        any
	SideEffects []model.SideEffect
}

// Handler runs an action with schema-validated inputs.
type Handler interface {
	Handle(ctx context.Context, inputs map[string]any) (Output, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inputs map[string]any) (Output, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	return f(ctx, inputs)
}

// Action bundles a spec with its handler.
type Action interface {
	Handler
	Spec() ActionSpec
}

// Object builds a JSON schema for an object with the given properties.
func Object(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Prop builds a JSON schema property.
func Prop(typ, description string, extra ...any) map[string]any {
	p := map[string]any{"type": typ, "description": description}
	for i := 0; i+1 < len(extra); i += 2 {
		if key, ok := extra[i].(string); ok {
			p[key] = extra[i+1]
		}
	}
	return p
}
