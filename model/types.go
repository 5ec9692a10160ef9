// Package model provides domain types shared across packages.
//
// Tasks, plans, execution records and reflections flow from the agent into
// the evaluator; none of them are mutated once handed on.
package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is the immutable input of one agent run.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTask creates a task with a fresh ID.
func NewTask(text string) Task {
	return Task{
		ID:        uuid.NewString(),
		Text:      strings.TrimSpace(text),
		CreatedAt: time.Now().UTC(),
	}
}

// Step is one intent of a plan.
type Step struct {
	Index       int            `json:"index"`
	Description string         `json:"description"`
	Capability  string         `json:"capability"`
	Tags        []string       `json:"tags,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Action      string         `json:"action,omitempty"`
	Unresolved  bool           `json:"unresolved,omitempty"`
}

// Plan is the ordered decomposition of a task.
type Plan struct {
	Steps          []Step   `json:"steps"`
	Rationale      string   `json:"rationale"`
	EstimatedTools []string `json:"estimated_tools"`
}

// UnresolvedSteps returns the steps no action could be mapped to.
func (p Plan) UnresolvedSteps() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Unresolved {
			out = append(out, s)
		}
	}
	return out
}

// Partial reports whether at least one step is unresolved.
func (p Plan) Partial() bool {
	return len(p.UnresolvedSteps()) > 0
}

// Resolved returns the number of steps mapped to an action.
func (p Plan) Resolved() int {
	return len(p.Steps) - len(p.UnresolvedSteps())
}

// ToolSet builds the sorted, de-duplicated action names of resolved steps.
func ToolSet(steps []Step) []string {
	seen := make(map[string]struct{})
	for _, s := range steps {
		if s.Unresolved || s.Action == "" {
			continue
		}
		seen[s.Action] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SideEffect describes something an action changed outside the process.
type SideEffect struct {
	Kind   string `json:"kind"`   // email, file
	Target string `json:"target"` // recipient, path
	Ref    string `json:"ref,omitempty"`
}

// Message is an outgoing email.
type Message struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	HTML      bool   `json:"is_html"`
}

// ExecutionRecord is the outcome of one action invocation.
// Success is determined by whether Error is nil.
type ExecutionRecord struct {
	Action        string         `json:"action"`
	Step          int            `json:"step"`
	Capability    string         `json:"capability"`
	Tags          []string       `json:"tags"`
	SideEffecting bool           `json:"side_effecting"`
	Inputs        map[string]any `json:"inputs"`
	Output        string         `json:"output"`
	Data          any            `json:"data,omitempty"`
	Error         error          `json:"-"`
	Duration      time.Duration  `json:"-"`
	StartedAt     time.Time      `json:"started_at"`
	SideEffects   []SideEffect   `json:"side_effects,omitempty"`
}

// Succeeded reports whether the invocation produced no error.
func (r ExecutionRecord) Succeeded() bool {
	return r.Error == nil
}

// MatchesCapability reports whether the action's tags contain the step's
// required capability.
func (r ExecutionRecord) MatchesCapability() bool {
	for _, t := range r.Tags {
		if t == r.Capability {
			return true
		}
	}
	return false
}

// MarshalJSON renders the error as its message and taxonomy kind.
func (r ExecutionRecord) MarshalJSON() ([]byte, error) {
	type recordAlias ExecutionRecord
	aux := struct {
		recordAlias
		DurationMs int64  `json:"duration_ms"`
		Success    bool   `json:"success"`
		Error      string `json:"error,omitempty"`
		ErrorKind  string `json:"error_kind,omitempty"`
	}{
		recordAlias: recordAlias(r),
		DurationMs:  r.Duration.Milliseconds(),
		Success:     r.Error == nil,
	}
	if r.Error != nil {
		aux.Error = r.Error.Error()
		aux.ErrorKind = Kind(r.Error)
	}
	return json.Marshal(aux)
}

// Reflection is the post-execution critique of a task.
type Reflection struct {
	Success     bool     `json:"success"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Alternative string   `json:"suggested_alternative,omitempty"`
	Analysis    string   `json:"analysis,omitempty"`
	NextSteps   []string `json:"next_steps,omitempty"`
}
