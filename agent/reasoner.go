// Task planning.
//
// Information Hiding:
// - Prompt construction and reply parsing hidden
// - Capability matching heuristic hidden

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
	"github.com/richinex/scribe/tools"
)

// Catalog is the read side of the action registry the reasoner plans
// against.
type Catalog interface {
	FindCandidates(capability string) []tools.ActionSpec
	Tags() []string
	Description() string
}

const planSystemPrompt = `You are a planning agent with strong reasoning capabilities.
Break the task into the smallest ordered list of steps that completes it.
Each step needs exactly one capability. Choose it from this vocabulary:
%s

If no listed capability fits a step, name the capability it would need anyway.
If the task is a plain question that needs no action, return an empty "steps" list.
Produce content before any step that sends or publishes it.
Only fill "inputs" with values stated in the task; leave the rest out.

Available actions:
%s

Respond in JSON format:
{
  "rationale": "why these steps, in this order",
  "steps": [
    {"description": "what the step does", "capability": "one capability", "tags": ["optional hints"], "inputs": {}}
  ]
}`

type planReply struct {
	Rationale string      `json:"rationale"`
	Steps     []stepReply `json:"steps"`
}

type stepReply struct {
	Description string         `json:"description"`
	Capability  string         `json:"capability"`
	Tags        []string       `json:"tags"`
	Inputs      map[string]any `json:"inputs"`
}

// Reasoner turns a task into a plan. It holds no per-task state.
type Reasoner struct {
	completer llm.Completer
	config    Config
	logger    zerolog.Logger
}

// NewReasoner creates a reasoner. A nil completer always plans the single
// fallback step.
func NewReasoner(completer llm.Completer, cfg Config, logger zerolog.Logger) *Reasoner {
	return &Reasoner{completer: completer, config: cfg.withDefaults(), logger: logger}
}

// Plan decomposes the task and maps every step to an action. It never
// fails: an unusable model reply falls back to one generic step, and steps
// no action can serve are kept and marked unresolved.
func (r *Reasoner) Plan(ctx context.Context, task model.Task, catalog Catalog) model.Plan {
	reply, err := r.decompose(ctx, task, catalog)
	if errors.Is(err, errNoSteps) && len(catalog.FindCandidates(DirectCapability)) > 0 {
		reply = planReply{
			Rationale: reply.Rationale,
			Steps:     []stepReply{{Description: task.Text, Capability: DirectCapability}},
		}
		err = nil
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("task", task.ID).Msg("planning fell back to a single step")
		reply = planReply{
			Rationale: "No usable plan from the model; answering the task directly.",
			Steps:     []stepReply{{Description: task.Text, Capability: r.config.FallbackCapability}},
		}
	}
	if len(reply.Steps) > r.config.MaxSteps {
		r.logger.Warn().Int("steps", len(reply.Steps)).Int("max", r.config.MaxSteps).Msg("truncating plan")
		reply.Steps = reply.Steps[:r.config.MaxSteps]
	}

	plan := model.Plan{Steps: make([]model.Step, 0, len(reply.Steps))}
	mapping := make([]string, 0, len(reply.Steps))
	for i, s := range reply.Steps {
		step := model.Step{
			Index:       i + 1,
			Description: strings.TrimSpace(s.Description),
			Capability:  normalizeTag(s.Capability),
			Tags:        normalizeTags(s.Tags),
			Inputs:      s.Inputs,
		}
		if step.Description == "" {
			step.Description = task.Text
		}
		if step.Capability == "" {
			step.Capability = r.config.FallbackCapability
		}

		spec, overlap, ok := selectAction(step, catalog.FindCandidates(step.Capability))
		if ok {
			step.Action = spec.Name
			mapping = append(mapping, fmt.Sprintf("step %d (%s) -> %s, %d matching tag(s)", step.Index, step.Capability, spec.Name, overlap))
		} else {
			step.Unresolved = true
			mapping = append(mapping, fmt.Sprintf("step %d (%s) -> unresolved, no action provides it", step.Index, step.Capability))
		}
		plan.Steps = append(plan.Steps, step)
	}

	rationale := strings.TrimSpace(reply.Rationale)
	if rationale == "" {
		rationale = "Plan derived from the task text."
	}
	plan.Rationale = rationale + "\n" + strings.Join(mapping, "\n")
	plan.EstimatedTools = model.ToolSet(plan.Steps)

	r.logger.Debug().Str("task", task.ID).Int("steps", len(plan.Steps)).Int("unresolved", len(plan.UnresolvedSteps())).Msg("planned")
	return plan
}

func (r *Reasoner) decompose(ctx context.Context, task model.Task, catalog Catalog) (planReply, error) {
	if r.completer == nil {
		return planReply{}, fmt.Errorf("no language model configured")
	}
	prompt := llm.Prompt{
		System: fmt.Sprintf(planSystemPrompt, strings.Join(catalog.Tags(), ", "), catalog.Description()),
		User:   "Task: " + task.Text,
	}
	reply, err := llm.CompleteJSON[planReply](ctx, r.completer, prompt)
	if err != nil {
		return planReply{}, err
	}
	if len(reply.Steps) == 0 {
		return reply, errNoSteps
	}
	return reply, nil
}

var errNoSteps = errors.New("model returned a plan without steps")

// selectAction picks the candidate sharing the most tags with the step's
// capability and hints. Candidates arrive in registration order, so the
// strict comparison keeps the earlier one on ties.
func selectAction(step model.Step, candidates []tools.ActionSpec) (tools.ActionSpec, int, bool) {
	wanted := make(map[string]struct{}, len(step.Tags)+1)
	wanted[step.Capability] = struct{}{}
	for _, t := range step.Tags {
		wanted[t] = struct{}{}
	}

	var best tools.ActionSpec
	bestScore := 0
	for _, c := range candidates {
		score := 0
		for _, t := range c.Tags {
			if _, ok := wanted[t]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore, bestScore > 0
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if t = normalizeTag(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
