// Post-execution reflection.
//
// Information Hiding:
// - Success rule owned here, critique delegated to a Critic
// - LLM critique falls back to the rule critic

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
)

// Outcome is what a critic judges.
type Outcome struct {
	Task    model.Task
	Plan    model.Plan
	Records []model.ExecutionRecord
	Failure error
	Success bool
}

// Critic produces strengths, weaknesses and an alternative approach for an
// outcome. The reflector owns Success; critics cannot change it.
type Critic interface {
	Critique(ctx context.Context, o Outcome) (model.Reflection, error)
}

// Reflector computes success and delegates judgment to a critic.
type Reflector struct {
	critic   Critic
	fallback RuleCritic
	logger   zerolog.Logger
}

// NewReflector creates a reflector. A nil critic uses RuleCritic.
func NewReflector(critic Critic, logger zerolog.Logger) *Reflector {
	if critic == nil {
		critic = RuleCritic{}
	}
	return &Reflector{critic: critic, logger: logger}
}

// Reflect runs once per task, also when nothing executed.
func (r *Reflector) Reflect(ctx context.Context, task model.Task, plan model.Plan, records []model.ExecutionRecord, failure error) model.Reflection {
	o := Outcome{
		Task:    task,
		Plan:    plan,
		Records: records,
		Failure: failure,
		Success: Succeeded(records, failure),
	}

	ref, err := r.critic.Critique(ctx, o)
	if err != nil {
		r.logger.Warn().Err(err).Msg("critic failed, using rule critic")
		ref, _ = r.fallback.Critique(ctx, o)
	}
	ref.Success = o.Success
	return ref
}

// Succeeded is the success rule of a task: at least one record, no
// side-effecting record failed, and the pipeline itself did not fail.
func Succeeded(records []model.ExecutionRecord, failure error) bool {
	if failure != nil || len(records) == 0 {
		return false
	}
	for _, rec := range records {
		if rec.SideEffecting && rec.Error != nil {
			return false
		}
	}
	return true
}

// RuleCritic judges an outcome deterministically from its records.
type RuleCritic struct{}

// Critique lists what went right and wrong and proposes one alternative.
func (RuleCritic) Critique(_ context.Context, o Outcome) (model.Reflection, error) {
	var ref model.Reflection

	unresolved := o.Plan.UnresolvedSteps()
	if len(o.Plan.Steps) > 0 && len(unresolved) == 0 {
		ref.Strengths = append(ref.Strengths, fmt.Sprintf("Mapped all %d plan step(s) to registered actions", len(o.Plan.Steps)))
	}
	for _, s := range unresolved {
		ref.Weaknesses = append(ref.Weaknesses, fmt.Sprintf("Step %d needs capability %q, which no registered action provides", s.Index, s.Capability))
	}

	var failed []model.ExecutionRecord
	for _, rec := range o.Records {
		if rec.Succeeded() {
			ref.Strengths = append(ref.Strengths, fmt.Sprintf("%s completed step %d in %s", rec.Action, rec.Step, rec.Duration.Round(time.Millisecond)))
			continue
		}
		failed = append(failed, rec)
		ref.Weaknesses = append(ref.Weaknesses, fmt.Sprintf("%s failed on step %d with %s: %v", rec.Action, rec.Step, model.Kind(rec.Error), rec.Error))
	}

	switch {
	case errors.Is(o.Failure, model.ErrCancelled):
		ref.Weaknesses = append(ref.Weaknesses, "The task was cancelled before all steps ran")
	case o.Failure != nil && len(unresolved) == 0:
		ref.Weaknesses = append(ref.Weaknesses, "Pipeline failure: "+o.Failure.Error())
	case len(o.Records) == 0 && o.Failure == nil:
		ref.Weaknesses = append(ref.Weaknesses, "No action was executed")
	}

	ref.Alternative = alternative(o, unresolved, failed)
	ref.Analysis = analysis(o, failed)
	if ref.Alternative != "" {
		ref.NextSteps = []string{ref.Alternative}
	}
	return ref, nil
}

func alternative(o Outcome, unresolved []model.Step, failed []model.ExecutionRecord) string {
	if len(unresolved) > 0 {
		caps := make([]string, len(unresolved))
		for i, s := range unresolved {
			caps[i] = s.Capability
		}
		return fmt.Sprintf("Register an action tagged %s, or rephrase the task around the available capabilities", strings.Join(caps, ", "))
	}
	if errors.Is(o.Failure, model.ErrCancelled) {
		return "Run the task again without cancelling it"
	}
	for _, rec := range failed {
		switch {
		case errors.Is(rec.Error, model.ErrTimeout):
			return fmt.Sprintf("Raise the deadline of %s or narrow the request so it finishes in time", rec.Action)
		case errors.Is(rec.Error, model.ErrValidation):
			return fmt.Sprintf("State the inputs %s needs explicitly in the task", rec.Action)
		}
	}
	if len(failed) > 0 {
		return fmt.Sprintf("Retry %s once its backing service is available", failed[0].Action)
	}
	return ""
}

func analysis(o Outcome, failed []model.ExecutionRecord) string {
	verdict := "succeeded"
	if !o.Success {
		verdict = "did not succeed"
	}
	return fmt.Sprintf("The task %s: %d of %d step(s) executed, %d failed.",
		verdict, len(o.Records), len(o.Plan.Steps), len(failed))
}

const reflectSystemPrompt = `You are an AI agent capable of self-reflection.
Analyze the actions taken and their results. The task was %s.
Evaluate:
1. What was achieved?
2. What went well or what went wrong?
3. What could be improved for future tasks?
4. What different approach could have worked better?

Respond in JSON format:
{
  "analysis": "Your analysis of what happened and why",
  "strengths": ["What went well"],
  "weaknesses": ["What could improve"],
  "next_steps": ["Recommended next actions"],
  "suggested_alternative": "One alternative approach"
}`

// LLMCritic asks a language model for the critique.
type LLMCritic struct {
	completer llm.Completer
}

// NewLLMCritic creates a model-backed critic.
func NewLLMCritic(completer llm.Completer) *LLMCritic {
	return &LLMCritic{completer: completer}
}

// Critique sends the plan and records to the model.
func (c *LLMCritic) Critique(ctx context.Context, o Outcome) (model.Reflection, error) {
	verdict := "SUCCESSFUL"
	if !o.Success {
		verdict = "UNSUCCESSFUL"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nPlan:\n", o.Task.Text)
	for _, s := range o.Plan.Steps {
		action := s.Action
		if s.Unresolved {
			action = "unresolved"
		}
		fmt.Fprintf(&b, "%d. %s [%s -> %s]\n", s.Index, s.Description, s.Capability, action)
	}
	b.WriteString("\nResults:\n")
	if len(o.Records) == 0 {
		b.WriteString("No action was executed.\n")
	}
	for _, rec := range o.Records {
		if rec.Succeeded() {
			fmt.Fprintf(&b, "- %s: ok, output: %s\n", rec.Action, preview(rec.Output, 300))
		} else {
			fmt.Fprintf(&b, "- %s: %s: %v\n", rec.Action, model.Kind(rec.Error), rec.Error)
		}
	}
	if o.Failure != nil {
		fmt.Fprintf(&b, "\nPipeline failure: %v\n", o.Failure)
	}

	ref, err := llm.CompleteJSON[model.Reflection](ctx, c.completer, llm.Prompt{
		System: fmt.Sprintf(reflectSystemPrompt, verdict),
		User:   b.String(),
	})
	if err != nil {
		return model.Reflection{}, fmt.Errorf("critique: %w", err)
	}
	ref.Strengths = trimAll(ref.Strengths)
	ref.Weaknesses = trimAll(ref.Weaknesses)
	ref.NextSteps = trimAll(ref.NextSteps)
	ref.Alternative = strings.TrimSpace(ref.Alternative)
	if ref.Alternative == "" && len(ref.NextSteps) > 0 {
		ref.Alternative = ref.NextSteps[0]
	}
	return ref, nil
}

func trimAll(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
