// Task pipeline orchestration.
//
// Information Hiding:
// - Phase sequencing and transition validation hidden
// - Input binding between steps hidden
// - Cancellation checks between steps hidden

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/model"
	"github.com/richinex/scribe/tools"
)

// Orchestrator drives one task at a time through the pipeline. Runs share
// only the registry (read-only after setup) and the evaluator, so Run is
// safe to call concurrently.
type Orchestrator struct {
	registry  *tools.Registry
	reasoner  *Reasoner
	reflector *Reflector
	evaluator *eval.Evaluator
	logger    zerolog.Logger
}

// machine tracks the state of a single run.
type machine struct {
	task   string
	state  State
	trail  []Change
	err    error
	logger zerolog.Logger
}

func (m *machine) advance(to State) {
	if m.err != nil {
		return
	}
	if err := Transition(m.state, to); err != nil {
		m.err = err
		return
	}
	m.logger.Debug().Str("task", m.task).Str("from", string(m.state)).Str("to", string(to)).Msg("transition")
	m.trail = append(m.trail, Change{From: m.state, To: to, At: time.Now().UTC()})
	m.state = to
}

// Run executes the task text and always returns a result; failures are
// reported in it, never as a crash.
func (o *Orchestrator) Run(ctx context.Context, text string) Result {
	start := time.Now()
	task := model.NewTask(text)
	m := &machine{task: task.ID, state: StateReceived, logger: o.logger}
	res := Result{Task: task}

	m.advance(StatePlanning)
	res.Plan = o.reasoner.Plan(ctx, task, o.registry)

	m.advance(StateSelecting)
	failure := o.selectActions(res.Plan)

	if failure == nil {
		m.advance(StateExecuting)
		res.Records, failure = o.execute(ctx, task, res.Plan)
	}

	m.advance(StateReflecting)
	res.Reflection = o.reflector.Reflect(ctx, task, res.Plan, res.Records, failure)

	m.advance(StateEvaluating)
	snapshot, entry := o.evaluator.Record(context.WithoutCancel(ctx), task, res.Plan, res.Reflection, res.Records)
	res.Snapshot = snapshot
	res.Scores = entry.Scores

	if failure != nil {
		m.advance(StateFailed)
	} else {
		m.advance(StateDone)
	}
	if m.err != nil {
		// A disallowed transition is a bug in the pipeline itself.
		o.logger.Error().Err(m.err).Str("task", task.ID).Msg("pipeline state violation")
		if failure == nil {
			failure = m.err
		}
		m.state = StateFailed
	}

	res.State = m.state
	res.Trail = m.trail
	res.Failure = failure
	res.Duration = time.Since(start)

	ev := o.logger.Info()
	if failure != nil {
		ev = o.logger.Warn().Err(failure)
	}
	ev.Str("task", task.ID).Str("state", string(res.State)).Bool("success", res.Reflection.Success).
		Dur("duration", res.Duration).Msg("task finished")
	return res
}

// selectActions confirms every step maps to a registered action.
func (o *Orchestrator) selectActions(plan model.Plan) error {
	if unresolved := plan.UnresolvedSteps(); len(unresolved) > 0 {
		s := unresolved[0]
		return fmt.Errorf("%d of %d step(s) unresolved, first is step %d needing %q: %w",
			len(unresolved), len(plan.Steps), s.Index, s.Capability, model.ErrCapabilityUnresolved)
	}
	for _, s := range plan.Steps {
		if _, ok := o.registry.Lookup(s.Action); !ok {
			return fmt.Errorf("step %d: action %q: %w", s.Index, s.Action, model.ErrUnknownAction)
		}
	}
	return nil
}

// execute runs the steps in order. Step i+1 starts only after the record
// of step i is appended; cancellation is honoured between steps only.
func (o *Orchestrator) execute(ctx context.Context, task model.Task, plan model.Plan) ([]model.ExecutionRecord, error) {
	records := make([]model.ExecutionRecord, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return records, fmt.Errorf("before step %d: %w", step.Index, model.ErrCancelled)
		}

		spec, ok := o.registry.Lookup(step.Action)
		if !ok {
			return records, fmt.Errorf("step %d: action %q: %w", step.Index, step.Action, model.ErrUnknownAction)
		}
		inputs := bindInputs(spec, step, task, records)

		// Cancellation never interrupts a running action; the action's own
		// deadline still applies.
		rec := o.registry.Invoke(context.WithoutCancel(ctx), step.Action, inputs)
		rec.Step = step.Index
		rec.Capability = step.Capability
		records = append(records, rec)

		o.logger.Debug().Str("task", task.ID).Int("step", step.Index).Str("action", step.Action).
			Bool("ok", rec.Succeeded()).Msg("step executed")
	}
	return records, nil
}

// Registry returns the action registry.
func (o *Orchestrator) Registry() *tools.Registry {
	return o.registry
}

// Evaluator returns the shared evaluator.
func (o *Orchestrator) Evaluator() *eval.Evaluator {
	return o.evaluator
}
