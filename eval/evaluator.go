// Package eval scores completed tasks and keeps the rolling performance
// snapshot.
//
// History is append-only. The snapshot is always a fold over history, so it
// can be recomputed after a restart from the persisted entries.
package eval

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/model"
)

// DefaultExpectedSteps is the plan length that scores full efficiency.
const DefaultExpectedSteps = 3

// Weights are the fixed coefficients of the overall score.
type Weights struct {
	Success    float64 `json:"success" mapstructure:"success" yaml:"success"`
	Efficiency float64 `json:"efficiency" mapstructure:"efficiency" yaml:"efficiency"`
	ToolUsage  float64 `json:"tool_usage" mapstructure:"tool_usage" yaml:"tool_usage"`
	Reflection float64 `json:"reflection" mapstructure:"reflection" yaml:"reflection"`
}

// DefaultWeights returns the standard 0.4/0.2/0.2/0.2 weighting.
func DefaultWeights() Weights {
	return Weights{Success: 0.4, Efficiency: 0.2, ToolUsage: 0.2, Reflection: 0.2}
}

// Validate checks the weights are non-negative and sum to one.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Success, w.Efficiency, w.ToolUsage, w.Reflection} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("score weights must be non-negative: %w", model.ErrConfiguration)
		}
	}
	if sum := w.Success + w.Efficiency + w.ToolUsage + w.Reflection; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("score weights sum to %.4f, want 1: %w", sum, model.ErrConfiguration)
	}
	return nil
}

func (w Weights) combine(s Scores) float64 {
	return w.Success*s.Success + w.Efficiency*s.Efficiency +
		w.ToolUsage*s.ToolUsage + w.Reflection*s.ReflectionQuality
}

// Scores are the per-task scores, each in [0,1].
type Scores struct {
	Success           float64 `json:"success"`
	Efficiency        float64 `json:"efficiency"`
	ToolUsage         float64 `json:"tool_usage"`
	ReflectionQuality float64 `json:"reflection_quality"`
	Overall           float64 `json:"overall"`
}

// Entry is one immutable line of evaluation history.
type Entry struct {
	TaskID    string    `json:"task_id"`
	Task      string    `json:"task"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Steps     int       `json:"reasoning_steps"`
	ToolsUsed []string  `json:"tools_used"`
	Reflected bool      `json:"reflected"`
	Scores    Scores    `json:"scores"`
}

// Snapshot is the rolling aggregate over history.
type Snapshot struct {
	SuccessRate       float64 `json:"success_rate"`
	EfficiencyScore   float64 `json:"efficiency_score"`
	ToolUsageScore    float64 `json:"tool_usage_score"`
	ReflectionQuality float64 `json:"reflection_quality"`
	OverallScore      float64 `json:"overall_score"`
	NTasks            int     `json:"n_tasks"`
}

// HistoryStore persists history entries. Entries are loaded in append order.
type HistoryStore interface {
	AppendEntry(ctx context.Context, e Entry) error
	LoadEntries(ctx context.Context) ([]Entry, error)
}

// Evaluator owns the append-only history and the snapshot derived from it.
// It is safe for concurrent use.
type Evaluator struct {
	mu            sync.RWMutex
	weights       Weights
	expectedSteps int
	history       []Entry
	snapshot      Snapshot
	store         HistoryStore
	logger        zerolog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWeights overrides the overall-score weights.
func WithWeights(w Weights) Option {
	return func(e *Evaluator) { e.weights = w }
}

// WithExpectedSteps sets the efficiency baseline.
func WithExpectedSteps(n int) Option {
	return func(e *Evaluator) { e.expectedSteps = n }
}

// WithStore persists every recorded entry.
func WithStore(s HistoryStore) Option {
	return func(e *Evaluator) { e.store = s }
}

// WithLogger sets the evaluator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New creates an evaluator with empty history.
func New(opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		weights:       DefaultWeights(),
		expectedSteps: DefaultExpectedSteps,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	if e.expectedSteps <= 0 {
		return nil, fmt.Errorf("expected steps must be positive, got %d: %w", e.expectedSteps, model.ErrConfiguration)
	}
	return e, nil
}

// Score computes the scores of one task. It is pure.
func (e *Evaluator) Score(plan model.Plan, reflection model.Reflection, records []model.ExecutionRecord) Scores {
	s := Scores{
		Efficiency:        efficiency(len(plan.Steps), e.expectedSteps),
		ToolUsage:         toolUsage(records),
		ReflectionQuality: reflectionQuality(reflection),
	}
	if reflection.Success {
		s.Success = 1
	}
	s.Overall = e.weights.combine(s)
	return s
}

// Record scores a finished task, appends it to history and returns the new
// snapshot. It never fails: a persistence error is logged and the entry is
// still kept in memory.
func (e *Evaluator) Record(ctx context.Context, task model.Task, plan model.Plan, reflection model.Reflection, records []model.ExecutionRecord) (Snapshot, Entry) {
	entry := Entry{
		TaskID:    task.ID,
		Task:      task.Text,
		Timestamp: time.Now().UTC(),
		Success:   reflection.Success,
		Steps:     len(plan.Steps),
		ToolsUsed: toolsUsed(records),
		Reflected: reflected(reflection),
		Scores:    e.Score(plan, reflection, records),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store != nil {
		if err := e.store.AppendEntry(ctx, entry); err != nil {
			e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to persist evaluation entry")
		}
	}
	e.history = append(e.history, entry)
	e.snapshot = Fold(e.history, e.weights)

	e.logger.Debug().
		Str("task_id", task.ID).
		Float64("overall", entry.Scores.Overall).
		Int("n_tasks", e.snapshot.NTasks).
		Msg("recorded task")

	return e.snapshot, entry
}

// Restore replaces history with entries and recomputes the snapshot.
func (e *Evaluator) Restore(entries []Entry) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append([]Entry(nil), entries...)
	e.snapshot = Fold(e.history, e.weights)
	return e.snapshot
}

// Load restores history from the configured store. Without a store it is a
// no-op.
func (e *Evaluator) Load(ctx context.Context) (Snapshot, error) {
	if e.store == nil {
		return e.Snapshot(), nil
	}
	entries, err := e.store.LoadEntries(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load evaluation history: %w", err)
	}
	return e.Restore(entries), nil
}

// Snapshot returns the current snapshot.
func (e *Evaluator) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// History returns a copy of the history.
func (e *Evaluator) History() []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Entry(nil), e.history...)
}

// Weights returns the configured weights.
func (e *Evaluator) Weights() Weights {
	return e.weights
}

// Fold recomputes a snapshot from history. Each field is the mean of the
// per-entry score; overall is recombined with w.
func Fold(entries []Entry, w Weights) Snapshot {
	n := len(entries)
	if n == 0 {
		return Snapshot{}
	}
	var sum Scores
	for _, en := range entries {
		sum.Success += en.Scores.Success
		sum.Efficiency += en.Scores.Efficiency
		sum.ToolUsage += en.Scores.ToolUsage
		sum.ReflectionQuality += en.Scores.ReflectionQuality
	}
	mean := Scores{
		Success:           sum.Success / float64(n),
		Efficiency:        sum.Efficiency / float64(n),
		ToolUsage:         sum.ToolUsage / float64(n),
		ReflectionQuality: sum.ReflectionQuality / float64(n),
	}
	return Snapshot{
		SuccessRate:       mean.Success,
		EfficiencyScore:   mean.Efficiency,
		ToolUsageScore:    mean.ToolUsage,
		ReflectionQuality: mean.ReflectionQuality,
		OverallScore:      unit(w.combine(mean)),
		NTasks:            n,
	}
}

func efficiency(steps, expected int) float64 {
	if steps == 0 {
		return 1
	}
	return math.Min(1, float64(expected)/float64(steps))
}

func toolUsage(records []model.ExecutionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	matched := 0
	for _, r := range records {
		if r.MatchesCapability() {
			matched++
		}
	}
	return float64(matched) / float64(len(records))
}

func reflectionQuality(r model.Reflection) float64 {
	filled := 0
	if len(nonEmpty(r.Strengths)) > 0 {
		filled++
	}
	if len(nonEmpty(r.Weaknesses)) > 0 {
		filled++
	}
	if r.Alternative != "" {
		filled++
	}
	return float64(filled) / 3
}

func reflected(r model.Reflection) bool {
	return reflectionQuality(r) > 0 || r.Analysis != ""
}

func toolsUsed(records []model.ExecutionRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Action)
	}
	return out
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// unit clamps float noise so snapshot fields stay within [0,1].
func unit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
