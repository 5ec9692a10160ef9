// Package agent runs tasks through the plan, select, execute, reflect and
// evaluate pipeline.
//
// Contains the pipeline states, their allowed transitions and the result of
// a run.
package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/model"
)

// State is a phase of the task pipeline.
type State string

const (
	StateReceived   State = "RECEIVED"
	StatePlanning   State = "PLANNING"
	StateSelecting  State = "SELECTING"
	StateExecuting  State = "EXECUTING"
	StateReflecting State = "REFLECTING"
	StateEvaluating State = "EVALUATING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// IsTerminal reports whether the state ends a run.
func IsTerminal(s State) bool {
	return s == StateDone || s == StateFailed
}

var allowedTransitions = map[State]map[State]struct{}{
	StateReceived: {
		StatePlanning: {},
	},
	StatePlanning: {
		StateSelecting: {},
	},
	StateSelecting: {
		StateExecuting:  {},
		StateReflecting: {}, // Unresolved plan or cancellation.
	},
	StateExecuting: {
		StateReflecting: {},
	},
	StateReflecting: {
		StateEvaluating: {},
	},
	StateEvaluating: {
		StateDone:   {},
		StateFailed: {},
	},
}

// Transition validates a move between two states.
func Transition(from, to State) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("no transition out of %s", from)
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	return nil
}

// Change is one entry of a run's state trail.
type Change struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Result is everything a run produced. Records keep plan step order and
// are preserved on failure for diagnostics.
type Result struct {
	Task       model.Task              `json:"task"`
	Plan       model.Plan              `json:"plan"`
	Records    []model.ExecutionRecord `json:"records"`
	Reflection model.Reflection        `json:"reflection"`
	Snapshot   eval.Snapshot           `json:"snapshot"`
	Scores     eval.Scores             `json:"scores"`
	State      State                   `json:"state"`
	Trail      []Change                `json:"trail"`
	// Failure is the error that sent the run to FAILED.
	Failure  error         `json:"-"`
	Duration time.Duration `json:"-"`
}

// Failed reports whether the run ended in FAILED.
func (r Result) Failed() bool {
	return r.State == StateFailed
}

// Output returns the output of the last successful record.
func (r Result) Output() string {
	for i := len(r.Records) - 1; i >= 0; i-- {
		if r.Records[i].Succeeded() {
			return r.Records[i].Output
		}
	}
	return ""
}

// MarshalJSON renders the failure as its message and taxonomy kind.
func (r Result) MarshalJSON() ([]byte, error) {
	type resultAlias Result
	aux := struct {
		resultAlias
		DurationMs  int64  `json:"duration_ms"`
		Failure     string `json:"failure,omitempty"`
		FailureKind string `json:"failure_kind,omitempty"`
	}{
		resultAlias: resultAlias(r),
		DurationMs:  r.Duration.Milliseconds(),
	}
	if r.Failure != nil {
		aux.Failure = r.Failure.Error()
		aux.FailureKind = model.Kind(r.Failure)
	}
	return json.Marshal(aux)
}
