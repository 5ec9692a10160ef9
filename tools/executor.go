// Action Executor with deadline, retry and panic isolation.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/model"
)

// Executor defaults.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

// ExecutorConfig holds action execution configuration.
// The zero value is safe: timeout defaults to 30s and attempts to 3.
type ExecutorConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

func (c ExecutorConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c ExecutorConfig) retries() int {
	if c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// Executor runs handlers under a deadline. Non-side-effecting actions are
// retried on retryable failures; side-effecting actions run exactly once.
type Executor struct {
	config ExecutorConfig
	logger zerolog.Logger
}

// NewExecutor creates a new executor with the given configuration.
func NewExecutor(config ExecutorConfig, logger zerolog.Logger) *Executor {
	return &Executor{config: config, logger: logger}
}

// Run executes handler for spec. The deadline (spec.Timeout, else the
// executor default) covers every attempt including backoff.
func (e *Executor) Run(ctx context.Context, spec ActionSpec, h Handler, inputs map[string]any) (Output, error) {
	deadline := spec.Timeout
	if deadline <= 0 {
		deadline = e.config.timeout()
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	attempts := e.config.retries()
	if spec.SideEffecting {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Output{}, e.contextError(ctx, spec, deadline)
			case <-time.After(calculateBackoff(attempt)):
			}
			e.logger.Debug().Str("action", spec.Name).Int("attempt", attempt+1).Err(lastErr).Msg("retrying action")
		}

		out, err := e.runOnce(ctx, spec, h, inputs, deadline)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !shouldRetry(err) {
			break
		}
	}
	return Output{}, lastErr
}

type outcome struct {
	out Output
	err error
}

// runOnce runs the handler in its own goroutine so that a handler ignoring
// its context cannot hold the caller past the deadline.
func (e *Executor) runOnce(ctx context.Context, spec ActionSpec, h Handler, inputs map[string]any, deadline time.Duration) (Output, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Str("action", spec.Name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("action panicked")
				done <- outcome{err: fmt.Errorf("action %s panicked: %v: %w", spec.Name, r, model.ErrToolExecution)}
			}
		}()
		out, err := h.Handle(ctx, inputs)
		done <- outcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.out, nil
		}
		if ctx.Err() != nil && errors.Is(res.err, ctx.Err()) {
			return Output{}, e.contextError(ctx, spec, deadline)
		}
		return Output{}, classify(spec.Name, res.err)
	case <-ctx.Done():
		return Output{}, e.contextError(ctx, spec, deadline)
	}
}

func (e *Executor) contextError(ctx context.Context, spec ActionSpec, deadline time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("action %s exceeded its %s deadline: %w", spec.Name, deadline, model.ErrTimeout)
	}
	return fmt.Errorf("action %s: %w", spec.Name, model.ErrCancelled)
}

// classify tags handler errors that carry no taxonomy kind as tool
// execution errors.
func classify(name string, err error) error {
	for _, known := range []error{model.ErrValidation, model.ErrTimeout, model.ErrToolExecution, model.ErrCancelled} {
		if errors.Is(err, known) {
			return fmt.Errorf("action %s: %w", name, err)
		}
	}
	return fmt.Errorf("action %s: %w: %w", name, model.ErrToolExecution, err)
}

// calculateBackoff returns the backoff duration for the given attempt.
func calculateBackoff(attempt int) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry determines if an error is retryable. Validation failures,
// timeouts and cancellations are final.
func shouldRetry(err error) bool {
	switch {
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrTimeout),
		errors.Is(err, model.ErrCancelled),
		errors.Is(err, model.ErrConfiguration):
		return false
	}
	var perm interface{ Permanent() bool }
	if errors.As(err, &perm) && perm.Permanent() {
		return false
	}
	return true
}
