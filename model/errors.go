package model

import (
	"context"
	"errors"
)

// Error taxonomy. Only ErrDimensionMismatch and ErrConfiguration may abort
// the process; everything else is captured into a task's own trail.
var (
	ErrValidation           = errors.New("validation error")
	ErrCapabilityUnresolved = errors.New("capability unresolved")
	ErrToolExecution        = errors.New("tool execution error")
	ErrTimeout              = errors.New("timeout")
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrConfiguration        = errors.New("configuration error")

	ErrDuplicateAction = errors.New("duplicate action")
	ErrUnknownAction   = errors.New("unknown action")
	ErrCancelled       = errors.New("task cancelled")
)

// Kind returns the taxonomy name of err, or "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrCapabilityUnresolved):
		return "CapabilityUnresolved"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, ErrDimensionMismatch):
		return "DimensionMismatch"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrDuplicateAction):
		return "DuplicateAction"
	case errors.Is(err, ErrUnknownAction):
		return "UnknownAction"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "Cancelled"
	default:
		return "ToolExecutionError"
	}
}

// Fatal reports whether err is allowed to abort the whole process.
func Fatal(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) || errors.Is(err, ErrConfiguration)
}
