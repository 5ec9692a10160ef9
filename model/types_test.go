package model

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanUnresolvedSteps(t *testing.T) {
	t.Parallel()

	plan := Plan{Steps: []Step{
		{Index: 0, Capability: "newsletter", Action: "generate_newsletter"},
		{Index: 1, Capability: "fax", Unresolved: true},
	}}

	assert.True(t, plan.Partial())
	assert.Equal(t, 1, plan.Resolved())
	require.Len(t, plan.UnresolvedSteps(), 1)
	assert.Equal(t, "fax", plan.UnresolvedSteps()[0].Capability)
}

func TestToolSetSortedAndDeduplicated(t *testing.T) {
	t.Parallel()

	steps := []Step{
		{Action: "send_email"},
		{Action: "generate_newsletter"},
		{Action: "send_email"},
		{Unresolved: true},
	}
	assert.Equal(t, []string{"generate_newsletter", "send_email"}, ToolSet(steps))
}

func TestExecutionRecordMarshalIncludesErrorKind(t *testing.T) {
	t.Parallel()

	rec := ExecutionRecord{
		Action:   "send_email",
		Error:    fmt.Errorf("smtp: %w", ErrTimeout),
		Duration: 1500 * time.Millisecond,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "Timeout", decoded["error_kind"])
	assert.Equal(t, "smtp: timeout", decoded["error"])
	assert.EqualValues(t, 1500, decoded["duration_ms"])
}

func TestKindAndFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err   error
		kind  string
		fatal bool
	}{
		{nil, "", false},
		{fmt.Errorf("bad input: %w", ErrValidation), "ValidationError", false},
		{fmt.Errorf("index: %w", ErrDimensionMismatch), "DimensionMismatch", true},
		{fmt.Errorf("startup: %w", ErrConfiguration), "ConfigurationError", true},
		{fmt.Errorf("boom"), "ToolExecutionError", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Kind(tt.err))
		assert.Equal(t, tt.fatal, Fatal(tt.err))
	}
}
