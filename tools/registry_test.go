package tools

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/richinex/scribe/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoSpec(name string, tags ...string) ActionSpec {
	return ActionSpec{
		Name:        name,
		Description: "echo " + name,
		Tags:        tags,
		InputSchema: Object([]string{"text"}, map[string]any{
			"text":  Prop("string", "Text to echo", "minLength", 1),
			"times": Prop("integer", "Repetitions", "default", 1, "minimum", 1),
		}),
	}
}

var echo = HandlerFunc(func(_ context.Context, inputs map[string]any) (Output, error) {
	return Output{Text: inputs["text"].(string)}, nil
})

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("echo", "say"), echo))

	err := r.Register(echoSpec("echo", "other"), echo)
	require.ErrorIs(t, err, model.ErrDuplicateAction)
	assert.Equal(t, 1, r.Len())

	spec, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, []string{"say"}, spec.Tags)
}

func TestRegisterRejectsBadSpecs(t *testing.T) {
	r := NewRegistry()

	require.ErrorIs(t, r.Register(ActionSpec{}, echo), model.ErrConfiguration)
	require.ErrorIs(t, r.Register(ActionSpec{Name: "nil"}, nil), model.ErrConfiguration)

	bad := ActionSpec{Name: "bad", InputSchema: map[string]any{"type": 42}}
	require.ErrorIs(t, r.Register(bad, echo), model.ErrConfiguration)
	assert.Zero(t, r.Len())
}

func TestFindCandidatesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("b", "search", "retrieve"), echo))
	require.NoError(t, r.Register(echoSpec("a", "query"), echo))
	require.NoError(t, r.Register(echoSpec("c", "search"), echo))

	var names []string
	for _, s := range r.FindCandidates("search") {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"b", "c"}, names)
	assert.Empty(t, r.FindCandidates("summarize"))
	assert.Equal(t, []string{"b", "a", "c"}, r.Names())
	assert.Equal(t, []string{"search", "retrieve", "query"}, r.Tags())
}

func TestLookupReturnsCopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("echo", "say"), echo))

	spec, _ := r.Lookup("echo")
	spec.Tags[0] = "mutated"

	again, _ := r.Lookup("echo")
	assert.Equal(t, []string{"say"}, again.Tags)
}

func TestDescriptionListsParameters(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("echo", "say", "repeat"), echo))

	d := r.Description()
	assert.Contains(t, d, "Action: echo")
	assert.Contains(t, d, "Tags: say, repeat")
	assert.Contains(t, d, "  - text (string): Text to echo [required]")
	assert.Contains(t, d, "  - times (integer): Repetitions [optional]")
}

func TestInvokeSuccessFillsDefaults(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("echo", "say"), echo))

	rec := r.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, rec.Error)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, "hi", rec.Output)
	assert.Equal(t, 1, rec.Inputs["times"])
	assert.Equal(t, []string{"say"}, rec.Tags)
	assert.False(t, rec.StartedAt.IsZero())
}

func TestInvokeUnknownAction(t *testing.T) {
	r := NewRegistry()
	rec := r.Invoke(context.Background(), "missing", nil)
	require.ErrorIs(t, rec.Error, model.ErrUnknownAction)
	assert.Equal(t, "UnknownAction", model.Kind(rec.Error))
}

func TestInvokeValidationNeverCallsHandler(t *testing.T) {
	var calls atomic.Int32
	h := HandlerFunc(func(context.Context, map[string]any) (Output, error) {
		calls.Add(1)
		return Output{}, nil
	})
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("echo", "say"), h))

	cases := map[string]map[string]any{
		"missing required": {},
		"wrong type":       {"text": 3},
		"unknown property": {"text": "x", "loud": true},
		"below minimum":    {"text": "x", "times": 0},
	}
	for name, inputs := range cases {
		t.Run(name, func(t *testing.T) {
			rec := r.Invoke(context.Background(), "echo", inputs)
			require.ErrorIs(t, rec.Error, model.ErrValidation)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestInvokeTimeoutRecord(t *testing.T) {
	r := NewRegistry()
	spec := echoSpec("slow", "wait")
	spec.Timeout = 50 * time.Millisecond
	require.NoError(t, r.Register(spec, HandlerFunc(func(ctx context.Context, _ map[string]any) (Output, error) {
		<-ctx.Done()
		return Output{}, ctx.Err()
	})))

	start := time.Now()
	rec := r.Invoke(context.Background(), "slow", map[string]any{"text": "x"})
	require.ErrorIs(t, rec.Error, model.ErrTimeout)
	assert.Equal(t, "Timeout", model.Kind(rec.Error))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvokeRecoversPanic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("boom", "fail"), HandlerFunc(func(context.Context, map[string]any) (Output, error) {
		panic("kaboom")
	})))

	rec := r.Invoke(context.Background(), "boom", map[string]any{"text": "x"})
	require.ErrorIs(t, rec.Error, model.ErrToolExecution)
	assert.Contains(t, rec.Error.Error(), "kaboom")
}

func TestInvokeCancelledContext(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec("wait", "wait"), HandlerFunc(func(ctx context.Context, _ map[string]any) (Output, error) {
		<-ctx.Done()
		return Output{}, ctx.Err()
	})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := r.Invoke(ctx, "wait", map[string]any{"text": "x"})
	require.ErrorIs(t, rec.Error, model.ErrCancelled)
}

func TestRetriesOnlyWithoutSideEffects(t *testing.T) {
	flaky := func(failures int32, calls *atomic.Int32) Handler {
		return HandlerFunc(func(context.Context, map[string]any) (Output, error) {
			if calls.Add(1) <= failures {
				return Output{}, errors.New("upstream unavailable")
			}
			return Output{Text: "ok"}, nil
		})
	}

	t.Run("read only retries", func(t *testing.T) {
		var calls atomic.Int32
		r := NewRegistry()
		require.NoError(t, r.Register(echoSpec("read", "query"), flaky(2, &calls)))

		rec := r.Invoke(context.Background(), "read", map[string]any{"text": "x"})
		require.NoError(t, rec.Error)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("side effecting runs once", func(t *testing.T) {
		var calls atomic.Int32
		r := NewRegistry()
		spec := echoSpec("write", "send")
		spec.SideEffecting = true
		require.NoError(t, r.Register(spec, flaky(2, &calls)))

		rec := r.Invoke(context.Background(), "write", map[string]any{"text": "x"})
		require.ErrorIs(t, rec.Error, model.ErrToolExecution)
		assert.True(t, rec.SideEffecting)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("validation errors are final", func(t *testing.T) {
		var calls atomic.Int32
		r := NewRegistry()
		require.NoError(t, r.Register(echoSpec("strict", "query"), HandlerFunc(func(context.Context, map[string]any) (Output, error) {
			calls.Add(1)
			return Output{}, model.ErrValidation
		})))

		rec := r.Invoke(context.Background(), "strict", map[string]any{"text": "x"})
		require.ErrorIs(t, rec.Error, model.ErrValidation)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(1))
	assert.Equal(t, 400*time.Millisecond, calculateBackoff(2))
	assert.Equal(t, 5*time.Second, calculateBackoff(10))
}

func TestDecodeWeakTypes(t *testing.T) {
	var in searchInput
	require.NoError(t, Decode(map[string]any{"query": "go", "n_results": float64(4)}, &in))
	assert.Equal(t, searchInput{Query: "go", NResults: 4}, in)
}
