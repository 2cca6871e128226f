package replan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/replan/internal/errors"
)

func TestTriggerKind_Priority(t *testing.T) {
	tests := []struct {
		kind TriggerKind
		want int
	}{
		{TriggerBlockingIssue, 100},
		{TriggerAgentRequest, 90},
		{TriggerScopeCreep, 70},
		{TriggerComplexityDiscovered, 60},
		{TriggerDependencyDiscovered, 50},
		{TriggerTimeExceeded, 40},
		{TriggerIterationsHigh, 30},
		{TriggerKind("bogus"), 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Priority())
		})
	}
}

func TestEvaluators_EveryKindHasPriority(t *testing.T) {
	for _, e := range Evaluators() {
		assert.True(t, e.Kind().IsValid(), "evaluator %d reports kind %q with no priority", e, e.Kind())
	}
}

func TestTimeExceeded(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name      string
		estimated float64
		elapsed   float64
		triggered bool
	}{
		{"within budget", 10, 12, false},
		{"exactly at limit", 10, 15, false},
		{"over limit", 10, 20, true},
		{"zero estimate never fires", 0, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvalTimeExceeded.Evaluate(ExecutionContext{EstimatedTime: tt.estimated, ElapsedTime: tt.elapsed}, th)
			assert.Equal(t, TriggerTimeExceeded, res.Trigger)
			assert.Equal(t, tt.triggered, res.Triggered)
			assert.NotEmpty(t, res.Details)
			if tt.triggered {
				assert.Greater(t, res.Confidence, 0.5)
				assert.Less(t, res.Confidence, 1.0)
			} else {
				assert.Zero(t, res.Confidence)
			}
		})
	}
}

func TestTimeExceeded_ConfidenceGrowsWithOverage(t *testing.T) {
	th := DefaultThresholds()
	low := EvalTimeExceeded.Evaluate(ExecutionContext{EstimatedTime: 10, ElapsedTime: 16}, th)
	high := EvalTimeExceeded.Evaluate(ExecutionContext{EstimatedTime: 10, ElapsedTime: 30}, th)
	huge := EvalTimeExceeded.Evaluate(ExecutionContext{EstimatedTime: 10, ElapsedTime: 10000}, th)

	assert.Less(t, low.Confidence, high.Confidence)
	assert.Less(t, huge.Confidence, 1.0)
}

func TestIterationsHigh(t *testing.T) {
	th := DefaultThresholds()

	res := EvalIterationsHigh.Evaluate(ExecutionContext{Iteration: 4, MaxIterations: 10}, th)
	assert.False(t, res.Triggered, "0.4 is not above 0.4")

	res = EvalIterationsHigh.Evaluate(ExecutionContext{Iteration: 5, MaxIterations: 10}, th)
	assert.True(t, res.Triggered)
	assert.Equal(t, TriggerIterationsHigh, res.Trigger)
	assert.InDelta(t, 0.5, res.Metrics["iteration_ratio"], 1e-9)

	res = EvalIterationsHigh.Evaluate(ExecutionContext{Iteration: 5, MaxIterations: 0}, th)
	assert.False(t, res.Triggered)
}

func TestScopeCreep(t *testing.T) {
	th := DefaultThresholds()
	ctx := ExecutionContext{
		FilesExpected: []string{"a.go", "b.go"},
		FilesModified: []string{"a.go", "c.go", "d.go"},
	}

	res := EvalScopeCreep.Evaluate(ctx, th)
	assert.False(t, res.Triggered)

	ctx.FilesModified = append(ctx.FilesModified, "e.go", "e.go")
	res = EvalScopeCreep.Evaluate(ctx, th)
	assert.True(t, res.Triggered)
	assert.Contains(t, res.Details, "c.go, d.go, e.go")
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
}

func TestConsecutiveFailures(t *testing.T) {
	th := DefaultThresholds()

	res := EvalConsecutiveFailures.Evaluate(ExecutionContext{ConsecutiveFailures: 4}, th)
	assert.False(t, res.Triggered)

	res = EvalConsecutiveFailures.Evaluate(ExecutionContext{
		ConsecutiveFailures: 5,
		Errors:              []ErrorEntry{{Message: "build failed"}},
	}, th)
	assert.True(t, res.Triggered)
	assert.Equal(t, TriggerBlockingIssue, res.Trigger)
	assert.Contains(t, res.Details, "build failed")
}

func TestComplexity(t *testing.T) {
	th := DefaultThresholds()

	t.Run("nothing to scan", func(t *testing.T) {
		res := EvalComplexity.Evaluate(ExecutionContext{}, th)
		assert.False(t, res.Triggered)
	})

	t.Run("implicit pattern in error", func(t *testing.T) {
		res := EvalComplexity.Evaluate(ExecutionContext{
			Errors: []ErrorEntry{{Message: "Circular dependency detected"}},
		}, th)
		require.True(t, res.Triggered)
		assert.InDelta(t, 0.6, res.Confidence, 1e-9)
		assert.Contains(t, res.Details, "circular dependency")
	})

	t.Run("keyword in error only gets no feedback bonus", func(t *testing.T) {
		res := EvalComplexity.Evaluate(ExecutionContext{
			Errors: []ErrorEntry{{Message: "this needs a REDESIGN"}},
		}, th)
		require.True(t, res.Triggered)
		assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	})

	t.Run("keyword in feedback gets bonus", func(t *testing.T) {
		res := EvalComplexity.Evaluate(ExecutionContext{
			AgentFeedback: "The auth module needs a redesign",
		}, th)
		require.True(t, res.Triggered)
		assert.InDelta(t, 0.75, res.Confidence, 1e-9)
	})

	t.Run("confidence caps", func(t *testing.T) {
		res := EvalComplexity.Evaluate(ExecutionContext{
			AgentFeedback: "refactor and redesign the architecture; breaking change; legacy code with tight coupling and technical debt",
		}, th)
		require.True(t, res.Triggered)
		assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	})

	t.Run("custom keywords", func(t *testing.T) {
		custom := th.Clone()
		custom.ComplexityKeywords = []string{"monorepo"}
		res := EvalComplexity.Evaluate(ExecutionContext{AgentFeedback: "Monorepo tooling"}, custom)
		assert.True(t, res.Triggered)

		res = EvalComplexity.Evaluate(ExecutionContext{AgentFeedback: "needs a redesign"}, custom)
		assert.False(t, res.Triggered)
	})
}

func TestEvaluateAll_OrderAndPurity(t *testing.T) {
	ctx := ExecutionContext{
		EstimatedTime: 10,
		ElapsedTime:   20,
		FilesModified: []string{"x.go"},
	}
	before := ctx.Clone()

	results := EvaluateAll(ctx, DefaultThresholds())
	require.Len(t, results, len(Evaluators()))
	for i, e := range Evaluators() {
		assert.Equal(t, e.Kind(), results[i].Trigger)
	}
	assert.Equal(t, before, ctx)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.IterationsRatio = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultThresholds()
	bad.ScopeCreepFiles = 0
	err := bad.Validate()
	assert.ErrorIs(t, err, errors.ErrInvalidThresholds)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "field=scope_creep_files")
}
