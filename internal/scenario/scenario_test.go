package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
)

const fullDoc = `
name: auth rollout
trigger: scope_creep
task:
  id: auth-1
  name: Add login endpoint
  description: JWT login
  files: [auth/service.ts, auth/service.test.ts]
  estimated_time: 30
  dependencies: [db-1]
  acceptance_criteria: ["Service returns a token", "Tests cover expiry"]
context:
  elapsed_time: 10
  iteration: 1
  max_iterations: 10
  files_modified: [auth/service.ts]
  errors:
    - message: type mismatch
      file: auth/service.ts
  consecutive_failures: 1
thresholds:
  scope_creep_files: 2
  complexity_keywords: [spaghetti]
iterations:
  - files_touched: [auth/service.ts, auth/jwt.ts]
    success: true
    elapsed: 20
  - files_touched: [db/schema.ts]
    errors:
      - message: Circular dependency detected
    feedback: this is spaghetti
agent_request:
  reason: blocked on schema
  blockers: [schema, migrations]
  suggestion: split out db work
`

func TestParse_Full(t *testing.T) {
	s, err := Parse(strings.NewReader(fullDoc))
	require.NoError(t, err)

	assert.Equal(t, "auth rollout", s.Title())
	assert.Equal(t, "scope_creep", s.Trigger)

	task := s.BuildTask()
	assert.Equal(t, "auth-1", task.ID)
	assert.Equal(t, replan.TaskPending, task.Status)
	assert.Equal(t, []string{"db-1"}, task.Dependencies)
	assert.Len(t, task.AcceptanceCriteria, 2)

	ctx := s.BuildContext()
	assert.Equal(t, "auth-1", ctx.TaskID)
	assert.Equal(t, "Add login endpoint", ctx.TaskName)
	assert.InDelta(t, 30, ctx.EstimatedTime, 1e-9)
	assert.InDelta(t, 10, ctx.ElapsedTime, 1e-9)
	assert.Equal(t, task.Files, ctx.FilesExpected)
	require.Len(t, ctx.Errors, 1)
	assert.Equal(t, "auth/service.ts", ctx.Errors[0].File)

	steps := s.Steps()
	require.Len(t, steps, 2)
	assert.True(t, steps[0].Outcome.Success)
	assert.InDelta(t, 20, steps[0].Elapsed, 1e-9)
	assert.Negative(t, steps[1].Elapsed)
	assert.Equal(t, "this is spaghetti", steps[1].Outcome.Feedback)

	req, ok := s.Request()
	require.True(t, ok)
	assert.Equal(t, []string{"schema", "migrations"}, req.Blockers)
}

func TestBuildTask_DoesNotAlias(t *testing.T) {
	s, err := Parse(strings.NewReader(fullDoc))
	require.NoError(t, err)

	task := s.BuildTask()
	task.Files[0] = "changed"
	assert.Equal(t, "auth/service.ts", s.Task.Files[0])
}

func TestApplyThresholds(t *testing.T) {
	s, err := Parse(strings.NewReader(fullDoc))
	require.NoError(t, err)

	th, err := s.ApplyThresholds(replan.DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, 2, th.ScopeCreepFiles)
	assert.Equal(t, []string{"spaghetti"}, th.ComplexityKeywords)
	assert.InDelta(t, 1.5, th.TimeExceededRatio, 1e-9, "unset override keeps base")

	t.Run("no overrides returns base", func(t *testing.T) {
		plain := &Scenario{Task: TaskSpec{ID: "x", Name: "x"}}
		th, err := plain.ApplyThresholds(replan.DefaultThresholds())
		require.NoError(t, err)
		assert.Equal(t, replan.DefaultThresholds(), th)
	})

	t.Run("invalid base is rejected", func(t *testing.T) {
		plain := &Scenario{Task: TaskSpec{ID: "x", Name: "x"}}
		base := replan.DefaultThresholds()
		base.ScopeCreepFiles = 0
		_, err := plain.ApplyThresholds(base)
		assert.ErrorIs(t, err, errors.ErrInvalidThresholds)
	})
}

func TestRequest_Absent(t *testing.T) {
	s, err := Parse(strings.NewReader("task: {id: a, name: b}\n"))
	require.NoError(t, err)
	_, ok := s.Request()
	assert.False(t, ok)
	assert.Empty(t, s.Steps())
	assert.Equal(t, "b", s.Title())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing task id", "task: {name: x}\n", "task.id"},
		{"negative estimate", "task: {id: a, name: b, estimated_time: -1}\n", "task.estimated_time"},
		{"blank file", "task: {id: a, name: b, files: [\"\"]}\n", "task.files[0]"},
		{"error without message", "task: {id: a, name: b}\ncontext:\n  errors:\n    - file: x.go\n", "context.errors[0].message"},
		{"negative elapsed step", "task: {id: a, name: b}\niterations:\n  - elapsed: -3\n", "iterations[0].elapsed"},
		{"iterations ratio above one", "task: {id: a, name: b}\nthresholds: {iterations_ratio: 2}\n", "thresholds.iterations_ratio"},
		{"unknown trigger", "task: {id: a, name: b}\ntrigger: boredom\n", "trigger"},
		{"agent request without reason", "task: {id: a, name: b}\nagent_request: {blockers: [x]}\n", "agent_request.reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidScenario)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
			assert.Contains(t, err.Error(), "field="+tt.field)
		})
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("task: {id: a, name: b, owner: me}\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidScenario)
	assert.Contains(t, err.Error(), "owner")
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, errors.ErrInvalidScenario)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDoc), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "auth-1", s.Task.ID)

	missing := filepath.Join(dir, "missing.yaml")
	_, err = Load(missing)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsUserFacing(err))
	assert.Contains(t, err.Error(), "scenario '"+missing+"' not found")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("task: {name: x}\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
	assert.ErrorIs(t, err, errors.ErrInvalidScenario)
}
