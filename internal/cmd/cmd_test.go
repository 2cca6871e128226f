package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/replan/internal/config"
	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
)

const quietConfig = `
logging:
  enabled: false
`

// Scenario A: 20 of 10 estimated minutes elapsed
const scenarioA = `
task:
  id: task-a
  name: Add caching
  files: [cache/store.go, cache/store_test.go]
  estimated_time: 10
context:
  elapsed_time: 20
  iteration: 1
  max_iterations: 10
`

// Scenario B: five failures and a circular dependency error
const scenarioB = `
task:
  id: task-b
  name: Wire modules
  files: [app/module.go]
  estimated_time: 30
context:
  elapsed_time: 5
  iteration: 1
  max_iterations: 20
  consecutive_failures: 5
  errors:
    - message: Circular dependency detected
`

// Scenario C: a service and its test
const scenarioC = `
task:
  id: task-c
  name: Auth service
  files: [auth/service.ts, auth/service.test.ts]
  estimated_time: 40
context:
  max_iterations: 10
`

// Scenario D: an explicit agent request on a quiet task
const scenarioD = `
task:
  id: task-d
  name: Payments
  files: [pay/charge.go, pay/refund.go]
  estimated_time: 60
context:
  elapsed_time: 5
  iteration: 1
  max_iterations: 10
agent_request:
  reason: the payment provider API changed
  blockers: [sdk upgrade, webhook format, sandbox keys]
  complexity_detail: "` + "The provider moved every endpoint to a versioned path and changed idempotency semantics, which touches charge and refund flows alike in ways that need review." + `"
  suggestion: upgrade the SDK in its own task first
`

const scopeCreepScenario = `
name: creeping auth
task:
  id: task-s
  name: Session handling
  files: [auth/service.go, auth/service_test.go, auth/types.go]
  estimated_time: 30
  acceptance_criteria: [Types are exported]
context:
  max_iterations: 10
iterations:
  - files_touched: [auth/service.go]
    success: true
    elapsed: 5
  - files_touched: [db/a.go, db/b.go, db/c.go]
    success: true
    elapsed: 12
`

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between tests.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// resetViper clears global viper state and restores the flag bindings.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	bindFlags()
	t.Cleanup(func() {
		viper.Reset()
		bindFlags()
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command against a fresh config file.
func run(t *testing.T, configYAML string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	cfgPath := writeFile(t, dir, "config.yaml", configYAML)

	resetViper(t)
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := Execute()
	return buf.String(), err
}

func scenarioFile(t *testing.T, content string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "scenario.yaml", content)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "replan", rootCmd.Use)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"evaluate", "split", "simulate", "watch", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestEvaluate_TimeExceededRescopes(t *testing.T) {
	out, err := run(t, quietConfig, "evaluate", "-f", scenarioFile(t, scenarioA))
	require.NoError(t, err)

	assert.Contains(t, out, "DECISION task-a")
	assert.Contains(t, out, "replan")
	assert.Contains(t, out, "rescope")
	assert.Contains(t, out, "time_exceeded")
	assert.Contains(t, out, "2.00", "time ratio is rendered")
}

func TestEvaluate_BlockingIssueEscalatesJSON(t *testing.T) {
	out, err := run(t, quietConfig, "evaluate", "--json", "-f", scenarioFile(t, scenarioB))
	require.NoError(t, err)

	var d replan.ReplanDecision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.True(t, d.ShouldReplan)
	assert.Equal(t, replan.ActionEscalate, d.SuggestedAction)
	require.NotNil(t, d.Reason)
	assert.Equal(t, replan.TriggerBlockingIssue, d.Reason.Trigger)

	var kinds []replan.TriggerKind
	for _, r := range d.Activated {
		kinds = append(kinds, r.Trigger)
	}
	assert.ElementsMatch(t, []replan.TriggerKind{replan.TriggerBlockingIssue, replan.TriggerComplexityDiscovered}, kinds)
}

func TestEvaluate_AgentRequest(t *testing.T) {
	out, err := run(t, quietConfig, "evaluate", "--json", "-f", scenarioFile(t, scenarioD))
	require.NoError(t, err)

	var d replan.ReplanDecision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	require.NotNil(t, d.Reason)
	assert.Equal(t, replan.TriggerAgentRequest, d.Reason.Trigger)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.Equal(t, replan.ActionSplit, d.SuggestedAction)
}

func TestEvaluate_ScenarioThresholdOverride(t *testing.T) {
	doc := scenarioA + "thresholds:\n  time_exceeded_ratio: 3\n"
	out, err := run(t, quietConfig, "evaluate", "--json", "-f", scenarioFile(t, doc))
	require.NoError(t, err)

	var d replan.ReplanDecision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.False(t, d.ShouldReplan)
	assert.Equal(t, replan.ActionContinue, d.SuggestedAction)
}

func TestEvaluate_Errors(t *testing.T) {
	t.Run("missing file flag", func(t *testing.T) {
		_, err := run(t, quietConfig, "evaluate")
		assert.Error(t, err)
	})

	t.Run("invalid scenario", func(t *testing.T) {
		_, err := run(t, quietConfig, "evaluate", "-f", scenarioFile(t, "task: {name: x}\n"))
		assert.ErrorIs(t, err, errors.ErrInvalidScenario)
	})

	t.Run("missing scenario file", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope.yaml")
		out, err := run(t, quietConfig, "evaluate", "-f", missing)
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
		assert.Contains(t, out, "scenario '"+missing+"' not found")
		assert.Contains(t, out, "check the path passed to --file")
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := run(t, "replan:\n  split:\n    max_depth: 0\n", "evaluate", "-f", scenarioFile(t, scenarioA))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestSplit_ServiceAndTest(t *testing.T) {
	out, err := run(t, quietConfig, "split", "--json", "--trigger", "scope_creep", "-f", scenarioFile(t, scenarioC))
	require.NoError(t, err)

	var res splitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, replan.TriggerScopeCreep, res.Trigger)
	require.Len(t, res.Subtasks, 2)

	var impl, test replan.Task
	for _, st := range res.Subtasks {
		require.Len(t, st.Files, 1)
		switch st.Files[0] {
		case "auth/service.ts":
			impl = st
		case "auth/service.test.ts":
			test = st
		}
	}
	require.NotEmpty(t, impl.ID)
	require.NotEmpty(t, test.ID)
	assert.Contains(t, test.Dependencies, impl.ID)
	assert.Equal(t, [][]string{{impl.ID}, {test.ID}}, res.Order)
}

func TestSplit_TextOutput(t *testing.T) {
	out, err := run(t, quietConfig, "split", "--trigger", "time_exceeded", "-f", scenarioFile(t, scenarioC))
	require.NoError(t, err)
	assert.Contains(t, out, "SPLIT task-c (time_exceeded)")
	assert.Contains(t, out, "2 subtasks")
	assert.Contains(t, out, "EXECUTION ORDER")
}

func TestSplit_TriggerResolution(t *testing.T) {
	t.Run("scenario trigger", func(t *testing.T) {
		doc := scenarioC + "trigger: complexity_discovered\n"
		out, err := run(t, quietConfig, "split", "--json", "-f", scenarioFile(t, doc))
		require.NoError(t, err)
		var res splitOutput
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, replan.TriggerComplexityDiscovered, res.Trigger)
	})

	t.Run("dominant trigger", func(t *testing.T) {
		out, err := run(t, quietConfig, "split", "--json", "-f", scenarioFile(t, scenarioA))
		require.NoError(t, err)
		var res splitOutput
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, replan.TriggerTimeExceeded, res.Trigger)
	})

	t.Run("nothing fired", func(t *testing.T) {
		_, err := run(t, quietConfig, "split", "-f", scenarioFile(t, scenarioC))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--trigger")
	})

	t.Run("unknown trigger", func(t *testing.T) {
		_, err := run(t, quietConfig, "split", "--trigger", "boredom", "-f", scenarioFile(t, scenarioC))
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestSplit_Unsplittable(t *testing.T) {
	_, err := run(t, quietConfig, "split", "--trigger", "scope_creep", "-f", scenarioFile(t, scenarioB))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsplittable)
	assert.Contains(t, err.Error(), "1 file")

	_, err = run(t, quietConfig, "split", "--trigger", "blocking_issue", "-f", scenarioFile(t, scenarioC))
	assert.ErrorIs(t, err, errors.ErrUnsplittable)
}

func TestSimulate_SplitsOnScopeCreep(t *testing.T) {
	out, err := run(t, quietConfig, "simulate", "--json", "-f", scenarioFile(t, scopeCreepScenario))
	require.NoError(t, err)

	var tr transcript
	require.NoError(t, json.Unmarshal([]byte(out), &tr))
	require.Len(t, tr.Steps, 3, "initial check plus one per iteration")
	assert.False(t, tr.Steps[1].Decision.ShouldReplan)
	assert.Equal(t, 2, tr.Steps[2].Iteration)

	require.NotNil(t, tr.Decision.Reason)
	assert.Equal(t, replan.TriggerScopeCreep, tr.Decision.Reason.Trigger)

	require.NotNil(t, tr.Result)
	assert.True(t, tr.Result.Success, tr.Result.Message)
	assert.Equal(t, replan.ActionSplit, tr.Result.Action)
	assert.Equal(t, replan.TaskSplit, tr.Result.OriginalTask.Status)
	assert.Len(t, tr.Result.NewTasks, 3)
	assert.GreaterOrEqual(t, len(tr.Order), 2)
}

func TestSimulate_StopsAtFirstReplan(t *testing.T) {
	doc := scopeCreepScenario + `  - files_touched: [never/seen.go]
    success: false
`
	out, err := run(t, quietConfig, "simulate", "--json", "--dry-run", "-f", scenarioFile(t, doc))
	require.NoError(t, err)

	var tr transcript
	require.NoError(t, json.Unmarshal([]byte(out), &tr))
	assert.Len(t, tr.Steps, 3)
	assert.True(t, tr.Decision.ShouldReplan)
	assert.Nil(t, tr.Result, "dry run does not execute")
}

func TestSimulate_AgentRequestAfterQuietIterations(t *testing.T) {
	out, err := run(t, quietConfig, "simulate", "--json", "--dry-run", "-f", scenarioFile(t, scenarioD))
	require.NoError(t, err)

	var tr transcript
	require.NoError(t, json.Unmarshal([]byte(out), &tr))
	require.Len(t, tr.Steps, 2)
	require.NotNil(t, tr.Decision.Reason)
	assert.Equal(t, replan.TriggerAgentRequest, tr.Decision.Reason.Trigger)
}

func TestSimulate_TextWithMetrics(t *testing.T) {
	cfg := quietConfig + "metrics:\n  enabled: true\n"
	out, err := run(t, cfg, "simulate", "-f", scenarioFile(t, scopeCreepScenario))
	require.NoError(t, err)

	assert.Contains(t, out, "SIMULATE creeping auth")
	assert.Contains(t, out, "iteration 2")
	assert.Contains(t, out, "RESULT task-s")
	assert.Contains(t, out, "SUBTASKS (3 subtasks)")
	assert.Contains(t, out, "METRICS")
	assert.Contains(t, out, "replan_decisions_total")
	assert.Contains(t, out, "replan_results_total")
}

func TestConfigCommands(t *testing.T) {
	t.Run("show", func(t *testing.T) {
		out, err := run(t, quietConfig, "config", "show")
		require.NoError(t, err)
		assert.Contains(t, out, "# Config file:")
		assert.Contains(t, out, "time_exceeded_ratio")
	})

	t.Run("validate ok", func(t *testing.T) {
		out, err := run(t, quietConfig, "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration is valid")
	})

	t.Run("validate reports every problem", func(t *testing.T) {
		out, err := run(t, "replan:\n  thresholds:\n    scope_creep_files: 0\nlogging:\n  level: loud\n", "config", "validate")
		require.Error(t, err)
		assert.Contains(t, out, "Configuration is invalid")
		assert.Contains(t, out, "2 validation errors")
	})

	t.Run("path", func(t *testing.T) {
		out, err := run(t, quietConfig, "config", "path")
		require.NoError(t, err)
		assert.Contains(t, out, filepath.Join("replan", "config.yaml"))
	})
}

func TestNewApp_NATSConnectFailure(t *testing.T) {
	orig := connectNATS
	t.Cleanup(func() { connectNATS = orig })
	connectNATS = func(url string) (*nats.Conn, error) {
		return nil, nats.ErrNoServers
	}

	cfg := config.Default()
	cfg.Logging.Enabled = false
	cfg.Events.NATS.Enabled = true

	_, err := newApp(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrNoServers)
	assert.Contains(t, err.Error(), "nats://127.0.0.1:4222")
}

func TestNewApp_Wiring(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Replan.Thresholds.ScopeCreepFiles = 7

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.close()

	assert.NotNil(t, a.registry)
	assert.Nil(t, a.sink)
	assert.Equal(t, 7, a.engine.Thresholds().ScopeCreepFiles)

	samples, err := a.metricSamples()
	require.NoError(t, err)
	var names []string
	for _, s := range samples {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "replan_monitored_tasks")
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchLoop_ReloadsConfigAndScenario(t *testing.T) {
	resetViper(t)
	config.SetDefaults()
	viper.Set("logging.enabled", false)

	path := scenarioFile(t, scenarioC)
	s, err := openSession(path)
	require.NoError(t, err)
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	reloads := make(chan reloadKind, 1)
	loadConfig := func() (*config.Config, error) {
		cfg := config.Default()
		cfg.Replan.Thresholds.ScopeCreepFiles = 1
		return cfg, nil
	}

	done := make(chan error, 1)
	go func() { done <- s.watchLoop(ctx, out, reloads, loadConfig) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "WATCH Auth service")
	}, 2*time.Second, 10*time.Millisecond)

	reloads <- reloadConfig
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "config changed, replaying")
	}, 2*time.Second, 10*time.Millisecond)

	// Rewrite the scenario with a modified file outside the expected set
	require.NoError(t, os.WriteFile(path, []byte(scenarioC+"  files_modified: [db/x.go]\n"), 0o644))
	reloads <- reloadScenario
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "scenario changed, replaying")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop")
	}

	assert.Equal(t, 1, s.engine.Thresholds().ScopeCreepFiles)
	assert.Equal(t, 1, s.base.ScopeCreepFiles)
	history := s.engine.DecisionHistory("task-c")
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.True(t, last.ShouldReplan, "one unexpected file crosses the reloaded threshold")
	assert.False(t, s.engine.IsMonitored("task-c"))
}

func TestWatchLoop_ReportsReloadFailures(t *testing.T) {
	resetViper(t)
	config.SetDefaults()
	viper.Set("logging.enabled", false)

	path := scenarioFile(t, scenarioC)
	s, err := openSession(path)
	require.NoError(t, err)
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	reloads := make(chan reloadKind, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.watchLoop(ctx, out, reloads, func() (*config.Config, error) { return config.Default(), nil })
	}()

	require.NoError(t, os.WriteFile(path, []byte("task: {name: broken}\n"), 0o644))
	reloads <- reloadScenario
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "reload failed")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "task-c", s.task.ID, "failed reload keeps the previous scenario")
}

func TestNotifyDoesNotBlock(t *testing.T) {
	reloads := make(chan reloadKind, 1)
	notify(reloads, reloadScenario)
	notify(reloads, reloadConfig)
	assert.Equal(t, reloadScenario, <-reloads)
	assert.Empty(t, reloads)
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		hint    string
		notHint string
	}{
		{
			name: "not found",
			err:  errors.NewNotFoundError("scenario", "a.yaml").WithCause(os.ErrNotExist),
			want: "scenario 'a.yaml' not found",
			hint: "check the path passed to --file",
		},
		{
			name:    "user facing",
			err:     errors.NewSplitError("task has 1 file", errors.ErrUnsplittable).WithTaskID("t-1"),
			want:    "split error [task=t-1]: task has 1 file",
			notHint: "--help",
		},
		{
			name: "usage mistake",
			err:  errors.New(`unknown flag: --bogus`),
			want: "unknown flag: --bogus",
			hint: "run 'replan --help' for usage",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportError(&buf, tt.err)
			out := buf.String()
			assert.Contains(t, out, "Error:")
			assert.Contains(t, out, tt.want)
			if tt.hint != "" {
				assert.Contains(t, out, tt.hint)
			}
			if tt.notHint != "" {
				assert.NotContains(t, out, tt.notHint)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REPLAN_REPLAN_HISTORY_LIMIT", "9")

	path := writeFile(t, dir, "config.yaml", "replan:\n  thresholds:\n    scope_creep_files: 7\n")
	cfg, err := loadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Replan.Thresholds.ScopeCreepFiles)
	assert.Equal(t, 9, cfg.Replan.History.Limit, "environment overrides apply")
	assert.Equal(t, config.Default().Replan.Split.MaxDepth, cfg.Replan.Split.MaxDepth, "defaults fill the rest")

	invalid := writeFile(t, dir, "invalid.yaml", "replan:\n  split:\n    max_depth: 0\n")
	_, err = loadConfigFile(invalid)
	assert.Error(t, err)

	_, err = loadConfigFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestLoadConfigFile_LeavesGlobalViperAlone(t *testing.T) {
	resetViper(t)
	viper.Set("replan.thresholds.scope_creep_files", 4)

	path := writeFile(t, t.TempDir(), "config.yaml", "replan:\n  thresholds:\n    scope_creep_files: 8\n")
	cfg, err := loadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Replan.Thresholds.ScopeCreepFiles)
	assert.Equal(t, 4, viper.GetInt("replan.thresholds.scope_creep_files"))
}
