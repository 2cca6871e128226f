// Package internal contains integration tests that verify the replanning
// packages work together: the monitor engine publishing on the event bus,
// the NATS sink forwarding those events, metrics, and the splitter.
package internal

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/replan/internal/event"
	"github.com/Iron-Ham/replan/internal/event/natsink"
	"github.com/Iron-Ham/replan/internal/replan"
	"github.com/Iron-Ham/replan/internal/replan/monitor"
	"github.com/Iron-Ham/replan/internal/replan/split"
)

// capturePublisher records every message a sink publishes.
type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *capturePublisher) snapshot() ([]string, [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...), append([][]byte(nil), p.payloads...)
}

// TestScopeCreepSplitsEndToEnd drives a task from monitoring start through
// a split, checking the event stream a remote observer would see.
func TestScopeCreepSplitsEndToEnd(t *testing.T) {
	bus := event.NewBus()
	pub := &capturePublisher{}
	sink := natsink.New(pub, natsink.WithSubjectPrefix("ci.replan"))
	sink.Attach(bus)

	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg, "")
	engine := monitor.NewEngine(
		monitor.WithBus(bus),
		monitor.WithMetrics(metrics),
		monitor.WithSplitter(split.New()),
	)

	task := replan.Task{
		ID:                 "auth-1",
		Name:               "Auth service",
		Files:              []string{"auth/service.ts", "auth/service.test.ts"},
		EstimatedTime:      40,
		AcceptanceCriteria: []string{"Service issues tokens", "Tests cover expiry"},
		Status:             replan.TaskInProgress,
	}
	engine.StartMonitoring(task.ID, replan.ExecutionContext{
		TaskName:      task.Name,
		EstimatedTime: float64(task.EstimatedTime),
		MaxIterations: 10,
		FilesExpected: task.Files,
	})

	engine.RecordIteration(task.ID, replan.IterationOutcome{
		FilesTouched: []string{"auth/service.ts", "db/users.ts", "db/sessions.ts", "api/routes.ts"},
		Success:      true,
	}, 10)

	decision := engine.CheckReplanningNeeded(task.ID)
	if !decision.ShouldReplan {
		t.Fatalf("expected replan, got %+v", decision)
	}
	if decision.Reason.Trigger != replan.TriggerScopeCreep {
		t.Fatalf("expected scope_creep, got %s", decision.Reason.Trigger)
	}
	if decision.SuggestedAction != replan.ActionSplit {
		t.Fatalf("expected split, got %s", decision.SuggestedAction)
	}

	result := engine.Replan(context.Background(), &task, *decision.Reason)
	if !result.Success {
		t.Fatalf("replan failed: %s", result.Message)
	}
	if task.Status != replan.TaskSplit {
		t.Errorf("task status = %s, want split", task.Status)
	}
	if len(result.NewTasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(result.NewTasks))
	}
	levels, err := split.ExecutionOrder(result.NewTasks)
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	if len(levels) != 2 {
		t.Errorf("expected implementation then tests, got %v", levels)
	}

	engine.StopMonitoring(task.ID)

	subjects, payloads := pub.snapshot()
	expected := []string{
		"ci.replan.monitoring.started",
		"ci.replan.trigger.activated",
		"ci.replan.decision.made",
		"ci.replan.replan.executed",
		"ci.replan.monitoring.stopped",
	}
	if strings.Join(subjects, ",") != strings.Join(expected, ",") {
		t.Errorf("subjects = %v, want %v", subjects, expected)
	}

	var env struct {
		Type string `json:"type"`
		Data struct {
			TaskID     string   `json:"task_id"`
			Action     string   `json:"action"`
			Success    bool     `json:"success"`
			NewTaskIDs []string `json:"new_task_ids"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payloads[3], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != event.TypeReplanExecuted || env.Data.Action != "split" || !env.Data.Success {
		t.Errorf("unexpected replan.executed envelope: %+v", env)
	}
	if len(env.Data.NewTaskIDs) != 2 {
		t.Errorf("NewTaskIDs = %v, want 2 ids", env.Data.NewTaskIDs)
	}

	if sink.Failures() != 0 {
		t.Errorf("sink failures = %d", sink.Failures())
	}
	gauge := `
# HELP replan_monitored_tasks Tasks currently under active monitoring.
# TYPE replan_monitored_tasks gauge
replan_monitored_tasks 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(gauge), "replan_monitored_tasks"); err != nil {
		t.Errorf("monitored_tasks after stop: %v", err)
	}
	n, err := testutil.GatherAndCount(reg, "replan_results_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("replan_results_total series = %d, want 1", n)
	}
}

// TestBlockingIssueEscalatesAcrossTasks checks that independent tasks are
// assessed concurrently and that a panicking observer does not disturb the
// engine or other subscribers.
func TestBlockingIssueEscalatesAcrossTasks(t *testing.T) {
	bus := event.NewBus()
	bus.Subscribe(event.TypeDecisionMade, func(e event.Event) {
		panic("observer bug")
	})

	var mu sync.Mutex
	decided := make(map[string]bool)
	bus.Subscribe(event.TypeDecisionMade, func(e event.Event) {
		d := e.(event.DecisionMadeEvent)
		mu.Lock()
		decided[d.TaskID] = d.ShouldReplan
		mu.Unlock()
	})

	engine := monitor.NewEngine(monitor.WithBus(bus), monitor.WithConcurrency(4))

	for i, id := range []string{"t-1", "t-2", "t-3", "t-4", "t-5", "t-6"} {
		ctx := replan.ExecutionContext{
			TaskName:      id,
			EstimatedTime: 30,
			ElapsedTime:   5,
			Iteration:     1,
			MaxIterations: 10,
		}
		if i%2 == 0 {
			ctx.ConsecutiveFailures = 5
			ctx.Errors = []replan.ErrorEntry{{Message: "Circular dependency detected"}}
		}
		engine.StartMonitoring(id, ctx)
	}

	decisions := engine.CheckAll()
	if len(decisions) != 6 {
		t.Fatalf("expected 6 decisions, got %d", len(decisions))
	}
	for id, d := range decisions {
		failing := id == "t-1" || id == "t-3" || id == "t-5"
		if d.ShouldReplan != failing {
			t.Errorf("%s: ShouldReplan = %v, want %v", id, d.ShouldReplan, failing)
		}
		if failing && d.SuggestedAction != replan.ActionEscalate {
			t.Errorf("%s: action = %s, want escalate", id, d.SuggestedAction)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(decided) != 6 {
		t.Errorf("observer saw %d decisions, want 6", len(decided))
	}
	if bus.RecoveredPanics() != 6 {
		t.Errorf("RecoveredPanics() = %d, want 6", bus.RecoveredPanics())
	}
}
