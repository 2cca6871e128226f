package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/replan/internal/config"
	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
	"github.com/Iron-Ham/replan/internal/replan/split"
	"github.com/Iron-Ham/replan/internal/scenario"
)

// session is one scenario loaded against the current configuration.
type session struct {
	*app
	path string
	sc   *scenario.Scenario
	task replan.Task
	// base is the configured thresholds before scenario overrides.
	base replan.TriggerThresholds
}

// addScenarioFlag registers the -f flag shared by scenario commands.
func addScenarioFlag(c *cobra.Command, target *string) {
	c.Flags().StringVarP(target, "file", "f", "", "scenario YAML file")
	_ = c.MarkFlagRequired("file")
}

// openSession loads the configuration and scenario and wires the engine.
// Scenario threshold overrides are applied on top of the configuration.
func openSession(path string) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewValidationError("invalid configuration").WithCause(err)
	}
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	base := cfg.Replan.Thresholds.Clone()
	th, err := sc.ApplyThresholds(base)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	cfg.Replan.Thresholds = th

	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	return &session{app: a, path: path, sc: sc, task: sc.BuildTask(), base: base}, nil
}

// reloadScenario swaps in a freshly loaded scenario, keeping the engine.
func (s *session) reloadScenario() error {
	sc, err := scenario.Load(s.path)
	if err != nil {
		return err
	}
	th, err := sc.ApplyThresholds(s.base)
	if err != nil {
		return err
	}
	if err := s.engine.SetThresholds(th); err != nil {
		return err
	}
	if sc.Task.ID != s.task.ID {
		s.engine.StopMonitoring(s.task.ID)
	}
	s.sc = sc
	s.task = sc.BuildTask()
	return nil
}

// reloadConfig applies new configured thresholds under the scenario's
// overrides.
func (s *session) reloadConfig(cfg *config.Config) error {
	th, err := s.sc.ApplyThresholds(cfg.Replan.Thresholds)
	if err != nil {
		return err
	}
	if err := s.engine.SetThresholds(th); err != nil {
		return err
	}
	s.base = cfg.Replan.Thresholds.Clone()
	return nil
}

// step is one line of a replay transcript.
type step struct {
	Iteration int                   `json:"iteration"`
	Decision  replan.ReplanDecision `json:"decision"`
}

// transcript is the outcome of feeding a scenario through the engine.
type transcript struct {
	TaskID   string                `json:"task_id"`
	Steps    []step                `json:"steps"`
	Decision replan.ReplanDecision `json:"decision"`
	Result   *replan.ReplanResult  `json:"result,omitempty"`
	Order    [][]string            `json:"execution_order,omitempty"`
}

// replay starts monitoring the scenario task, checks the initial context,
// then feeds iterations until a decision calls for replanning. If nothing
// fires and the scenario carries an agent request, the request is handled
// last. With execute set, a positive decision is acted on.
func (s *session) replay(ctx context.Context, progress io.Writer, execute bool) transcript {
	id := s.task.ID
	s.engine.StartMonitoring(id, s.sc.BuildContext())

	out := transcript{TaskID: id}
	record := func(d replan.ReplanDecision) {
		c, _ := s.engine.Context(id)
		out.Steps = append(out.Steps, step{Iteration: c.Iteration, Decision: d})
		out.Decision = d
		if progress != nil {
			renderStep(progress, c.Iteration, d)
		}
	}

	record(s.engine.CheckReplanningNeeded(id))
	for _, st := range s.sc.Steps() {
		if out.Decision.ShouldReplan {
			break
		}
		s.engine.RecordIteration(id, st.Outcome, st.Elapsed)
		record(s.engine.CheckReplanningNeeded(id))
	}
	if req, ok := s.sc.Request(); ok && !out.Decision.ShouldReplan {
		record(s.engine.HandleAgentRequest(id, req))
	}

	if execute && out.Decision.ShouldReplan && out.Decision.Reason != nil {
		task := s.task.Clone()
		res := s.engine.Replan(ctx, &task, *out.Decision.Reason)
		out.Result = &res
		if len(res.NewTasks) > 0 {
			order, err := split.ExecutionOrder(res.NewTasks)
			if err != nil {
				s.logger.Warn("failed to order subtasks", "error", err)
			}
			out.Order = order
		}
	}
	return out
}

func renderStep(w io.Writer, iteration int, d replan.ReplanDecision) {
	trigger := "-"
	if d.Reason != nil {
		trigger = d.Reason.Trigger.String()
	}
	fmt.Fprintf(w, "  iteration %-3d %-10s %-22s %s\n",
		iteration,
		actionStyle(d.SuggestedAction).Render(d.SuggestedAction.String()),
		trigger,
		mutedStyle.Render(fmt.Sprintf("%.2f", d.Confidence)))
}

func (r transcript) render(w io.Writer) {
	renderDecision(w, r.TaskID, r.Decision)
	if r.Result != nil {
		renderResult(w, *r.Result)
	}
	if len(r.Order) > 0 {
		renderOrder(w, r.Order)
	}
}
