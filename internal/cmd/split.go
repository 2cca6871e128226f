package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
	"github.com/Iron-Ham/replan/internal/replan/split"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a scenario's task into subtasks",
	Long: `Split partitions the scenario's task into subtasks and prints them with
their dependencies and execution order.

The split strategy depends on the trigger:
  scope_creep, iterations_high  group files by role
  complexity_discovered         setup, implementation, tests
  time_exceeded                 even chunks with divided estimates

The trigger comes from --trigger, then the scenario's trigger key, then the
dominant trigger of evaluating the scenario.`,
	RunE: runSplit,
}

var (
	splitFile    string // Scenario path
	splitTrigger string // Trigger override
	splitJSON    bool   // Output as JSON
)

func init() {
	addScenarioFlag(splitCmd, &splitFile)
	splitCmd.Flags().StringVar(&splitTrigger, "trigger", "", "trigger to split for (e.g. scope_creep)")
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "Output subtasks as JSON")
	rootCmd.AddCommand(splitCmd)
}

// splitOutput is the JSON form of a split.
type splitOutput struct {
	Trigger  replan.TriggerKind `json:"trigger"`
	Subtasks []replan.Task      `json:"subtasks"`
	Order    [][]string         `json:"execution_order"`
}

func runSplit(cmd *cobra.Command, args []string) error {
	s, err := openSession(splitFile)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := s.sc.BuildContext()
	reason, err := s.splitReason(ctx)
	if err != nil {
		return err
	}

	if !s.splitter.CanSplit(s.task, reason) {
		return errors.NewSplitError(s.splitter.Explain(s.task, reason), errors.ErrUnsplittable).
			WithTaskID(s.task.ID).
			WithTrigger(reason.Trigger.String())
	}

	subtasks, err := s.splitter.Split(cmd.Context(), s.task, reason)
	if err != nil {
		return err
	}
	order, err := split.ExecutionOrder(subtasks)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if splitJSON {
		return writeJSON(out, splitOutput{Trigger: reason.Trigger, Subtasks: subtasks, Order: order})
	}
	heading(out, fmt.Sprintf("SPLIT %s (%s)", s.task.ID, reason.Trigger))
	field(out, "Task:", s.task.Name)
	field(out, "Files:", fmt.Sprintf("%d", len(s.task.Files)))
	field(out, "Estimate:", fmt.Sprintf("%d min", s.task.EstimatedTime))
	fmt.Fprintln(out)
	renderSubtasks(out, subtasks)
	renderOrder(out, order)
	return nil
}

// splitReason resolves the trigger to split for.
func (s *session) splitReason(ctx replan.ExecutionContext) (replan.ReplanReason, error) {
	reason := replan.ReplanReason{
		Details:    "split requested",
		Metrics:    replan.BuildMetrics(ctx),
		Confidence: 1,
	}

	switch {
	case splitTrigger != "":
		reason.Trigger = replan.TriggerKind(splitTrigger)
	case s.sc.Trigger != "":
		reason.Trigger = replan.TriggerKind(s.sc.Trigger)
	default:
		d := s.engine.EvaluateAllTriggers(ctx)
		if d.Reason == nil {
			return reason, errors.NewValidationError("no trigger fired; pass --trigger").
				WithField("trigger").
				WithCause(errors.ErrUnsplittable)
		}
		return *d.Reason, nil
	}

	if !reason.Trigger.IsValid() {
		return reason, errors.NewValidationError("unknown trigger").
			WithField("trigger").
			WithValue(reason.Trigger)
	}
	return reason, nil
}
