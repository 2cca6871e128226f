package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/replan/internal/replan"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a scenario's execution context once",
	Long: `Evaluate runs every trigger against the scenario's initial execution
context and prints the resulting decision. Iterations in the scenario are
ignored; use simulate to replay them.

If the scenario has an agent_request, it is handled as an explicit replan
request from the agent.`,
	RunE: runEvaluate,
}

var (
	evaluateFile string // Scenario path
	evaluateJSON bool   // Output as JSON
)

func init() {
	addScenarioFlag(evaluateCmd, &evaluateFile)
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Output the decision as JSON")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	s, err := openSession(evaluateFile)
	if err != nil {
		return err
	}
	defer s.close()

	id := s.task.ID
	s.engine.StartMonitoring(id, s.sc.BuildContext())
	defer s.engine.StopMonitoring(id)

	var d replan.ReplanDecision
	if req, ok := s.sc.Request(); ok {
		d = s.engine.HandleAgentRequest(id, req)
	} else {
		d = s.engine.CheckReplanningNeeded(id)
	}

	out := cmd.OutOrStdout()
	if evaluateJSON {
		return writeJSON(out, d)
	}
	renderDecision(out, id, d)
	return s.renderMetrics(cmd)
}

// renderMetrics prints gathered metrics when metrics are enabled.
func (a *app) renderMetrics(cmd *cobra.Command) error {
	samples, err := a.metricSamples()
	if err != nil {
		return err
	}
	renderMetricSamples(cmd.OutOrStdout(), samples)
	return nil
}
