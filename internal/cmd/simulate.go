package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a scenario's iterations through the monitor",
	Long: `Simulate starts monitoring the scenario's task, feeds each iteration
outcome to the monitor, and checks for replanning after every iteration.
On the first decision that calls for replanning, the suggested action is
executed (split, rescope, or escalate) unless --dry-run is set.`,
	RunE: runSimulate,
}

var (
	simulateFile   string // Scenario path
	simulateDryRun bool   // Do not act on the decision
	simulateJSON   bool   // Output as JSON
)

func init() {
	addScenarioFlag(simulateCmd, &simulateFile)
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "Report the decision without executing it")
	simulateCmd.Flags().BoolVar(&simulateJSON, "json", false, "Output the transcript as JSON")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	s, err := openSession(simulateFile)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	if simulateJSON {
		t := s.replay(cmd.Context(), nil, !simulateDryRun)
		s.engine.StopMonitoring(t.TaskID)
		return writeJSON(out, t)
	}

	heading(out, "SIMULATE "+s.sc.Title())
	t := s.replay(cmd.Context(), out, !simulateDryRun)
	s.engine.StopMonitoring(t.TaskID)
	fmt.Fprintln(out)

	t.render(out)
	return s.renderMetrics(cmd)
}
