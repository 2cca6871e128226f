package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
	"github.com/Iron-Ham/replan/internal/util"
)

var (
	// Terminal palette
	primaryColor   = lipgloss.Color("#A78BFA") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#F87171") // Red
	mutedColor     = lipgloss.Color("#9CA3AF") // Gray

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(14)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	okStyle    = lipgloss.NewStyle().Foreground(secondaryColor)
	warnStyle  = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	ruleStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// detailWidth bounds trigger detail text in tables.
const detailWidth = 72

// fileListLimit bounds how many files a subtask row lists.
const fileListLimit = 3

func actionStyle(a replan.Action) lipgloss.Style {
	switch a {
	case replan.ActionContinue:
		return okStyle
	case replan.ActionEscalate, replan.ActionAbort:
		return errStyle
	default:
		return warnStyle
	}
}

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, ruleStyle.Render(strings.Repeat("─", 50)))
}

func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label), value)
}

// reportError prints a command failure. Errors built from the errors
// package already say what went wrong; anything else is usually a flag
// mistake caught by cobra, so it gets a pointer to the usage text.
func reportError(w io.Writer, err error) {
	style := errStyle
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		style = warnStyle
	}
	fmt.Fprintln(w, style.Render("Error:"), err.Error())
	switch {
	case errors.IsNotFound(err):
		fmt.Fprintln(w, mutedStyle.Render("  check the path passed to --file"))
	case !errors.IsUserFacing(err):
		fmt.Fprintln(w, mutedStyle.Render("  run 'replan --help' for usage"))
	}
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderDecision(w io.Writer, taskID string, d replan.ReplanDecision) {
	heading(w, "DECISION "+taskID)

	verdict := okStyle.Render("continue")
	if d.ShouldReplan {
		verdict = warnStyle.Render("replan")
	}
	field(w, "Verdict:", verdict)
	field(w, "Action:", actionStyle(d.SuggestedAction).Render(d.SuggestedAction.String()))
	field(w, "Confidence:", util.Percent(d.Confidence))

	if d.Reason != nil {
		field(w, "Trigger:", d.Reason.Trigger.String())
		field(w, "Details:", util.TruncateANSI(util.FirstLine(d.Reason.Details), detailWidth))
		renderMetrics(w, d.Reason.Metrics)
	}

	if len(d.Activated) > 1 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("Activated triggers:"))
		for _, r := range d.Activated {
			fmt.Fprintf(w, "  %-22s %5s  %s\n",
				r.Trigger,
				util.Percent(r.Confidence),
				util.TruncateANSI(util.FirstLine(r.Details), detailWidth))
		}
	}
	fmt.Fprintln(w)
}

func renderMetrics(w io.Writer, m replan.ReplanMetrics) {
	field(w, "Time ratio:", fmt.Sprintf("%.2f", m.TimeRatio))
	field(w, "Iterations:", fmt.Sprintf("%.2f", m.IterationRatio))
	field(w, "Files:", fmt.Sprintf("%d expected, %d modified, %d unexpected",
		m.FilesExpected, m.FilesModified, m.ScopeCreepCount))
	field(w, "Errors:", fmt.Sprintf("%d total, %d consecutive failures",
		m.ErrorCount, m.ConsecutiveFailures))
}

func renderSubtasks(w io.Writer, subtasks []replan.Task) {
	heading(w, "SUBTASKS ("+util.Plural(len(subtasks), "subtask")+")")
	for _, t := range subtasks {
		fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(t.ID), t.Name)
		field(w, "  Files:", util.JoinLimited(t.Files, fileListLimit))
		field(w, "  Estimate:", fmt.Sprintf("%d min", t.EstimatedTime))
		if len(t.Dependencies) > 0 {
			field(w, "  Depends on:", strings.Join(t.Dependencies, ", "))
		}
		for _, c := range t.AcceptanceCriteria {
			field(w, "  Criterion:", util.TruncateANSI(c, detailWidth))
		}
	}
	fmt.Fprintln(w)
}

func renderOrder(w io.Writer, levels [][]string) {
	heading(w, "EXECUTION ORDER")
	for i, level := range levels {
		fmt.Fprintf(w, "  %d. %s\n", i+1, strings.Join(level, ", "))
	}
	fmt.Fprintln(w)
}

func renderResult(w io.Writer, r replan.ReplanResult) {
	heading(w, "RESULT "+r.OriginalTask.ID)
	status := okStyle.Render("ok")
	if !r.Success {
		status = errStyle.Render("failed")
	}
	field(w, "Action:", actionStyle(r.Action).Render(r.Action.String()))
	field(w, "Status:", status)
	field(w, "Task status:", r.OriginalTask.Status.String())
	field(w, "Message:", r.Message)
	fmt.Fprintln(w)
	if len(r.NewTasks) > 0 {
		renderSubtasks(w, r.NewTasks)
	}
}

func renderMetricSamples(w io.Writer, samples []metricSample) {
	if len(samples) == 0 {
		return
	}
	heading(w, "METRICS")
	for _, s := range samples {
		fmt.Fprintf(w, "  %s%s %g\n", s.Name, mutedStyle.Render(s.Labels), s.Value)
	}
	fmt.Fprintln(w)
}
