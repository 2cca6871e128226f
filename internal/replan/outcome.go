package replan

// IterationOutcome is what the execution loop reports after one iteration
// of the coding agent.
type IterationOutcome struct {
	FilesTouched []string     `json:"files_touched"`
	Errors       []ErrorEntry `json:"errors"`
	Success      bool         `json:"success"`
	Feedback     string       `json:"feedback,omitempty"`
}

// ApplyOutcome folds one iteration outcome into a copy of the context.
// Touched files are added to the modified set, errors are appended,
// and the consecutive-failure counter is reset on success. elapsed is the
// total elapsed time in minutes; a negative value leaves it unchanged.
func (c ExecutionContext) ApplyOutcome(o IterationOutcome, elapsed float64) ExecutionContext {
	out := c.Clone()
	out.Iteration++
	if elapsed >= 0 {
		out.ElapsedTime = elapsed
	}

	seen := make(map[string]struct{}, len(out.FilesModified))
	for _, f := range out.FilesModified {
		seen[f] = struct{}{}
	}
	for _, f := range o.FilesTouched {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out.FilesModified = append(out.FilesModified, f)
	}

	for _, e := range o.Errors {
		if e.Iteration == 0 {
			e.Iteration = out.Iteration
		}
		out.Errors = append(out.Errors, e)
	}

	if o.Success {
		out.ConsecutiveFailures = 0
	} else {
		out.ConsecutiveFailures++
	}
	if o.Feedback != "" {
		out.AgentFeedback = o.Feedback
	}
	return out
}
