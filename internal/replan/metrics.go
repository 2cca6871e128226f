package replan

// BuildMetrics derives the metrics snapshot attached to a decision.
func BuildMetrics(ctx ExecutionContext) ReplanMetrics {
	return ReplanMetrics{
		TimeRatio:           ratioOf(ctx.ElapsedTime, ctx.EstimatedTime),
		IterationRatio:      ratioOf(float64(ctx.Iteration), float64(ctx.MaxIterations)),
		FilesExpected:       len(ctx.FilesExpected),
		FilesModified:       len(ctx.FilesModified),
		ScopeCreepCount:     len(UnexpectedFiles(ctx)),
		ErrorCount:          len(ctx.Errors),
		ConsecutiveFailures: ctx.ConsecutiveFailures,
	}
}

// UnexpectedFiles returns the modified files absent from the expected set,
// in modification order and without duplicates.
func UnexpectedFiles(ctx ExecutionContext) []string {
	expected := make(map[string]struct{}, len(ctx.FilesExpected))
	for _, f := range ctx.FilesExpected {
		expected[f] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ctx.FilesModified))
	var out []string
	for _, f := range ctx.FilesModified {
		if _, ok := expected[f]; ok {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
