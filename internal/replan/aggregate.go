package replan

import (
	"math"
	"time"
)

// Action is what should happen to a task after a decision.
type Action string

const (
	ActionContinue Action = "continue"
	ActionSplit    Action = "split"
	ActionRescope  Action = "rescope"
	ActionEscalate Action = "escalate"
	ActionAbort    Action = "abort"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// IsValid reports whether a is one of the known actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionContinue, ActionSplit, ActionRescope, ActionEscalate, ActionAbort:
		return true
	default:
		return false
	}
}

// NoReplan returns the decision used when nothing fired or the task is not
// monitored. Its confidence is always 1.0.
func NoReplan(now time.Time) ReplanDecision {
	return ReplanDecision{
		ShouldReplan:    false,
		SuggestedAction: ActionContinue,
		Confidence:      1.0,
		Timestamp:       now,
	}
}

// Evaluate runs every evaluator against ctx and aggregates the result.
func Evaluate(ctx ExecutionContext, th TriggerThresholds, now time.Time) ReplanDecision {
	return Aggregate(ctx, EvaluateAll(ctx, th), now)
}

// Aggregate turns a set of trigger results into a single decision. Results
// that did not fire are ignored; their relative order is preserved and used
// to break priority ties.
func Aggregate(ctx ExecutionContext, results []TriggerResult, now time.Time) ReplanDecision {
	activated := Activated(results)
	if len(activated) == 0 {
		return NoReplan(now)
	}

	dominant := activated[DominantIndex(activated)]
	return ReplanDecision{
		ShouldReplan: true,
		Reason: &ReplanReason{
			Trigger:    dominant.Trigger,
			Details:    dominant.Details,
			Metrics:    BuildMetrics(ctx),
			Confidence: dominant.Confidence,
		},
		SuggestedAction: SuggestAction(activated),
		Confidence:      CombinedConfidence(activated),
		Activated:       activated,
		Timestamp:       now,
	}
}

// Activated filters results down to the ones that fired.
func Activated(results []TriggerResult) []TriggerResult {
	var out []TriggerResult
	for _, r := range results {
		if r.Triggered {
			out = append(out, r)
		}
	}
	return out
}

// DominantIndex returns the index of the highest-priority result. The first
// of equal-priority results wins. Returns -1 for an empty slice.
func DominantIndex(results []TriggerResult) int {
	best := -1
	for i, r := range results {
		if best < 0 || r.Trigger.Priority() > results[best].Trigger.Priority() {
			best = i
		}
	}
	return best
}

// CombinedConfidence is the priority-weighted mean of the confidences,
// capped at 1.0.
func CombinedConfidence(results []TriggerResult) float64 {
	var weighted, weights float64
	for _, r := range results {
		w := float64(r.Trigger.Priority()) / 100
		weighted += clamp01(r.Confidence) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return math.Min(weighted/weights, 1.0)
}

// SuggestAction maps the set of activated triggers to an action. Rules are
// checked in order and the first match wins.
func SuggestAction(results []TriggerResult) Action {
	has := make(map[TriggerKind]bool, len(results))
	for _, r := range results {
		has[r.Trigger] = true
	}

	switch {
	case has[TriggerBlockingIssue]:
		return ActionEscalate
	case has[TriggerScopeCreep], has[TriggerComplexityDiscovered], has[TriggerDependencyDiscovered]:
		return ActionSplit
	case has[TriggerTimeExceeded], has[TriggerIterationsHigh]:
		if has[TriggerAgentRequest] {
			return ActionSplit
		}
		return ActionRescope
	case has[TriggerAgentRequest]:
		return ActionSplit
	default:
		return ActionContinue
	}
}

// ActionForTrigger applies the SuggestAction rules to a single trigger.
func ActionForTrigger(kind TriggerKind) Action {
	return SuggestAction([]TriggerResult{{Triggered: true, Trigger: kind}})
}

// AgentRequestConfidence scores an explicit agent request: 0.5 base, up to
// 0.2 for blockers, 0.15 for a detailed complexity description, and 0.1 for a
// concrete suggestion.
func AgentRequestConfidence(req AgentRequest) float64 {
	conf := 0.5
	if n := len(req.Blockers); n > 0 {
		conf += 0.2 * math.Min(float64(n)/3, 1)
	}
	if len(req.ComplexityDetail) > 50 {
		conf += 0.15
	}
	if req.Suggestion != "" {
		conf += 0.1
	}
	return math.Min(conf, 1.0)
}

// AgentRequestResult synthesizes the trigger result for an agent request.
func AgentRequestResult(req AgentRequest) TriggerResult {
	details := req.Reason
	if details == "" {
		details = "agent requested replanning"
	}
	return TriggerResult{
		Triggered:  true,
		Trigger:    TriggerAgentRequest,
		Confidence: AgentRequestConfidence(req),
		Details:    details,
		Metrics:    map[string]float64{"blockers": float64(len(req.Blockers))},
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
