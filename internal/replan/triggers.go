package replan

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// TriggerKind names a category of execution anomaly.
type TriggerKind string

const (
	TriggerTimeExceeded         TriggerKind = "time_exceeded"
	TriggerIterationsHigh       TriggerKind = "iterations_high"
	TriggerScopeCreep           TriggerKind = "scope_creep"
	TriggerBlockingIssue        TriggerKind = "blocking_issue"
	TriggerComplexityDiscovered TriggerKind = "complexity_discovered"
	TriggerDependencyDiscovered TriggerKind = "dependency_discovered"
	TriggerAgentRequest         TriggerKind = "agent_request"
)

// Priority returns the fixed priority of the trigger kind. Higher wins when
// several triggers fire together. Unknown kinds have priority 0.
func (k TriggerKind) Priority() int {
	switch k {
	case TriggerBlockingIssue:
		return 100
	case TriggerAgentRequest:
		return 90
	case TriggerScopeCreep:
		return 70
	case TriggerComplexityDiscovered:
		return 60
	case TriggerDependencyDiscovered:
		return 50
	case TriggerTimeExceeded:
		return 40
	case TriggerIterationsHigh:
		return 30
	default:
		return 0
	}
}

// String returns the string representation of the trigger kind.
func (k TriggerKind) String() string {
	return string(k)
}

// TriggerKinds returns every known trigger kind in descending priority.
func TriggerKinds() []TriggerKind {
	return []TriggerKind{
		TriggerBlockingIssue,
		TriggerAgentRequest,
		TriggerScopeCreep,
		TriggerComplexityDiscovered,
		TriggerDependencyDiscovered,
		TriggerTimeExceeded,
		TriggerIterationsHigh,
	}
}

// IsValid reports whether k is one of the known trigger kinds.
func (k TriggerKind) IsValid() bool {
	return k.Priority() > 0
}

// Evaluator is one member of the closed set of trigger evaluators.
type Evaluator int

const (
	EvalTimeExceeded Evaluator = iota
	EvalIterationsHigh
	EvalScopeCreep
	EvalConsecutiveFailures
	EvalComplexity
)

// Evaluators returns the evaluators in the order they run. This order
// breaks priority ties.
func Evaluators() []Evaluator {
	return []Evaluator{
		EvalTimeExceeded,
		EvalIterationsHigh,
		EvalScopeCreep,
		EvalConsecutiveFailures,
		EvalComplexity,
	}
}

// Kind returns the trigger kind the evaluator reports.
func (e Evaluator) Kind() TriggerKind {
	switch e {
	case EvalTimeExceeded:
		return TriggerTimeExceeded
	case EvalIterationsHigh:
		return TriggerIterationsHigh
	case EvalScopeCreep:
		return TriggerScopeCreep
	case EvalConsecutiveFailures:
		return TriggerBlockingIssue
	case EvalComplexity:
		return TriggerComplexityDiscovered
	default:
		return ""
	}
}

// Evaluate runs the evaluator against ctx. It never mutates ctx.
func (e Evaluator) Evaluate(ctx ExecutionContext, th TriggerThresholds) TriggerResult {
	switch e {
	case EvalTimeExceeded:
		return evaluateTimeExceeded(ctx, th)
	case EvalIterationsHigh:
		return evaluateIterationsHigh(ctx, th)
	case EvalScopeCreep:
		return evaluateScopeCreep(ctx, th)
	case EvalConsecutiveFailures:
		return evaluateConsecutiveFailures(ctx, th)
	case EvalComplexity:
		return evaluateComplexity(ctx, th)
	default:
		return TriggerResult{}
	}
}

// EvaluateAll runs every evaluator and returns all results, fired or not,
// in evaluator order.
func EvaluateAll(ctx ExecutionContext, th TriggerThresholds) []TriggerResult {
	evals := Evaluators()
	results := make([]TriggerResult, 0, len(evals))
	for _, e := range evals {
		results = append(results, e.Evaluate(ctx, th))
	}
	return results
}

func evaluateTimeExceeded(ctx ExecutionContext, th TriggerThresholds) TriggerResult {
	ratio := ratioOf(ctx.ElapsedTime, ctx.EstimatedTime)
	res := TriggerResult{
		Trigger: TriggerTimeExceeded,
		Metrics: map[string]float64{"time_ratio": ratio},
	}
	if ratio <= th.TimeExceededRatio {
		res.Details = fmt.Sprintf("elapsed time %.1f of %.1f minutes is within budget", ctx.ElapsedTime, ctx.EstimatedTime)
		return res
	}
	res.Triggered = true
	res.Confidence = math.Min(0.6+(ratio-th.TimeExceededRatio)*0.2, 0.95)
	res.Details = fmt.Sprintf("elapsed time %.1f minutes is %.0f%% of the %.1f minute estimate (limit %.0f%%)",
		ctx.ElapsedTime, ratio*100, ctx.EstimatedTime, th.TimeExceededRatio*100)
	return res
}

func evaluateIterationsHigh(ctx ExecutionContext, th TriggerThresholds) TriggerResult {
	ratio := ratioOf(float64(ctx.Iteration), float64(ctx.MaxIterations))
	res := TriggerResult{
		Trigger: TriggerIterationsHigh,
		Metrics: map[string]float64{"iteration_ratio": ratio},
	}
	if ratio <= th.IterationsRatio {
		res.Details = fmt.Sprintf("iteration %d of %d is within budget", ctx.Iteration, ctx.MaxIterations)
		return res
	}
	res.Triggered = true
	res.Confidence = math.Min(0.5+(ratio-th.IterationsRatio)*0.5, 0.9)
	res.Details = fmt.Sprintf("iteration %d of %d used %.0f%% of the iteration budget (limit %.0f%%)",
		ctx.Iteration, ctx.MaxIterations, ratio*100, th.IterationsRatio*100)
	return res
}

func evaluateScopeCreep(ctx ExecutionContext, th TriggerThresholds) TriggerResult {
	unexpected := UnexpectedFiles(ctx)
	res := TriggerResult{
		Trigger: TriggerScopeCreep,
		Metrics: map[string]float64{"scope_creep_count": float64(len(unexpected))},
	}
	if len(unexpected) < th.ScopeCreepFiles {
		res.Details = fmt.Sprintf("%d unexpected files modified (limit %d)", len(unexpected), th.ScopeCreepFiles)
		return res
	}
	res.Triggered = true
	res.Confidence = math.Min(0.6+0.1*float64(len(unexpected)-th.ScopeCreepFiles), 0.95)
	res.Details = fmt.Sprintf("%d files modified outside the expected set: %s",
		len(unexpected), strings.Join(unexpected, ", "))
	return res
}

func evaluateConsecutiveFailures(ctx ExecutionContext, th TriggerThresholds) TriggerResult {
	res := TriggerResult{
		Trigger: TriggerBlockingIssue,
		Metrics: map[string]float64{"consecutive_failures": float64(ctx.ConsecutiveFailures)},
	}
	if ctx.ConsecutiveFailures < th.ConsecutiveFailures {
		res.Details = fmt.Sprintf("%d consecutive failures (limit %d)", ctx.ConsecutiveFailures, th.ConsecutiveFailures)
		return res
	}
	res.Triggered = true
	res.Confidence = math.Min(0.7+0.05*float64(ctx.ConsecutiveFailures-th.ConsecutiveFailures), 0.95)
	res.Details = fmt.Sprintf("%d consecutive failed iterations", ctx.ConsecutiveFailures)
	if n := len(ctx.Errors); n > 0 {
		res.Details += fmt.Sprintf("; last error: %s", ctx.Errors[n-1].Message)
	}
	return res
}

// complexityPatterns are phrases that imply hidden complexity even when no
// configured keyword appears.
var complexityPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"circular dependency", regexp.MustCompile(`circular\s+(dependency|dependencies|import|reference)`)},
	{"rewrite required", regexp.MustCompile(`(need|needs|require|requires|required)\s+(to\s+)?(be\s+)?(a\s+)?(complete\s+|full\s+|major\s+)?rewrit`)},
	{"tight coupling", regexp.MustCompile(`tight(ly)?[\s-]+coupl`)},
	{"legacy code", regexp.MustCompile(`legacy\s+(code|system|module|api)`)},
	{"technical debt", regexp.MustCompile(`technical\s+debt`)},
	{"cascading changes", regexp.MustCompile(`(changes?|modifications?)\s+(to|in|across)\s+(many|multiple|several|all)\s+`)},
	{"no clear approach", regexp.MustCompile(`no\s+(clear|obvious|simple)\s+(way|path|approach|solution)`)},
	{"undocumented behavior", regexp.MustCompile(`undocumented\s+(behavio|api|side)`)},
}

func evaluateComplexity(ctx ExecutionContext, th TriggerThresholds) TriggerResult {
	feedback := strings.ToLower(ctx.AgentFeedback)
	texts := make([]string, 0, len(ctx.Errors)+1)
	if feedback != "" {
		texts = append(texts, feedback)
	}
	for _, e := range ctx.Errors {
		texts = append(texts, strings.ToLower(e.Message))
	}

	var indicators []string
	keywordInFeedback := false
	for _, kw := range th.ComplexityKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if feedback != "" && strings.Contains(feedback, kw) {
			keywordInFeedback = true
		}
		if containsAny(texts, kw) {
			indicators = append(indicators, kw)
		}
	}
	for _, p := range complexityPatterns {
		for _, text := range texts {
			if p.re.MatchString(text) {
				indicators = append(indicators, p.name)
				break
			}
		}
	}

	res := TriggerResult{
		Trigger: TriggerComplexityDiscovered,
		Metrics: map[string]float64{"indicators": float64(len(indicators))},
	}
	if len(indicators) == 0 {
		res.Details = "no complexity indicators found"
		return res
	}
	conf := math.Min(0.5+0.1*float64(len(indicators)), 0.8)
	if keywordInFeedback {
		conf = math.Min(conf+0.15, 0.95)
	}
	res.Triggered = true
	res.Confidence = conf
	res.Details = fmt.Sprintf("complexity indicators found: %s", strings.Join(indicators, ", "))
	return res
}

func containsAny(texts []string, needle string) bool {
	for _, t := range texts {
		if strings.Contains(t, needle) {
			return true
		}
	}
	return false
}

func ratioOf(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
