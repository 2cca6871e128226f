// Package replan decides, while an autonomous coding task is executing,
// whether its plan is still adequate or must be restructured.
//
// The package is pure computation: it converts a snapshot of execution state
// ([ExecutionContext]) into a [ReplanDecision] using a fixed set of trigger
// evaluators, a priority table, and a priority-weighted confidence.
//
// # Triggers
//
// Five evaluators run on every decision, in this order:
//
//   - [TriggerTimeExceeded]: elapsed/estimated above the configured ratio
//   - [TriggerIterationsHigh]: iteration/maxIterations above the ratio
//   - [TriggerScopeCreep]: modified files outside the expected set
//   - [TriggerBlockingIssue]: consecutive failures at or above the limit
//   - [TriggerComplexityDiscovered]: complexity keywords or phrases in
//     agent feedback and error messages
//
// Two more kinds exist without an evaluator. [TriggerAgentRequest] is
// synthesized when the agent explicitly asks for a replan, and
// [TriggerDependencyDiscovered] is supplied by callers through a
// [ReplanReason].
//
// # Dominant Trigger and Action
//
// When several triggers fire together, the one with the highest
// [TriggerKind.Priority] becomes the decision's reason. The suggested
// [Action] is derived from the whole activated set by [SuggestAction].
//
// # Thread Safety
//
// Every function in this package is stateless and safe for concurrent use.
// Thresholds are passed explicitly on each call.
package replan
