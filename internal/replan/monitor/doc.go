// Package monitor tracks in-flight tasks and turns their execution state
// into replanning decisions and actions.
//
// An [Engine] keeps one entry per task ID. Entries move from unmonitored to
// active with [Engine.StartMonitoring] and from active to inactive with
// [Engine.StopMonitoring] or an abort. Inactive entries keep their context
// and decision history until [Engine.Clear].
//
// Checks never fail. Unknown or inactive tasks get a no-replan decision,
// and every action reports problems through [replan.ReplanResult] rather
// than an error.
//
// Optional collaborators are wired with options: an [event.Bus] for
// observers, a [Metrics] for Prometheus, a [logging.Logger], and a
// [Splitter] other than the default [split.Splitter].
package monitor
