// Package split partitions a task into subtasks when a replan decision
// calls for it.
//
// The strategy depends on the trigger that caused the split:
//
//   - scope_creep, iterations_high: group files by role (tests, types,
//     components, services, utilities, core) using doublestar globs
//   - complexity_discovered: group by functionality (setup/types,
//     implementation, tests)
//   - time_exceeded: chunk files evenly and divide the time estimate
//
// Every split keeps the partition invariant: each file of the parent lands in
// exactly one subtask. Subtasks get a dependency chain of foundation, then
// implementation, then tests, which is acyclic by construction.
// [ExecutionOrder] turns a subtask set into topological levels.
//
// Usage:
//
//	s := split.New(split.WithMaxSubtasks(4))
//	if s.CanSplit(task, reason) {
//	    subtasks, err := s.Split(ctx, task, reason)
//	}
package split
