// Package event provides a pub-sub event bus that lets observers react to
// replanning decisions without polling the monitor.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Monitoring Lifecycle:
//   - [MonitoringStartedEvent]: a task entered monitoring
//   - [MonitoringStoppedEvent]: a task was stopped or aborted
//
// Decisions:
//   - [TriggerActivatedEvent]: one per trigger that fired during a check
//   - [DecisionMadeEvent]: the outcome of every check
//
// Actions:
//   - [ReplanExecutedEvent]: an action (split, rescope, escalate, abort,
//     continue) was carried out
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and protected against panics:
// a panicking handler is logged and skipped, and never reaches the
// publisher.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeDecisionMade, func(e event.Event) {
//	    d := e.(event.DecisionMadeEvent)
//	    fmt.Println(d.TaskID, d.Action)
//	})
//
//	// Subscribe to all events (useful for forwarding)
//	bus.SubscribeAll(func(e event.Event) {
//	    fmt.Println(e.EventType(), e.Timestamp())
//	})
package event
