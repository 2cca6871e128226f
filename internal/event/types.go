// Package event defines event types for decoupling the replanning monitor
// from the observers that react to its decisions.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "decision.made").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeMonitoringStarted = "monitoring.started"
	TypeMonitoringStopped = "monitoring.stopped"
	TypeTriggerActivated  = "trigger.activated"
	TypeDecisionMade      = "decision.made"
	TypeReplanExecuted    = "replan.executed"
)

// Types returns every event type the monitor emits.
func Types() []string {
	return []string{
		TypeMonitoringStarted,
		TypeMonitoringStopped,
		TypeTriggerActivated,
		TypeDecisionMade,
		TypeReplanExecuted,
	}
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string, at time.Time) baseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return baseEvent{eventType: eventType, timestamp: at}
}

// -----------------------------------------------------------------------------
// Monitoring Lifecycle Events
// -----------------------------------------------------------------------------

// MonitoringStartedEvent is emitted when a task enters monitoring.
type MonitoringStartedEvent struct {
	baseEvent
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name,omitempty"`
}

// NewMonitoringStartedEvent creates a MonitoringStartedEvent.
func NewMonitoringStartedEvent(taskID, taskName string, at time.Time) MonitoringStartedEvent {
	return MonitoringStartedEvent{
		baseEvent: newBaseEvent(TypeMonitoringStarted, at),
		TaskID:    taskID,
		TaskName:  taskName,
	}
}

// MonitoringStoppedEvent is emitted when a task leaves active monitoring,
// either explicitly or as a side effect of an abort.
type MonitoringStoppedEvent struct {
	baseEvent
	TaskID string `json:"task_id"`
	Reason string `json:"reason"` // "stopped" or "aborted"
}

// NewMonitoringStoppedEvent creates a MonitoringStoppedEvent.
func NewMonitoringStoppedEvent(taskID, reason string, at time.Time) MonitoringStoppedEvent {
	return MonitoringStoppedEvent{
		baseEvent: newBaseEvent(TypeMonitoringStopped, at),
		TaskID:    taskID,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Decision Events
// -----------------------------------------------------------------------------

// TriggerActivatedEvent is emitted once per activated trigger during a check.
type TriggerActivatedEvent struct {
	baseEvent
	TaskID     string  `json:"task_id"`
	Trigger    string  `json:"trigger"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details"`
}

// NewTriggerActivatedEvent creates a TriggerActivatedEvent.
func NewTriggerActivatedEvent(taskID, trigger string, confidence float64, details string, at time.Time) TriggerActivatedEvent {
	return TriggerActivatedEvent{
		baseEvent:  newBaseEvent(TypeTriggerActivated, at),
		TaskID:     taskID,
		Trigger:    trigger,
		Confidence: confidence,
		Details:    details,
	}
}

// DecisionMadeEvent is emitted after every replanning check.
type DecisionMadeEvent struct {
	baseEvent
	TaskID       string  `json:"task_id"`
	ShouldReplan bool    `json:"should_replan"`
	Trigger      string  `json:"trigger,omitempty"` // dominant trigger, empty when no replan
	Action       string  `json:"action"`
	Confidence   float64 `json:"confidence"`
}

// NewDecisionMadeEvent creates a DecisionMadeEvent.
func NewDecisionMadeEvent(taskID string, shouldReplan bool, trigger, action string, confidence float64, at time.Time) DecisionMadeEvent {
	return DecisionMadeEvent{
		baseEvent:    newBaseEvent(TypeDecisionMade, at),
		TaskID:       taskID,
		ShouldReplan: shouldReplan,
		Trigger:      trigger,
		Action:       action,
		Confidence:   confidence,
	}
}

// -----------------------------------------------------------------------------
// Replan Events
// -----------------------------------------------------------------------------

// ReplanExecutedEvent is emitted after an action has been carried out.
type ReplanExecutedEvent struct {
	baseEvent
	TaskID     string   `json:"task_id"`
	Action     string   `json:"action"`
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	NewTaskIDs []string `json:"new_task_ids,omitempty"`
}

// NewReplanExecutedEvent creates a ReplanExecutedEvent.
func NewReplanExecutedEvent(taskID, action string, success bool, message string, newTaskIDs []string, at time.Time) ReplanExecutedEvent {
	return ReplanExecutedEvent{
		baseEvent:  newBaseEvent(TypeReplanExecuted, at),
		TaskID:     taskID,
		Action:     action,
		Success:    success,
		Message:    message,
		NewTaskIDs: newTaskIDs,
	}
}
