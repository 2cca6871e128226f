package replan

import (
	"slices"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSplit      TaskStatus = "split"
	TaskEscalated  TaskStatus = "escalated"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the task will not be worked on again.
// A split task is terminal because its subtasks supersede it.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSplit, TaskEscalated:
		return true
	default:
		return false
	}
}

// Task is a unit of coding work. Tasks are never deleted, only superseded
// by subtasks or moved to a terminal status.
type Task struct {
	ID                 string     `json:"id" yaml:"id"`
	Name               string     `json:"name" yaml:"name"`
	Description        string     `json:"description" yaml:"description"`
	Files              []string   `json:"files" yaml:"files"`
	EstimatedTime      int        `json:"estimated_time" yaml:"estimated_time"` // minutes
	Dependencies       []string   `json:"dependencies" yaml:"dependencies"`
	AcceptanceCriteria []string   `json:"acceptance_criteria" yaml:"acceptance_criteria"`
	Status             TaskStatus `json:"status" yaml:"status"`
	ParentTaskID       string     `json:"parent_task_id,omitempty" yaml:"parent_task_id,omitempty"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	t.Files = slices.Clone(t.Files)
	t.Dependencies = slices.Clone(t.Dependencies)
	t.AcceptanceCriteria = slices.Clone(t.AcceptanceCriteria)
	return t
}

// ErrorEntry is one error observed while executing a task.
type ErrorEntry struct {
	Message   string `json:"message" yaml:"message"`
	File      string `json:"file,omitempty" yaml:"file,omitempty"`
	Iteration int    `json:"iteration,omitempty" yaml:"iteration,omitempty"`
}

// ExecutionContext is a snapshot of how a task's execution is going.
// Times are in minutes.
type ExecutionContext struct {
	TaskID              string       `json:"task_id"`
	TaskName            string       `json:"task_name"`
	EstimatedTime       float64      `json:"estimated_time"`
	ElapsedTime         float64      `json:"elapsed_time"`
	Iteration           int          `json:"iteration"`
	MaxIterations       int          `json:"max_iterations"`
	FilesExpected       []string     `json:"files_expected"`
	FilesModified       []string     `json:"files_modified"`
	Errors              []ErrorEntry `json:"errors"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	AgentFeedback       string       `json:"agent_feedback,omitempty"`
}

// Clone returns a deep copy of the context.
func (c ExecutionContext) Clone() ExecutionContext {
	c.FilesExpected = slices.Clone(c.FilesExpected)
	c.FilesModified = slices.Clone(c.FilesModified)
	c.Errors = slices.Clone(c.Errors)
	return c
}

// ContextUpdate is a partial ExecutionContext. Nil pointer fields and nil
// slices leave the current value untouched. A non-nil slice, even an empty
// one, replaces the current slice wholesale.
type ContextUpdate struct {
	TaskName            *string
	EstimatedTime       *float64
	ElapsedTime         *float64
	Iteration           *int
	MaxIterations       *int
	FilesExpected       []string
	FilesModified       []string
	Errors              []ErrorEntry
	ConsecutiveFailures *int
	AgentFeedback       *string
}

// Merge returns a copy of c with the fields set in u applied.
func (c ExecutionContext) Merge(u ContextUpdate) ExecutionContext {
	out := c.Clone()
	if u.TaskName != nil {
		out.TaskName = *u.TaskName
	}
	if u.EstimatedTime != nil {
		out.EstimatedTime = *u.EstimatedTime
	}
	if u.ElapsedTime != nil {
		out.ElapsedTime = *u.ElapsedTime
	}
	if u.Iteration != nil {
		out.Iteration = *u.Iteration
	}
	if u.MaxIterations != nil {
		out.MaxIterations = *u.MaxIterations
	}
	if u.FilesExpected != nil {
		out.FilesExpected = slices.Clone(u.FilesExpected)
	}
	if u.FilesModified != nil {
		out.FilesModified = slices.Clone(u.FilesModified)
	}
	if u.Errors != nil {
		out.Errors = slices.Clone(u.Errors)
	}
	if u.ConsecutiveFailures != nil {
		out.ConsecutiveFailures = *u.ConsecutiveFailures
	}
	if u.AgentFeedback != nil {
		out.AgentFeedback = *u.AgentFeedback
	}
	return out
}

// TriggerResult is the output of one evaluator for one context.
type TriggerResult struct {
	Triggered  bool               `json:"triggered"`
	Trigger    TriggerKind        `json:"trigger"`
	Confidence float64            `json:"confidence"`
	Details    string             `json:"details"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// ReplanMetrics is an immutable snapshot of the ratios and counts a
// decision was based on.
type ReplanMetrics struct {
	TimeRatio           float64 `json:"time_ratio"`
	IterationRatio      float64 `json:"iteration_ratio"`
	FilesExpected       int     `json:"files_expected"`
	FilesModified       int     `json:"files_modified"`
	ScopeCreepCount     int     `json:"scope_creep_count"`
	ErrorCount          int     `json:"error_count"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

// ReplanReason explains why a replan was requested.
type ReplanReason struct {
	Trigger    TriggerKind   `json:"trigger"`
	Details    string        `json:"details"`
	Metrics    ReplanMetrics `json:"metrics"`
	Confidence float64       `json:"confidence"`
}

// ReplanDecision is the verdict for one evaluation. Decisions are immutable
// once created.
type ReplanDecision struct {
	ShouldReplan    bool            `json:"should_replan"`
	Reason          *ReplanReason   `json:"reason,omitempty"`
	SuggestedAction Action          `json:"suggested_action"`
	Confidence      float64         `json:"confidence"`
	Activated       []TriggerResult `json:"activated,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ReplanResult reports what happened when an action was executed.
type ReplanResult struct {
	Success      bool          `json:"success"`
	Action       Action        `json:"action"`
	OriginalTask Task          `json:"original_task"`
	NewTasks     []Task        `json:"new_tasks,omitempty"`
	Message      string        `json:"message"`
	Metrics      ReplanMetrics `json:"metrics"`
}

// AgentRequest is an explicit replan request raised by the coding agent.
type AgentRequest struct {
	Reason           string   `json:"reason"`
	Blockers         []string `json:"blockers,omitempty"`
	ComplexityDetail string   `json:"complexity_detail,omitempty"`
	Suggestion       string   `json:"suggestion,omitempty"`
}
