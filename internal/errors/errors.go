// Package errors provides error definitions and handling utilities for the
// replanning engine. It defines sentinel errors, domain error types carrying
// task context, and classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - MonitorError: errors raised while operating on a monitored task
//   - SplitError: errors raised by a split strategy
//
// Semantic errors:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or configuration
//
// # Usage
//
//	err := errors.NewSplitError("task has 1 file", errors.ErrUnsplittable).WithTaskID("t-1")
//
//	if errors.Is(err, errors.ErrUnsplittable) { ... }
//
//	var splitErr *errors.SplitError
//	if errors.As(err, &splitErr) { ... }
//
// The engine never propagates these errors out of its public operations;
// they are converted into result messages. They exist so that strategies and
// the CLI can classify failures.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Monitoring sentinel errors
var (
	// ErrTaskNotMonitored indicates no monitoring entry exists for a task.
	ErrTaskNotMonitored = New("task not monitored")
	// ErrTaskInactive indicates the monitoring entry exists but is inactive.
	ErrTaskInactive = New("task monitoring is inactive")
)

// Splitting sentinel errors
var (
	// ErrUnsplittable indicates the task does not meet the split preconditions.
	ErrUnsplittable = New("task cannot be split")
	// ErrSplitFailed indicates a split strategy failed while running.
	ErrSplitFailed = New("split failed")
	// ErrDependencyCycle indicates a circular dependency between subtasks.
	ErrDependencyCycle = New("dependency cycle detected")
)

// Input sentinel errors
var (
	// ErrInvalidThresholds indicates a threshold configuration is invalid.
	ErrInvalidThresholds = New("invalid thresholds")
	// ErrInvalidScenario indicates a scenario document failed validation.
	ErrInvalidScenario = New("invalid scenario")
	// ErrInvalidInput indicates generic invalid input.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ReplanError is the base interface for all errors defined here.
type ReplanError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// MonitorError represents errors raised while operating on a monitored task.
//
// Example:
//
//	err := errors.NewMonitorError("replan", errors.ErrTaskNotMonitored).WithTaskID("t-1")
//	fmt.Println(err) // "monitor error [op=replan, task=t-1]: task not monitored"
type MonitorError struct {
	baseError
	Op     string
	TaskID string
}

// NewMonitorError creates a MonitorError for operation op.
func NewMonitorError(op string, cause error) *MonitorError {
	msg := op
	if cause != nil {
		msg = cause.Error()
	}
	return &MonitorError{
		baseError: baseError{
			message:    msg,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Op: op,
	}
}

// WithTaskID adds a task ID to the error context.
func (e *MonitorError) WithTaskID(id string) *MonitorError {
	e.TaskID = id
	return e
}

// Error returns the formatted error message.
func (e *MonitorError) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.TaskID != "" {
		parts = append(parts, "task="+e.TaskID)
	}
	prefix := "monitor error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("monitor error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *MonitorError) Is(target error) bool {
	if _, ok := target.(*MonitorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SplitError represents errors raised by a split strategy.
//
// Example:
//
//	err := errors.NewSplitError("only one file", errors.ErrUnsplittable).WithTaskID("t-1")
//	fmt.Println(err) // "split error [task=t-1]: only one file: task cannot be split"
type SplitError struct {
	baseError
	TaskID  string
	Trigger string
}

// NewSplitError creates a SplitError.
func NewSplitError(message string, cause error) *SplitError {
	return &SplitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *SplitError) WithTaskID(id string) *SplitError {
	e.TaskID = id
	return e
}

// WithTrigger adds the trigger kind that requested the split.
func (e *SplitError) WithTrigger(trigger string) *SplitError {
	e.Trigger = trigger
	return e
}

// WithSeverity sets the error severity.
func (e *SplitError) WithSeverity(s Severity) *SplitError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SplitError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, "task="+e.TaskID)
	}
	if e.Trigger != "" {
		parts = append(parts, "trigger="+e.Trigger)
	}
	return e.format("split error", parts)
}

// Is checks if this error matches the target.
func (e *SplitError) Is(target error) bool {
	if _, ok := target.(*SplitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrTaskNotMonitored) && e.ResourceType == "task" {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or configuration.
//
// Example:
//
//	err := errors.NewValidationError("must be positive").WithField("time_exceeded_ratio").WithValue(-1)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var re ReplanError
	if As(err, &re) {
		return re.IsUserFacing()
	}
	return false
}

// IsNotFound returns true for NotFoundError and errors wrapping
// ErrTaskNotMonitored.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	return As(err, &nf) || Is(err, ErrTaskNotMonitored)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ReplanError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var re ReplanError
	if As(err, &re) {
		return re.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
