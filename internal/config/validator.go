package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "replan.split.max_depth")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is lets callers match any configuration failure with errors.ErrInvalidInput.
func (e ValidationErrors) Is(target error) bool {
	return target == errors.ErrInvalidInput
}

// subjectTokenRegex matches one dot-separated NATS subject token without
// wildcards or whitespace.
var subjectTokenRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// metricNamespaceRegex matches a valid Prometheus metric name prefix.
var metricNamespaceRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	levels := logging.ValidLevels()
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = strings.ToLower(l)
	}
	return out
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateThresholds()...)
	errs = append(errs, c.validateSplit()...)
	errs = append(errs, c.validateHistory()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)
	errs = append(errs, c.validateEvents()...)

	return errs
}

// validateThresholds validates replan.thresholds
func (c *Config) validateThresholds() []ValidationError {
	var errs []ValidationError
	th := c.Replan.Thresholds

	if th.TimeExceededRatio <= 0 {
		errs = append(errs, ValidationError{
			Field:   "replan.thresholds.time_exceeded_ratio",
			Value:   th.TimeExceededRatio,
			Message: "must be positive",
		})
	}

	if th.IterationsRatio <= 0 || th.IterationsRatio > 1 {
		errs = append(errs, ValidationError{
			Field:   "replan.thresholds.iterations_ratio",
			Value:   th.IterationsRatio,
			Message: "must be greater than 0 and at most 1",
		})
	}

	if th.ScopeCreepFiles < 1 {
		errs = append(errs, ValidationError{
			Field:   "replan.thresholds.scope_creep_files",
			Value:   th.ScopeCreepFiles,
			Message: "must be at least 1",
		})
	}

	if th.ConsecutiveFailures < 1 {
		errs = append(errs, ValidationError{
			Field:   "replan.thresholds.consecutive_failures",
			Value:   th.ConsecutiveFailures,
			Message: "must be at least 1",
		})
	}

	for i, kw := range th.ComplexityKeywords {
		if strings.TrimSpace(kw) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("replan.thresholds.complexity_keywords[%d]", i),
				Value:   kw,
				Message: "must not be empty",
			})
		}
	}

	return errs
}

// validateSplit validates replan.split
func (c *Config) validateSplit() []ValidationError {
	var errs []ValidationError

	if c.Replan.Split.MaxSubtasks < 2 {
		errs = append(errs, ValidationError{
			Field:   "replan.split.max_subtasks",
			Value:   c.Replan.Split.MaxSubtasks,
			Message: "must be at least 2",
		})
	}

	if c.Replan.Split.MaxDepth < 1 {
		errs = append(errs, ValidationError{
			Field:   "replan.split.max_depth",
			Value:   c.Replan.Split.MaxDepth,
			Message: "must be at least 1",
		})
	}

	return errs
}

// validateHistory validates replan.history
func (c *Config) validateHistory() []ValidationError {
	if c.Replan.History.Limit < 0 {
		return []ValidationError{{
			Field:   "replan.history.limit",
			Value:   c.Replan.History.Limit,
			Message: "must be non-negative (0 keeps every decision)",
		}}
	}
	return nil
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	level := strings.ToLower(c.Logging.Level)
	if level != "" && !slices.Contains(ValidLogLevels(), level) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Namespace != "" && !metricNamespaceRegex.MatchString(c.Metrics.Namespace) {
		return []ValidationError{{
			Field:   "metrics.namespace",
			Value:   c.Metrics.Namespace,
			Message: "must start with a letter or underscore and contain only letters, digits, and underscores",
		}}
	}
	return nil
}

// validateEvents validates the EventsConfig. The URL is only checked when
// the sink is enabled.
func (c *Config) validateEvents() []ValidationError {
	var errs []ValidationError
	n := c.Events.NATS

	if n.Enabled {
		u, err := url.Parse(n.URL)
		if n.URL == "" || err != nil || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "events.nats.url",
				Value:   n.URL,
				Message: "must be a URL such as nats://host:4222",
			})
		}
	}

	if n.SubjectPrefix != "" {
		for _, tok := range strings.Split(n.SubjectPrefix, ".") {
			if !subjectTokenRegex.MatchString(tok) {
				errs = append(errs, ValidationError{
					Field:   "events.nats.subject_prefix",
					Value:   n.SubjectPrefix,
					Message: "must be dot-separated tokens without wildcards or spaces",
				})
				break
			}
		}
	}

	return errs
}
