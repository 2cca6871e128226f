package replan

import (
	"slices"

	"github.com/Iron-Ham/replan/internal/errors"
)

// TriggerThresholds configures when each evaluator fires.
type TriggerThresholds struct {
	// TimeExceededRatio fires time_exceeded when elapsed/estimated exceeds it.
	TimeExceededRatio float64 `json:"time_exceeded_ratio" mapstructure:"time_exceeded_ratio"`
	// IterationsRatio fires iterations_high when iteration/max exceeds it.
	IterationsRatio float64 `json:"iterations_ratio" mapstructure:"iterations_ratio"`
	// ScopeCreepFiles fires scope_creep when this many unexpected files are modified.
	ScopeCreepFiles int `json:"scope_creep_files" mapstructure:"scope_creep_files"`
	// ConsecutiveFailures fires blocking_issue at this many failures in a row.
	ConsecutiveFailures int `json:"consecutive_failures" mapstructure:"consecutive_failures"`
	// ComplexityKeywords are matched case-insensitively against feedback and errors.
	ComplexityKeywords []string `json:"complexity_keywords" mapstructure:"complexity_keywords"`
}

// DefaultThresholds returns the stock threshold configuration.
func DefaultThresholds() TriggerThresholds {
	return TriggerThresholds{
		TimeExceededRatio:   1.5,
		IterationsRatio:     0.4,
		ScopeCreepFiles:     3,
		ConsecutiveFailures: 5,
		ComplexityKeywords: []string{
			"more complex than expected",
			"unexpected complexity",
			"refactor",
			"redesign",
			"architecture",
			"breaking change",
			"unexpected dependency",
		},
	}
}

// Clone returns a deep copy of the thresholds.
func (t TriggerThresholds) Clone() TriggerThresholds {
	t.ComplexityKeywords = slices.Clone(t.ComplexityKeywords)
	return t
}

// Validate reports the first invalid field, if any. The returned error is
// a *errors.ValidationError matching errors.ErrInvalidThresholds.
func (t TriggerThresholds) Validate() error {
	invalid := func(field string, value any, msg string) error {
		return errors.NewValidationError(msg).
			WithField(field).
			WithValue(value).
			WithCause(errors.ErrInvalidThresholds)
	}

	switch {
	case t.TimeExceededRatio <= 0:
		return invalid("time_exceeded_ratio", t.TimeExceededRatio, "must be positive")
	case t.IterationsRatio <= 0 || t.IterationsRatio > 1:
		return invalid("iterations_ratio", t.IterationsRatio, "must be in (0, 1]")
	case t.ScopeCreepFiles < 1:
		return invalid("scope_creep_files", t.ScopeCreepFiles, "must be at least 1")
	case t.ConsecutiveFailures < 1:
		return invalid("consecutive_failures", t.ConsecutiveFailures, "must be at least 1")
	}
	return nil
}
