// Package scenario loads YAML documents describing a task, its execution
// context and a sequence of iteration outcomes. The CLI replays scenarios
// through the monitor engine.
//
// A minimal document:
//
//	task:
//	  id: auth-1
//	  name: Add login endpoint
//	  files: [auth/service.go, auth/service_test.go]
//	  estimated_time: 30
//	context:
//	  elapsed_time: 45
//	  iteration: 2
//	  max_iterations: 10
package scenario

import (
	"bytes"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	err := validate.RegisterValidation("trigger", func(fl validator.FieldLevel) bool {
		return replan.TriggerKind(fl.Field().String()).IsValid()
	})
	if err != nil {
		panic(err)
	}
}

// Scenario is one decoded document.
type Scenario struct {
	Name         string          `yaml:"name"`
	Task         TaskSpec        `yaml:"task" validate:"required"`
	Context      ContextSpec     `yaml:"context"`
	Thresholds   *ThresholdSpec  `yaml:"thresholds,omitempty"`
	Iterations   []IterationSpec `yaml:"iterations" validate:"dive"`
	AgentRequest *AgentRequest   `yaml:"agent_request,omitempty"`
	// Trigger is the default reason used by "replan split".
	Trigger string `yaml:"trigger,omitempty" validate:"omitempty,trigger"`
}

// TaskSpec is the task under execution.
type TaskSpec struct {
	ID                 string   `yaml:"id" validate:"required"`
	Name               string   `yaml:"name" validate:"required"`
	Description        string   `yaml:"description"`
	Files              []string `yaml:"files" validate:"dive,required"`
	EstimatedTime      int      `yaml:"estimated_time" validate:"gte=0"`
	Dependencies       []string `yaml:"dependencies" validate:"dive,required"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria" validate:"dive,required"`
}

// ContextSpec is the execution state at the start of the scenario. Expected
// files and the time estimate come from the task.
type ContextSpec struct {
	ElapsedTime         float64     `yaml:"elapsed_time" validate:"gte=0"`
	Iteration           int         `yaml:"iteration" validate:"gte=0"`
	MaxIterations       int         `yaml:"max_iterations" validate:"gte=0"`
	FilesModified       []string    `yaml:"files_modified" validate:"dive,required"`
	Errors              []ErrorSpec `yaml:"errors" validate:"dive"`
	ConsecutiveFailures int         `yaml:"consecutive_failures" validate:"gte=0"`
	AgentFeedback       string      `yaml:"agent_feedback"`
}

// ErrorSpec is one recorded error.
type ErrorSpec struct {
	Message   string `yaml:"message" validate:"required"`
	File      string `yaml:"file"`
	Iteration int    `yaml:"iteration" validate:"gte=0"`
}

// IterationSpec is one agent iteration to replay. Elapsed is the total
// elapsed minutes after the iteration; omit it to leave the clock alone.
type IterationSpec struct {
	FilesTouched []string    `yaml:"files_touched" validate:"dive,required"`
	Errors       []ErrorSpec `yaml:"errors" validate:"dive"`
	Success      bool        `yaml:"success"`
	Feedback     string      `yaml:"feedback"`
	Elapsed      *float64    `yaml:"elapsed" validate:"omitempty,gte=0"`
}

// ThresholdSpec overrides individual thresholds. Unset fields keep the
// configured value.
type ThresholdSpec struct {
	TimeExceededRatio   *float64 `yaml:"time_exceeded_ratio" validate:"omitempty,gt=0"`
	IterationsRatio     *float64 `yaml:"iterations_ratio" validate:"omitempty,gt=0,lte=1"`
	ScopeCreepFiles     *int     `yaml:"scope_creep_files" validate:"omitempty,gte=1"`
	ConsecutiveFailures *int     `yaml:"consecutive_failures" validate:"omitempty,gte=1"`
	ComplexityKeywords  []string `yaml:"complexity_keywords" validate:"omitempty,dive,required"`
}

// AgentRequest is an explicit replan request from the agent.
type AgentRequest struct {
	Reason           string   `yaml:"reason" validate:"required"`
	Blockers         []string `yaml:"blockers"`
	ComplexityDetail string   `yaml:"complexity_detail"`
	Suggestion       string   `yaml:"suggestion"`
}

// Load reads and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.NewNotFoundError("scenario", path).WithCause(err)
		}
		return nil, errors.Wrap(err, "failed to read scenario")
	}
	s, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return s, nil
}

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.NewValidationError("scenario is empty").WithCause(errors.ErrInvalidScenario)
		}
		return nil, errors.NewValidationError(err.Error()).WithCause(errors.ErrInvalidScenario)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the struct tags and reports the first failing field as
// an *errors.ValidationError matching errors.ErrInvalidScenario.
func (s *Scenario) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewValidationError(err.Error()).WithCause(errors.ErrInvalidScenario)
	}
	fe := verrs[0]
	return errors.NewValidationError(describe(fe)).
		WithField(fieldPath(fe)).
		WithValue(fe.Value()).
		WithCause(errors.ErrInvalidScenario)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	return path
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "trigger":
		return "must be one of: " + joinKinds()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func joinKinds() string {
	kinds := replan.TriggerKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Title is the scenario name, falling back to the task name.
func (s *Scenario) Title() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Task.Name
}

// BuildTask returns the task in pending status.
func (s *Scenario) BuildTask() replan.Task {
	return replan.Task{
		ID:                 s.Task.ID,
		Name:               s.Task.Name,
		Description:        s.Task.Description,
		Files:              append([]string(nil), s.Task.Files...),
		EstimatedTime:      s.Task.EstimatedTime,
		Dependencies:       append([]string(nil), s.Task.Dependencies...),
		AcceptanceCriteria: append([]string(nil), s.Task.AcceptanceCriteria...),
		Status:             replan.TaskPending,
	}
}

// BuildContext returns the initial execution context.
func (s *Scenario) BuildContext() replan.ExecutionContext {
	return replan.ExecutionContext{
		TaskID:              s.Task.ID,
		TaskName:            s.Task.Name,
		EstimatedTime:       float64(s.Task.EstimatedTime),
		ElapsedTime:         s.Context.ElapsedTime,
		Iteration:           s.Context.Iteration,
		MaxIterations:       s.Context.MaxIterations,
		FilesExpected:       append([]string(nil), s.Task.Files...),
		FilesModified:       append([]string(nil), s.Context.FilesModified...),
		Errors:              toErrors(s.Context.Errors),
		ConsecutiveFailures: s.Context.ConsecutiveFailures,
		AgentFeedback:       s.Context.AgentFeedback,
	}
}

// ApplyThresholds overlays the document's overrides on base and validates
// the result.
func (s *Scenario) ApplyThresholds(base replan.TriggerThresholds) (replan.TriggerThresholds, error) {
	th := base.Clone()
	if o := s.Thresholds; o != nil {
		if o.TimeExceededRatio != nil {
			th.TimeExceededRatio = *o.TimeExceededRatio
		}
		if o.IterationsRatio != nil {
			th.IterationsRatio = *o.IterationsRatio
		}
		if o.ScopeCreepFiles != nil {
			th.ScopeCreepFiles = *o.ScopeCreepFiles
		}
		if o.ConsecutiveFailures != nil {
			th.ConsecutiveFailures = *o.ConsecutiveFailures
		}
		if o.ComplexityKeywords != nil {
			th.ComplexityKeywords = append([]string(nil), o.ComplexityKeywords...)
		}
	}
	if err := th.Validate(); err != nil {
		return base, err
	}
	return th, nil
}

// Step is one iteration ready to feed into the engine. Elapsed is negative
// when the document leaves it unset.
type Step struct {
	Outcome replan.IterationOutcome
	Elapsed float64
}

// Steps converts the iterations in document order.
func (s *Scenario) Steps() []Step {
	steps := make([]Step, 0, len(s.Iterations))
	for _, it := range s.Iterations {
		elapsed := -1.0
		if it.Elapsed != nil {
			elapsed = *it.Elapsed
		}
		steps = append(steps, Step{
			Outcome: replan.IterationOutcome{
				FilesTouched: append([]string(nil), it.FilesTouched...),
				Errors:       toErrors(it.Errors),
				Success:      it.Success,
				Feedback:     it.Feedback,
			},
			Elapsed: elapsed,
		})
	}
	return steps
}

// Request returns the agent request, if the document has one.
func (s *Scenario) Request() (replan.AgentRequest, bool) {
	if s.AgentRequest == nil {
		return replan.AgentRequest{}, false
	}
	return replan.AgentRequest{
		Reason:           s.AgentRequest.Reason,
		Blockers:         append([]string(nil), s.AgentRequest.Blockers...),
		ComplexityDetail: s.AgentRequest.ComplexityDetail,
		Suggestion:       s.AgentRequest.Suggestion,
	}, true
}

func toErrors(specs []ErrorSpec) []replan.ErrorEntry {
	if len(specs) == 0 {
		return nil
	}
	out := make([]replan.ErrorEntry, len(specs))
	for i, e := range specs {
		out[i] = replan.ErrorEntry{Message: e.Message, File: e.File, Iteration: e.Iteration}
	}
	return out
}
