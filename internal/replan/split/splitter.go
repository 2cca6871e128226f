package split

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
)

const (
	defaultMaxSubtasks = 5
	defaultMaxDepth    = 3
)

// partMarker matches one split level encoded in a task name.
var partMarker = regexp.MustCompile(`\bPart \d+\b`)

// partSuffix matches the trailing " - Part N: focus" added by a previous split.
var partSuffix = regexp.MustCompile(`\s+-\s+Part \d+:[^:]*$`)

// Option configures a Splitter.
type Option func(*Splitter)

// WithMaxSubtasks caps how many subtasks a time-based split produces.
func WithMaxSubtasks(n int) Option {
	return func(s *Splitter) {
		if n >= 2 {
			s.maxSubtasks = n
		}
	}
}

// WithMaxDepth sets how many "Part N" markers a task name may carry before
// the task is considered too deeply split.
func WithMaxDepth(n int) Option {
	return func(s *Splitter) {
		if n >= 1 {
			s.maxDepth = n
		}
	}
}

// WithIDGenerator overrides how subtask IDs are generated. Useful in tests.
func WithIDGenerator(fn func(parentID string, n int) string) Option {
	return func(s *Splitter) {
		s.newID = fn
	}
}

// Splitter is the default split strategy. It holds no mutable state and is
// safe for concurrent use.
type Splitter struct {
	maxSubtasks int
	maxDepth    int
	newID       func(parentID string, n int) string
}

// New creates a Splitter.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		maxSubtasks: defaultMaxSubtasks,
		maxDepth:    defaultMaxDepth,
		newID:       defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultID(parentID string, _ int) string {
	return fmt.Sprintf("%s-%s", parentID, uuid.New().String()[:8])
}

// splittableTriggers are the triggers for which a split strategy exists.
var splittableTriggers = map[replan.TriggerKind]bool{
	replan.TriggerScopeCreep:           true,
	replan.TriggerComplexityDiscovered: true,
	replan.TriggerTimeExceeded:         true,
	replan.TriggerIterationsHigh:       true,
}

// CanSplit reports whether task can be split for reason.
//
// The depth guard counts "Part N" markers in the task name. Because new
// names strip the previous suffix, the count only grows when names are
// nested by hand; a dedicated depth field would be more reliable.
func (s *Splitter) CanSplit(task replan.Task, reason replan.ReplanReason) bool {
	if len(task.Files) < 2 {
		return false
	}
	if !splittableTriggers[reason.Trigger] {
		return false
	}
	return SplitDepth(task.Name) < s.maxDepth
}

// Explain returns why CanSplit would refuse, or "" if it would not.
func (s *Splitter) Explain(task replan.Task, reason replan.ReplanReason) string {
	switch {
	case len(task.Files) < 2:
		return fmt.Sprintf("task has %d file(s); at least 2 are needed to split", len(task.Files))
	case !splittableTriggers[reason.Trigger]:
		return fmt.Sprintf("no split strategy for trigger %q", reason.Trigger)
	case SplitDepth(task.Name) >= s.maxDepth:
		return fmt.Sprintf("task has already been split %d times (limit %d)", SplitDepth(task.Name), s.maxDepth)
	}
	return ""
}

// SplitDepth counts the "Part N" markers in a task name.
func SplitDepth(name string) int {
	return len(partMarker.FindAllString(name, -1))
}

// BaseName strips a trailing "- Part N: focus" suffix from a task name.
func BaseName(name string) string {
	return strings.TrimSpace(partSuffix.ReplaceAllString(name, ""))
}

// EstimateSubtasks returns how many subtasks a task should be split into,
// based on its file count.
func (s *Splitter) EstimateSubtasks(task replan.Task) int {
	n := len(task.Files)
	var est int
	switch {
	case n <= 3:
		est = 2
	case n <= 6:
		est = 3
	case n <= 10:
		est = 4
	default:
		est = int(math.Ceil(float64(n) / 3))
	}
	return min(est, s.maxSubtasks)
}

// Split partitions task into subtasks using the strategy for reason's
// trigger. The returned subtasks are pending, reference task as their
// parent, and carry a dependency chain.
func (s *Splitter) Split(ctx context.Context, task replan.Task, reason replan.ReplanReason) ([]replan.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg := s.Explain(task, reason); msg != "" {
		return nil, errors.NewSplitError(msg, errors.ErrUnsplittable).WithTaskID(task.ID)
	}

	var groups []group
	switch reason.Trigger {
	case replan.TriggerComplexityDiscovered:
		groups = byFunctionality(task.Files)
	case replan.TriggerTimeExceeded:
		groups = byTime(task.Files, s.EstimateSubtasks(task))
	default:
		groups = byFiles(task.Files)
	}
	if len(groups) < 2 {
		return nil, errors.NewSplitError("strategy produced fewer than two groups", errors.ErrSplitFailed).
			WithTaskID(task.ID).WithTrigger(string(reason.Trigger))
	}

	subtasks := s.build(task, groups)
	distributeCriteria(task.AcceptanceCriteria, subtasks)
	linkDependencies(subtasks)
	return subtasks, nil
}

// build turns file groups into subtasks with names, IDs, and proportional
// time estimates.
func (s *Splitter) build(task replan.Task, groups []group) []replan.Task {
	base := BaseName(task.Name)
	total := len(task.Files)
	out := make([]replan.Task, 0, len(groups))
	for i, g := range groups {
		n := i + 1
		desc := fmt.Sprintf("%s: %s", g.focus, strings.Join(g.files, ", "))
		if task.Description != "" {
			desc = fmt.Sprintf("%s\n\nFocus - %s", task.Description, desc)
		}
		out = append(out, replan.Task{
			ID:            s.newID(task.ID, n),
			Name:          fmt.Sprintf("%s - Part %d: %s", base, n, g.focus),
			Description:   desc,
			Files:         append([]string(nil), g.files...),
			EstimatedTime: int(math.Round(float64(task.EstimatedTime) * float64(len(g.files)) / float64(total))),
			Dependencies:  append([]string(nil), task.Dependencies...),
			Status:        replan.TaskPending,
			ParentTaskID:  task.ID,
		})
	}
	return out
}
