package monitor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/event"
	"github.com/Iron-Ham/replan/internal/logging"
	"github.com/Iron-Ham/replan/internal/replan"
	"github.com/Iron-Ham/replan/internal/replan/split"
)

const defaultConcurrency = 8

// Splitter partitions a task into subtasks. split.Splitter is the default;
// strategies that perform I/O should honour ctx.
type Splitter interface {
	CanSplit(task replan.Task, reason replan.ReplanReason) bool
	Split(ctx context.Context, task replan.Task, reason replan.ReplanReason) ([]replan.Task, error)
}

// explainer is implemented by splitters that can say why they refuse a task.
type explainer interface {
	Explain(task replan.Task, reason replan.ReplanReason) string
}

// MonitoredTask is a read-only snapshot of one monitoring entry.
type MonitoredTask struct {
	TaskID    string                  `json:"task_id"`
	StartedAt time.Time               `json:"started_at"`
	Context   replan.ExecutionContext `json:"context"`
	Active    bool                    `json:"active"`
	Decisions int                     `json:"decisions"`
}

// entry is the mutable state for one task. active is atomic so the table
// can be counted without taking every entry lock.
type entry struct {
	mu        sync.Mutex
	taskID    string
	startedAt time.Time
	ctx       replan.ExecutionContext
	history   *history
	active    atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds sets the initial trigger thresholds. Invalid thresholds
// are ignored and the defaults kept.
func WithThresholds(th replan.TriggerThresholds) Option {
	return func(e *Engine) {
		if th.Validate() == nil {
			e.thresholds = th.Clone()
		}
	}
}

// WithSplitter replaces the default split strategy.
func WithSplitter(s Splitter) Option {
	return func(e *Engine) {
		if s != nil {
			e.splitter = s
		}
	}
}

// WithBus publishes lifecycle and decision events on bus.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records engine activity in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithHistoryLimit keeps only the most recent n decisions per task.
// Zero, the default, keeps every decision.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.historyLimit = n
		}
	}
}

// WithClock overrides the time source used to stamp decisions and events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithConcurrency bounds how many checks CheckAll runs in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// Engine monitors in-flight tasks and decides when they need replanning.
//
// Operations on distinct task IDs are safe to call concurrently. Two
// concurrent calls for the same task are serialized by the entry lock, but
// their relative order is up to the caller.
type Engine struct {
	mu    sync.RWMutex
	tasks map[string]*entry

	thMu       sync.RWMutex
	thresholds replan.TriggerThresholds

	splitter     Splitter
	bus          *event.Bus
	logger       *logging.Logger
	metrics      *Metrics
	historyLimit int
	concurrency  int
	now          func() time.Time
}

// NewEngine creates an Engine with default thresholds and the default
// splitter.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tasks:       make(map[string]*entry),
		thresholds:  replan.DefaultThresholds(),
		splitter:    split.New(),
		logger:      logging.NopLogger(),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// StartMonitoring begins monitoring taskID with ctx as its initial context.
// Restarting an existing task replaces its entry and history.
func (e *Engine) StartMonitoring(taskID string, ctx replan.ExecutionContext) {
	now := e.now()
	ctx = ctx.Clone()
	if ctx.TaskID == "" {
		ctx.TaskID = taskID
	}

	en := &entry{
		taskID:    taskID,
		startedAt: now,
		ctx:       ctx,
		history:   newHistory(e.historyLimit),
	}
	en.active.Store(true)

	e.mu.Lock()
	e.tasks[taskID] = en
	e.mu.Unlock()

	e.refreshMonitored()
	e.logger.WithTask(taskID).Info("monitoring started", "task_name", ctx.TaskName)
	e.publish(event.NewMonitoringStartedEvent(taskID, ctx.TaskName, now))
}

// StopMonitoring deactivates taskID. Its context and history stay queryable
// until Clear. Returns false if the task was not actively monitored.
func (e *Engine) StopMonitoring(taskID string) bool {
	return e.deactivate(taskID, "stopped")
}

func (e *Engine) deactivate(taskID, reason string) bool {
	en := e.lookup(taskID)
	if en == nil || !en.active.CompareAndSwap(true, false) {
		return false
	}

	e.refreshMonitored()
	e.logger.WithTask(taskID).Info("monitoring stopped", "reason", reason)
	e.publish(event.NewMonitoringStoppedEvent(taskID, reason, e.now()))
	return true
}

// Clear removes every entry, active or not, together with its history.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.tasks = make(map[string]*entry)
	e.mu.Unlock()

	e.refreshMonitored()
	e.logger.Info("monitoring table cleared")
}

// UpdateContext merges u into the context of an actively monitored task.
// Returns false, changing nothing, for unknown or inactive tasks.
func (e *Engine) UpdateContext(taskID string, u replan.ContextUpdate) bool {
	return e.mutate(taskID, func(ctx replan.ExecutionContext) replan.ExecutionContext {
		return ctx.Merge(u)
	})
}

// RecordIteration folds one iteration outcome into the task's context.
// elapsed is the total elapsed time; a negative value leaves it unchanged.
// Returns false for unknown or inactive tasks.
func (e *Engine) RecordIteration(taskID string, o replan.IterationOutcome, elapsed float64) bool {
	return e.mutate(taskID, func(ctx replan.ExecutionContext) replan.ExecutionContext {
		return ctx.ApplyOutcome(o, elapsed)
	})
}

func (e *Engine) mutate(taskID string, fn func(replan.ExecutionContext) replan.ExecutionContext) bool {
	en := e.lookup(taskID)
	if en == nil {
		e.skipped("update", taskID, errors.ErrTaskNotMonitored)
		return false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if !en.active.Load() {
		e.skipped("update", taskID, errors.ErrTaskInactive)
		return false
	}
	en.ctx = fn(en.ctx)
	return true
}

// skipped logs an operation that degraded to a no-op.
func (e *Engine) skipped(op, taskID string, cause error) {
	err := errors.NewMonitorError(op, cause).WithTaskID(taskID)
	e.logger.WithTask(taskID).Debug(op+" skipped", "error", err)
}

// Context returns a copy of the task's current execution context.
func (e *Engine) Context(taskID string) (replan.ExecutionContext, bool) {
	en := e.lookup(taskID)
	if en == nil {
		return replan.ExecutionContext{}, false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.ctx.Clone(), true
}

// -----------------------------------------------------------------------------
// Decisions
// -----------------------------------------------------------------------------

// CheckReplanningNeeded evaluates every trigger against the task's current
// context, records the decision in its history, and returns it. Unknown and
// inactive tasks get a no-replan decision that is not recorded.
func (e *Engine) CheckReplanningNeeded(taskID string) replan.ReplanDecision {
	return e.decide(taskID, func(en *entry, th replan.TriggerThresholds, now time.Time) replan.ReplanDecision {
		return replan.Evaluate(en.ctx, th, now)
	})
}

// EvaluateAllTriggers runs the aggregator against ctx using the current
// thresholds. Nothing is recorded.
func (e *Engine) EvaluateAllTriggers(ctx replan.ExecutionContext) replan.ReplanDecision {
	return replan.Evaluate(ctx, e.Thresholds(), e.now())
}

// HandleAgentRequest records an explicit replan request from the agent. The
// request's reason becomes the task's agent feedback, so later checks scan
// it too, and the synthesized agent_request signal is aggregated together
// with freshly evaluated triggers.
func (e *Engine) HandleAgentRequest(taskID string, req replan.AgentRequest) replan.ReplanDecision {
	return e.decide(taskID, func(en *entry, th replan.TriggerThresholds, now time.Time) replan.ReplanDecision {
		if req.Reason != "" {
			en.ctx.AgentFeedback = req.Reason
		}
		results := append(replan.EvaluateAll(en.ctx, th), replan.AgentRequestResult(req))
		return replan.Aggregate(en.ctx, results, now)
	})
}

func (e *Engine) decide(taskID string, eval func(*entry, replan.TriggerThresholds, time.Time) replan.ReplanDecision) replan.ReplanDecision {
	now := e.now()
	en := e.lookup(taskID)
	if en == nil {
		e.skipped("check", taskID, errors.ErrTaskNotMonitored)
		return replan.NoReplan(now)
	}

	th := e.Thresholds()
	en.mu.Lock()
	if !en.active.Load() {
		en.mu.Unlock()
		e.skipped("check", taskID, errors.ErrTaskInactive)
		return replan.NoReplan(now)
	}
	decision := eval(en, th, now)
	en.history.add(decision)
	en.mu.Unlock()

	e.emitDecision(taskID, decision)
	return decision
}

func (e *Engine) emitDecision(taskID string, d replan.ReplanDecision) {
	e.metrics.observeDecision(d)

	log := e.logger.WithTask(taskID)
	if !d.ShouldReplan {
		log.Debug("no replanning needed")
	} else {
		log.WithTrigger(d.Reason.Trigger.String()).Info("replanning suggested",
			"action", d.SuggestedAction.String(),
			"confidence", d.Confidence,
			"activated", len(d.Activated))
	}

	for _, r := range d.Activated {
		e.publish(event.NewTriggerActivatedEvent(taskID, r.Trigger.String(), r.Confidence, r.Details, d.Timestamp))
	}
	trigger := ""
	if d.Reason != nil {
		trigger = d.Reason.Trigger.String()
	}
	e.publish(event.NewDecisionMadeEvent(taskID, d.ShouldReplan, trigger, d.SuggestedAction.String(), d.Confidence, d.Timestamp))
}

// CheckAll runs CheckReplanningNeeded for each distinct ID in parallel.
// With no IDs it checks every actively monitored task.
func (e *Engine) CheckAll(taskIDs ...string) map[string]replan.ReplanDecision {
	if len(taskIDs) == 0 {
		for _, t := range e.MonitoredTasks() {
			if t.Active {
				taskIDs = append(taskIDs, t.TaskID)
			}
		}
	}

	seen := make(map[string]bool, len(taskIDs))
	out := make(map[string]replan.ReplanDecision, len(taskIDs))
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(e.concurrency)
	for _, id := range taskIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		p.Go(func() {
			d := e.CheckReplanningNeeded(id)
			mu.Lock()
			out[id] = d
			mu.Unlock()
		})
	}
	p.Wait()
	return out
}

// -----------------------------------------------------------------------------
// Actions
// -----------------------------------------------------------------------------

// Replan executes the action the reason's trigger maps to on its own, using
// the same rules as decision aggregation. The task's status is updated in
// place; the result carries a copy of the task as it was before.
//
// Replan acts on the Task the caller holds and does not require a monitoring
// entry for it. Only the abort path touches monitoring state, and for an
// unmonitored task that part is a logged no-op.
func (e *Engine) Replan(ctx context.Context, task *replan.Task, reason replan.ReplanReason) replan.ReplanResult {
	return e.ReplanWithAction(ctx, task, reason, replan.ActionForTrigger(reason.Trigger))
}

// Abort marks the task failed and stops monitoring it.
func (e *Engine) Abort(ctx context.Context, task *replan.Task, reason replan.ReplanReason) replan.ReplanResult {
	return e.ReplanWithAction(ctx, task, reason, replan.ActionAbort)
}

// ReplanWithAction executes action for task. Failures are reported in the
// result, never returned or raised.
func (e *Engine) ReplanWithAction(ctx context.Context, task *replan.Task, reason replan.ReplanReason, action replan.Action) replan.ReplanResult {
	if task == nil {
		return replan.ReplanResult{
			Action:  action,
			Message: errors.NewValidationError("task is required").WithField("task").Error(),
			Metrics: reason.Metrics,
		}
	}

	result := replan.ReplanResult{
		Action:       action,
		OriginalTask: task.Clone(),
		Metrics:      reason.Metrics,
	}
	log := e.logger.WithTask(task.ID).WithTrigger(reason.Trigger.String())

	switch action {
	case replan.ActionSplit:
		e.executeSplit(ctx, task, reason, &result, log)
	case replan.ActionRescope:
		result.Success = true
		result.Message = fmt.Sprintf("Task should be rescoped: %s. Reduce it to the originally expected files and move the remaining work into a follow-up task.", reason.Details)
	case replan.ActionEscalate:
		task.Status = replan.TaskEscalated
		result.Success = true
		result.Message = fmt.Sprintf("Task escalated for human review: %s", reason.Details)
	case replan.ActionAbort:
		task.Status = replan.TaskFailed
		if !e.deactivate(task.ID, "aborted") {
			cause := errors.ErrTaskInactive
			if e.lookup(task.ID) == nil {
				cause = errors.ErrTaskNotMonitored
			}
			e.skipped("abort", task.ID, cause)
		}
		result.Success = true
		result.Message = fmt.Sprintf("Task aborted: %s", reason.Details)
	case replan.ActionContinue:
		result.Success = true
		result.Message = "No replanning needed; continuing with the current plan"
	default:
		result.Message = errors.NewValidationError("unknown action").WithField("action").WithValue(action).Error()
	}

	if result.Success {
		log.Info("replan executed", "action", action.String(), "new_tasks", len(result.NewTasks))
	}

	e.metrics.observeResult(result)
	e.publish(event.NewReplanExecutedEvent(task.ID, action.String(), result.Success, result.Message, taskIDs(result.NewTasks), e.now()))
	return result
}

func (e *Engine) executeSplit(ctx context.Context, task *replan.Task, reason replan.ReplanReason, result *replan.ReplanResult, log *logging.Logger) {
	if !e.splitter.CanSplit(*task, reason) {
		msg := "task cannot be split"
		if ex, ok := e.splitter.(explainer); ok {
			if why := ex.Explain(*task, reason); why != "" {
				msg = why
			}
		}
		result.Message = fmt.Sprintf("Cannot split task: %s", msg)
		log.Warn("split refused", "reason", msg)
		return
	}

	subtasks, err := e.safeSplit(ctx, *task, reason)
	if err != nil {
		result.Message = fmt.Sprintf("Split failed: %v", err)
		log.Warn("split failed", "error", err.Error())
		return
	}

	task.Status = replan.TaskSplit
	result.Success = true
	result.NewTasks = subtasks
	result.Message = fmt.Sprintf("Split task into %d subtasks: %s", len(subtasks), reason.Details)
}

// safeSplit runs the splitter, converting a panic into an error.
func (e *Engine) safeSplit(ctx context.Context, task replan.Task, reason replan.ReplanReason) (subtasks []replan.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			subtasks = nil
			err = errors.NewSplitError(fmt.Sprintf("splitter panicked: %v", r), errors.ErrSplitFailed).
				WithTaskID(task.ID).
				WithTrigger(reason.Trigger.String())
		}
	}()
	return e.splitter.Split(ctx, task, reason)
}

// -----------------------------------------------------------------------------
// Configuration and snapshots
// -----------------------------------------------------------------------------

// SetThresholds replaces the thresholds used by every subsequent check.
func (e *Engine) SetThresholds(th replan.TriggerThresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	e.thMu.Lock()
	e.thresholds = th.Clone()
	e.thMu.Unlock()

	e.logger.Info("thresholds updated",
		"time_exceeded_ratio", th.TimeExceededRatio,
		"iterations_ratio", th.IterationsRatio,
		"scope_creep_files", th.ScopeCreepFiles,
		"consecutive_failures", th.ConsecutiveFailures)
	return nil
}

// Thresholds returns a copy of the current thresholds.
func (e *Engine) Thresholds() replan.TriggerThresholds {
	e.thMu.RLock()
	defer e.thMu.RUnlock()
	return e.thresholds.Clone()
}

// MonitoredTasks returns a snapshot of every entry, active or not, sorted
// by task ID.
func (e *Engine) MonitoredTasks() []MonitoredTask {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.tasks))
	for _, en := range e.tasks {
		entries = append(entries, en)
	}
	e.mu.RUnlock()

	out := make([]MonitoredTask, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		out = append(out, MonitoredTask{
			TaskID:    en.taskID,
			StartedAt: en.startedAt,
			Context:   en.ctx.Clone(),
			Active:    en.active.Load(),
			Decisions: en.history.len(),
		})
		en.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b MonitoredTask) int { return cmp.Compare(a.TaskID, b.TaskID) })
	return out
}

// IsMonitored reports whether taskID is actively monitored.
func (e *Engine) IsMonitored(taskID string) bool {
	en := e.lookup(taskID)
	return en != nil && en.active.Load()
}

// DecisionHistory returns the task's decisions, oldest first. It returns
// nil for unknown tasks.
func (e *Engine) DecisionHistory(taskID string) []replan.ReplanDecision {
	en := e.lookup(taskID)
	if en == nil {
		return nil
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.history.snapshot()
}

func (e *Engine) lookup(taskID string) *entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tasks[taskID]
}

func (e *Engine) refreshMonitored() {
	if e.metrics == nil {
		return
	}
	e.mu.RLock()
	n := 0
	for _, en := range e.tasks {
		if en.active.Load() {
			n++
		}
	}
	e.mu.RUnlock()
	e.metrics.setMonitored(n)
}

func (e *Engine) publish(ev event.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func taskIDs(tasks []replan.Task) []string {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
