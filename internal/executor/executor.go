// Package executor runs generated plans step by step against the live
// context store, with per-step result caching backed by the action log.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/talentmesh/actionloop"
)

// Executor executes plan steps strictly sequentially. A failing step is
// recorded and the loop moves on; only context cancellation stops the run.
type Executor struct {
	registry  *actionloop.Registry
	actionLog actionloop.ActionLog
	notifier  actionloop.Notifier
	embedder  actionloop.Embedder

	metrics Metrics
}

// Option configures the Executor.
type Option func(*Executor)

// WithActionLog sets the persistent action log used for step caching.
func WithActionLog(actionLog actionloop.ActionLog) Option {
	return func(e *Executor) {
		e.actionLog = actionLog
	}
}

// WithNotifier sets the user-facing notifier.
func WithNotifier(notifier actionloop.Notifier) Option {
	return func(e *Executor) {
		e.notifier = notifier
	}
}

// WithEmbedder sets the embedder used to fingerprint step descriptions.
func WithEmbedder(embedder actionloop.Embedder) Option {
	return func(e *Executor) {
		e.embedder = embedder
	}
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *actionloop.Registry, options ...Option) *Executor {
	e := &Executor{registry: registry}
	for _, option := range options {
		option(e)
	}
	if registry == nil || len(registry.List()) == 0 {
		log.Println("warning: executor initialized with an empty or nil tool registry")
	}
	return e
}

// ExecutePlan runs the plan's steps in order. The returned results are
// append-only and ordered by step index.
func (e *Executor) ExecutePlan(ctx context.Context, sessionID string, plan []actionloop.PlannedAction, store *actionloop.ContextStore) []actionloop.ActionResult {
	startTime := time.Now()
	log.Printf("starting plan execution (session: %s, total_steps: %d)", sessionID, len(plan))

	results := make([]actionloop.ActionResult, 0, len(plan))

	for index, action := range plan {
		if ctx.Err() != nil {
			cancelled := actionloop.NewCancelledError("execution", ctx.Err())
			results = append(results, actionloop.ActionResult{
				Tool:    action.Tool,
				Input:   action.Args,
				Success: false,
				Error:   cancelled.Error(),
			})
			e.metrics.recordFailure()
			break
		}

		result := e.executeStep(ctx, sessionID, index, action, store)
		results = append(results, result)
	}

	m := e.metrics.Copy()
	log.Printf("plan execution finished (session: %s, steps: %d, successful: %d, failed: %d, reused: %d, duration: %v)",
		sessionID, len(results), m.StepsSuccessful, m.StepsFailed, m.StepsReused, time.Since(startTime))

	return results
}

// executeStep runs one plan step in isolation: announce, bind, validate,
// cache lookup, invoke, persist, write context.
func (e *Executor) executeStep(ctx context.Context, sessionID string, index int, action actionloop.PlannedAction, store *actionloop.ContextStore) actionloop.ActionResult {
	e.announce(ctx, sessionID, action)

	tool, err := e.registry.Get(action.Tool)
	if err != nil {
		return e.failStep(ctx, sessionID, index, action, action.Args, "", err)
	}

	// Binding is authoritative at execution time: plan args are copied and
	// missing required inputs are filled from the live context.
	args := e.bindArgs(action, tool.Spec(), store)

	if err := e.validate(tool, args, store); err != nil {
		return e.failStep(ctx, sessionID, index, action, args, "", err)
	}

	argsHash, err := actionloop.HashArgs(args)
	if err != nil {
		return e.failStep(ctx, sessionID, index, action, args, "",
			actionloop.NewInternalError("execution", "failed to fingerprint step arguments", err))
	}

	if cached := e.lookupCached(ctx, sessionID, action.Tool, argsHash); cached != nil {
		store.Set(action.Tool, cached.Output)
		store.MergeDownstream(cached.Downstream)
		e.metrics.recordReuse()
		return actionloop.ActionResult{
			Tool:    action.Tool,
			Input:   args,
			Output:  cached.Output,
			Success: true,
			Reused:  true,
		}
	}

	// Tools see the merged view of the context and their bound args; args win
	// on key collisions.
	input := store.Snapshot()
	for k, v := range args {
		input[k] = v
	}

	res, execErr := tool.Execute(ctx, input)
	if execErr != nil {
		wrapped := execErr
		if _, ok := execErr.(*actionloop.LoopError); !ok {
			wrapped = actionloop.NewToolExecutionError("execution", action.Tool, execErr)
		}
		e.persist(ctx, sessionID, index, action, args, argsHash, nil, nil, wrapped)
		return e.failStep(ctx, sessionID, index, action, args, argsHash, wrapped)
	}
	if res == nil {
		res = &actionloop.ToolResult{}
	}

	store.Set(action.Tool, res.Output)
	store.MergeDownstream(res.Downstream)

	e.persist(ctx, sessionID, index, action, args, argsHash, res.Output, res.Downstream, nil)
	e.metrics.recordSuccess()

	return actionloop.ActionResult{
		Tool:    action.Tool,
		Input:   args,
		Output:  res.Output,
		Success: true,
	}
}

// bindArgs copies the planned args and fills missing required inputs from the
// context store: top-level keys first, then the downstream data map.
func (e *Executor) bindArgs(action actionloop.PlannedAction, spec actionloop.ToolSpec, store *actionloop.ContextStore) map[string]any {
	args := make(map[string]any, len(action.Args))
	for k, v := range action.Args {
		args[k] = copyValue(v)
	}

	for _, name := range spec.RequiredInputs {
		if _, ok := args[name]; ok {
			continue
		}
		if v, ok := store.Get(name); ok {
			args[name] = copyValue(v)
			continue
		}
		if down := store.Downstream(); down != nil {
			if v, ok := down[name]; ok {
				args[name] = copyValue(v)
			}
		}
	}

	return args
}

// copyValue deep-copies JSON-shaped values so tools cannot mutate the plan
// or the context through shared maps.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}

// lookupCached returns a prior successful attempt with the exact same args
// hash and a structural payload, or nil when the step must run fresh.
func (e *Executor) lookupCached(ctx context.Context, sessionID, toolID, argsHash string) *actionloop.LogEntry {
	if e.actionLog == nil {
		return nil
	}
	entry, err := e.actionLog.FindLatest(ctx, sessionID, toolID)
	if err != nil {
		log.Printf("action log lookup failed (session: %s, tool: %s): %v", sessionID, toolID, err)
		return nil
	}
	if entry == nil || !entry.Success || entry.Output == nil || entry.ArgsHash != argsHash {
		return nil
	}
	return entry
}

// persist records the attempt in the action log. Best-effort: log failures
// never affect the step outcome.
func (e *Executor) persist(ctx context.Context, sessionID string, index int, action actionloop.PlannedAction, args map[string]any, argsHash string, output any, downstream map[string]any, stepErr error) {
	if e.actionLog == nil {
		return
	}

	entry := actionloop.LogEntry{
		SessionID:  sessionID,
		Tool:       action.Tool,
		StepIndex:  index,
		ArgsHash:   argsHash,
		Input:      args,
		Output:     output,
		Downstream: downstream,
		Success:    stepErr == nil,
		CreatedAt:  time.Now().UTC(),
	}
	if stepErr != nil {
		entry.Error = stepErr.Error()
	}
	if e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, stepDescription(action)); err == nil {
			entry.Embedding = vec
		}
	}

	if err := e.actionLog.Append(ctx, entry); err != nil {
		log.Printf("failed to persist action (session: %s, tool: %s): %v", sessionID, action.Tool, err)
	}
}

// stepDescription is the text fingerprinted for a step.
func stepDescription(action actionloop.PlannedAction) string {
	if action.Reason != "" {
		return action.Reason
	}
	if action.Announcement != "" {
		return action.Announcement
	}
	return action.Tool
}

// announce sends the step's progress announcement. Best-effort. Runs with no
// session (tests, one-off invocations) produce no user-facing messages.
func (e *Executor) announce(ctx context.Context, sessionID string, action actionloop.PlannedAction) {
	if e.notifier == nil || sessionID == "" || action.Announcement == "" {
		return
	}
	if err := e.notifier.Notify(ctx, sessionID, action.Announcement, map[string]any{"tool": action.Tool}); err != nil {
		log.Printf("announcement failed (session: %s, tool: %s): %v", sessionID, action.Tool, err)
	}
}

// failStep records the failure, notifies the user at most once, and returns
// the failed result.
func (e *Executor) failStep(ctx context.Context, sessionID string, index int, action actionloop.PlannedAction, args map[string]any, argsHash string, stepErr error) actionloop.ActionResult {
	log.Printf("step failed (session: %s, step: %d, tool: %s): %v", sessionID, index, action.Tool, stepErr)
	e.metrics.recordFailure()

	// Tools that already surfaced the failure through the notifier mark the
	// error; do not message the user twice. No session, no user to message.
	if e.notifier != nil && sessionID != "" && !actionloop.IsUserNotified(stepErr) {
		msg := fmt.Sprintf("The step '%s' could not be completed.", action.Tool)
		if err := e.notifier.Notify(ctx, sessionID, msg, map[string]any{"tool": action.Tool, "error": stepErr.Error()}); err != nil {
			log.Printf("failure notification failed (session: %s, tool: %s): %v", sessionID, action.Tool, err)
		}
	}

	return actionloop.ActionResult{
		Tool:    action.Tool,
		Input:   args,
		Success: false,
		Error:   resultError(stepErr),
	}
}

// resultError is the message stored on the failed result. Execution wrappers
// are unwrapped so callers see the tool's own error text; the wrapped error
// still goes to the log and the notifier.
func resultError(stepErr error) string {
	if loopErr, ok := stepErr.(*actionloop.LoopError); ok &&
		loopErr.Code == actionloop.ErrCodeToolExecution && loopErr.Cause != nil {
		return loopErr.Cause.Error()
	}
	return stepErr.Error()
}

// GetMetrics returns a copy of the executor's counters.
func (e *Executor) GetMetrics() Metrics {
	return e.metrics.Copy()
}
