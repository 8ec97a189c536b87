// Package actionloop provides the core runtime for plan-and-execute agent
// request processing.
package actionloop

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/talentmesh/actionloop/internal/eventbus"
)

// Executor runs a plan's steps in order against the live context store.
// Step failures are recorded in the returned results, never propagated.
type Executor interface {
	ExecutePlan(ctx context.Context, sessionID string, plan []PlannedAction, store *ContextStore) []ActionResult
}

// Finalizer synthesizes the optional closing summary from the full run.
type Finalizer interface {
	Summarize(ctx context.Context, sessionID string, plan []PlannedAction, results []ActionResult, store *ContextStore) (string, error)
}

// Runtime is the main entry point into the actionloop request processor.
// It encapsulates all components required for processing a request.
type Runtime struct {
	// Core components
	registry  *Registry
	planner   Planner
	executor  Executor
	finalizer Finalizer
	loader    ContextLoader
	eventBus  eventbus.EventBus

	// Configuration
	config Config

	// Async processing
	asyncRuns      map[string]*RunContext
	asyncRunsMutex sync.RWMutex
}

// Config holds the configuration options for the Runtime.
type Config struct {
	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Option is a function that configures a Runtime instance.
type Option func(*Runtime)

// WithConfig sets the runtime configuration.
func WithConfig(config Config) Option {
	return func(r *Runtime) {
		r.config = config
	}
}

// WithRegistry sets the tool registry.
func WithRegistry(registry *Registry) Option {
	return func(r *Runtime) {
		r.registry = registry
	}
}

// WithPlanner sets the planner component.
func WithPlanner(planner Planner) Option {
	return func(r *Runtime) {
		r.planner = planner
	}
}

// WithExecutor sets the executor component.
func WithExecutor(executor Executor) Option {
	return func(r *Runtime) {
		r.executor = executor
	}
}

// WithFinalizer sets the finalizer component.
func WithFinalizer(finalizer Finalizer) Option {
	return func(r *Runtime) {
		r.finalizer = finalizer
	}
}

// WithContextLoader sets the conversation history loader.
func WithContextLoader(loader ContextLoader) Option {
	return func(r *Runtime) {
		r.loader = loader
	}
}

// New creates a new Runtime instance with the provided options.
func New(options ...Option) (*Runtime, error) {
	rt := &Runtime{
		config:    DefaultConfig(),
		asyncRuns: make(map[string]*RunContext),
	}

	for _, option := range options {
		option(rt)
	}

	// Validate required components
	if rt.registry == nil {
		return nil, NewConfigurationError("tool registry is required", nil)
	}
	if len(rt.registry.List()) == 0 {
		return nil, NewConfigurationError("at least one tool is required", nil)
	}
	if rt.planner == nil {
		return nil, NewConfigurationError("planner is required", nil)
	}
	if rt.executor == nil {
		return nil, NewConfigurationError("executor is required", nil)
	}

	// Initialize event bus if enabled but not provided
	if rt.config.EnableEventBus && rt.eventBus == nil {
		rt.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(rt.config.EventBusBufferSize),
			eventbus.WithWorkerCount(rt.config.EventBusWorkerCount),
		)
		log.Printf("initialized default channel-based event bus")
	}

	return rt, nil
}

// Registry returns the runtime's tool registry.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// EventBus returns the runtime's event bus, nil when disabled.
func (r *Runtime) EventBus() eventbus.EventBus {
	if !r.config.EnableEventBus {
		return nil
	}
	return r.eventBus
}

// Process handles one request end to end through the pushdown automaton
// state machine. Planner-phase failures produce a failure envelope; step
// failures stay inside the result list with the envelope still successful.
func (r *Runtime) Process(ctx context.Context, req *Request) *Response {
	stateMachine := r.createStateMachine()
	runContext := NewRunContext(req)

	stateMachine.Execute(ctx, runContext)

	if runContext.LastError != nil {
		if eb := r.EventBus(); eb != nil {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventRunFailure,
				runContext.LastError.Error(),
				"Runtime.Process",
				map[string]interface{}{
					"stage":       runContext.ErrorStage,
					"duration_ms": runContext.GetTotalDuration().Milliseconds(),
				},
			))
		}
	}

	return buildResponse(runContext)
}

// createStateMachine builds a state machine with all transitions for the
// request processing workflow.
func (r *Runtime) createStateMachine() *StateMachine {
	var eventBus eventbus.EventBus
	if r.config.EnableEventBus {
		eventBus = r.eventBus
	}

	components := RuntimeComponents{
		Registry:  r.registry,
		Planner:   r.planner,
		Executor:  r.executor,
		Finalizer: r.finalizer,
		Loader:    r.loader,
		Config:    r.config,
	}

	return CreateRunStateMachine(components, eventBus)
}

// buildResponse materializes the response envelope from a finished run.
func buildResponse(rCtx *RunContext) *Response {
	if rCtx.LastError != nil {
		return errorResponse(rCtx.LastError)
	}

	plan := rCtx.Plan
	if plan == nil {
		plan = []PlannedAction{}
	}
	results := rCtx.Results
	if results == nil {
		results = []ActionResult{}
	}

	return &Response{
		Success: true,
		Data: &ResponseData{
			Context:             rCtx.Store.Snapshot(),
			IntermediateResults: results,
			Plan:                plan,
			SummaryMessage:      rCtx.Summary,
		},
	}
}

// ProcessAsync starts an asynchronous run for the request. It returns a
// unique run ID that can be used to check the status or fetch the result.
func (r *Runtime) ProcessAsync(ctx context.Context, req *Request) (string, error) {
	runID := uuid.New().String()

	stateMachine := r.createStateMachine()
	runContext := NewRunContext(req)

	r.asyncRunsMutex.Lock()
	r.asyncRuns[runID] = runContext
	r.asyncRunsMutex.Unlock()

	// The run outlives the caller's context; cancellation goes through
	// CancelAsyncRun.
	asyncCtx, cancel := context.WithCancel(context.Background())
	runContext.StateData["cancel"] = cancel

	if r.config.EnableEventBus && r.eventBus != nil {
		startEvent := eventbus.NewEvent(
			eventbus.EventRunAsyncStarted,
			req.SessionID,
			"Runtime.ProcessAsync",
			map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
				"run_id":    runID,
			},
		)
		r.eventBus.Publish(ctx, startEvent)
	}

	go func() {
		defer cancel()

		err := stateMachine.Execute(asyncCtx, runContext)

		r.asyncRunsMutex.Lock()
		if rCtx, exists := r.asyncRuns[runID]; exists && !rCtx.IsTerminal() {
			if err != nil {
				rCtx.SetError(err, string(rCtx.CurrentState))
			} else {
				rCtx.Complete()
			}
		}
		r.asyncRunsMutex.Unlock()

		if r.config.EnableEventBus && r.eventBus != nil {
			eventType := eventbus.EventRunAsyncSuccess
			metadata := map[string]interface{}{
				"run_id":      runID,
				"duration_ms": runContext.GetTotalDuration().Milliseconds(),
			}
			if err != nil {
				eventType = eventbus.EventRunAsyncFailure
				metadata["error"] = err.Error()
				metadata["error_stage"] = runContext.ErrorStage
			}

			completionEvent := eventbus.NewEvent(
				eventType,
				req.SessionID,
				"Runtime.ProcessAsync",
				metadata,
			)
			// Use a background context since the original may be done
			r.eventBus.Publish(context.Background(), completionEvent)
		}
	}()

	return runID, nil
}

// Close shuts down the runtime's event bus.
func (r *Runtime) Close() error {
	if r.eventBus != nil {
		return r.eventBus.Close()
	}
	return nil
}
