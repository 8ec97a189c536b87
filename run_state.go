package actionloop

import (
	"context"
	"fmt"
	"time"

	"github.com/talentmesh/actionloop/internal/eventbus"
)

// The pushdown automaton approach was kept for the request loop because the
// state stack preserves execution history and the machine extends cleanly to
// retries or alternative paths between stages.

// RunState represents the current state of a request run.
type RunState string

const (
	// StateInit is the initial state of the run
	StateInit RunState = "init"
	// StatePlanning represents the plan generation phase
	StatePlanning RunState = "planning"
	// StateExecution represents the sequential step execution phase
	StateExecution RunState = "execution"
	// StateFinalize represents the summary synthesis phase
	StateFinalize RunState = "finalize"
	// StateError represents an error state
	StateError RunState = "error"
	// StateComplete represents the completed state
	StateComplete RunState = "complete"
	// StateCancelled represents the cancelled state
	StateCancelled RunState = "cancelled"
	// StateUnknown is used when the status of an async run cannot be determined.
	StateUnknown RunState = "unknown"
)

// RunContext carries the data for one request run. It acts as the "tape" of
// the pushdown automaton.
type RunContext struct {
	// Input
	Request *Request
	Mode    string
	Store   *ContextStore

	// Intermediate results
	History *ConversationContext
	Plan    []PlannedAction
	Results []ActionResult
	Summary string

	// Error handling
	LastError  error
	ErrorStage string

	// State management
	CurrentState RunState
	StateStack   []RunState
	StateData    map[string]any

	// Timestamp tracking
	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[RunState]time.Time
}

// NewRunContext creates a run context for the given request, seeding the
// context store from its envelope.
func NewRunContext(req *Request) *RunContext {
	return &RunContext{
		Request:         req,
		Store:           NewContextStoreFromRequest(req),
		CurrentState:    StateInit,
		StateStack:      []RunState{},
		StateData:       make(map[string]any),
		StartTime:       time.Now(),
		StateStartTimes: make(map[RunState]time.Time),
	}
}

// PushState pushes the current state onto the stack and sets a new current state.
func (rc *RunContext) PushState(state RunState) {
	rc.StateStack = append(rc.StateStack, rc.CurrentState)
	rc.CurrentState = state
	rc.StateStartTimes[state] = time.Now()
}

// PopState pops the top state from the stack and sets it as the current state.
// Returns false if the stack is empty.
func (rc *RunContext) PopState() bool {
	if len(rc.StateStack) == 0 {
		return false
	}
	lastIdx := len(rc.StateStack) - 1
	rc.CurrentState = rc.StateStack[lastIdx]
	rc.StateStack = rc.StateStack[:lastIdx]
	rc.StateStartTimes[rc.CurrentState] = time.Now()
	return true
}

// IsTerminal checks if the current state is a terminal state (Complete, Error, Cancelled).
func (rc *RunContext) IsTerminal() bool {
	return rc.CurrentState == StateComplete || rc.CurrentState == StateError || rc.CurrentState == StateCancelled
}

// SetError sets the last error and error stage, transitioning to StateError.
func (rc *RunContext) SetError(err error, stage string) {
	rc.LastError = err
	rc.ErrorStage = stage
	rc.CurrentState = StateError
	rc.StateStartTimes[StateError] = time.Now()
}

// SetCancelled sets the state to Cancelled and records the cancellation error.
func (rc *RunContext) SetCancelled(err error, stage string) {
	rc.LastError = err
	rc.ErrorStage = stage
	rc.CurrentState = StateCancelled
	rc.StateStartTimes[StateCancelled] = time.Now()
}

// Complete marks the run as complete and sets the end time.
func (rc *RunContext) Complete() {
	rc.CurrentState = StateComplete
	rc.EndTime = time.Now()
	rc.StateStartTimes[StateComplete] = rc.EndTime
}

// GetTotalDuration returns the total duration of the run so far.
func (rc *RunContext) GetTotalDuration() time.Duration {
	if rc.CurrentState == StateComplete {
		return rc.EndTime.Sub(rc.StartTime)
	}
	return time.Since(rc.StartTime)
}

// SessionID returns the request's session id.
func (rc *RunContext) SessionID() string {
	if rc.Request == nil {
		return ""
	}
	return rc.Request.SessionID
}

// StateTransition defines a transition function for the state machine.
type StateTransition func(ctx context.Context, eventBus eventbus.EventBus, rCtx *RunContext) (RunState, error)

// StateMachine represents a finite state machine for request runs.
type StateMachine struct {
	transitions map[RunState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a new state machine with the provided event bus.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[RunState]StateTransition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers a state transition function.
func (sm *StateMachine) RegisterTransition(state RunState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until a terminal state. The run outcome is
// left on the run context; the returned error is the fatal error, if any.
func (sm *StateMachine) Execute(ctx context.Context, rCtx *RunContext) error {
	for !rCtx.IsTerminal() {
		// Check for context cancellation before executing the next state
		select {
		case <-ctx.Done():
			err := ctx.Err()
			rCtx.SetCancelled(NewCancelledError(string(rCtx.CurrentState), err), string(rCtx.CurrentState))
			return rCtx.LastError
		default:
		}

		transition, exists := sm.transitions[rCtx.CurrentState]
		if !exists {
			err := NewInternalError(string(rCtx.CurrentState),
				fmt.Sprintf("no transition defined for state: %s", rCtx.CurrentState), nil)
			rCtx.SetError(err, string(rCtx.CurrentState))
			return err
		}

		nextState, err := transition(ctx, sm.eventBus, rCtx)
		if err != nil {
			currentStage := string(rCtx.CurrentState)
			if err == context.Canceled || err == context.DeadlineExceeded {
				rCtx.SetCancelled(NewCancelledError(currentStage, err), currentStage)
			} else if !rCtx.IsTerminal() {
				// Transitions normally record their own error state; catch
				// the ones that return a bare error.
				rCtx.SetError(err, currentStage)
			}
			continue
		}

		if !rCtx.IsTerminal() {
			rCtx.CurrentState = nextState
			rCtx.StateStartTimes[nextState] = time.Now()
			if nextState == StateComplete {
				rCtx.EndTime = time.Now()
			}
		}
	}

	return rCtx.LastError
}
