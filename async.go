package actionloop

import (
	"context"
	"fmt"
	"time"

	"github.com/talentmesh/actionloop/internal/eventbus"
)

// AsyncRunStatus represents the status information for an async run.
type AsyncRunStatus struct {
	RunID        string        `json:"run_id"`
	SessionID    string        `json:"session_id"`
	CurrentState RunState      `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

// GetAsyncStatus retrieves the current status of an async run.
func (r *Runtime) GetAsyncStatus(runID string) (*AsyncRunStatus, error) {
	r.asyncRunsMutex.RLock()
	defer r.asyncRunsMutex.RUnlock()

	rCtx, exists := r.asyncRuns[runID]
	if !exists {
		return nil, fmt.Errorf("run with ID '%s' not found", runID)
	}

	status := &AsyncRunStatus{
		RunID:        runID,
		SessionID:    rCtx.SessionID(),
		CurrentState: rCtx.CurrentState,
		StartTime:    rCtx.StartTime,
		Duration:     rCtx.GetTotalDuration(),
		IsComplete:   rCtx.CurrentState == StateComplete,
		HasError:     rCtx.CurrentState == StateError,
	}

	if rCtx.LastError != nil {
		status.ErrorMessage = rCtx.LastError.Error()
		status.ErrorStage = rCtx.ErrorStage
	}

	return status, nil
}

// GetAsyncResult retrieves the response of a completed async run.
// Returns an error if the run is still in progress.
func (r *Runtime) GetAsyncResult(runID string) (*Response, error) {
	r.asyncRunsMutex.RLock()
	defer r.asyncRunsMutex.RUnlock()

	rCtx, exists := r.asyncRuns[runID]
	if !exists {
		return nil, fmt.Errorf("run with ID '%s' not found", runID)
	}

	if !rCtx.IsTerminal() {
		return nil, fmt.Errorf("run is still in progress (current state: %s)", rCtx.CurrentState)
	}

	return buildResponse(rCtx), nil
}

// CancelAsyncRun cancels an ongoing async run.
// Returns true if the run was cancelled, false if it was already terminal.
func (r *Runtime) CancelAsyncRun(runID string) (bool, error) {
	r.asyncRunsMutex.Lock()
	defer r.asyncRunsMutex.Unlock()

	rCtx, exists := r.asyncRuns[runID]
	if !exists {
		return false, fmt.Errorf("run with ID '%s' not found", runID)
	}

	if rCtx.IsTerminal() {
		return false, nil
	}

	cancelFn, ok := rCtx.StateData["cancel"].(context.CancelFunc)
	if !ok {
		return false, fmt.Errorf("cannot cancel run: cancel function not found")
	}
	cancelFn()

	rCtx.SetCancelled(NewCancelledError(string(rCtx.CurrentState), fmt.Errorf("run cancelled by user")), "cancelled")

	if r.config.EnableEventBus && r.eventBus != nil {
		cancelEvent := eventbus.NewEvent(
			eventbus.EventRunAsyncCancelled,
			rCtx.SessionID(),
			"Runtime.CancelAsyncRun",
			map[string]interface{}{
				"run_id":      runID,
				"duration_ms": rCtx.GetTotalDuration().Milliseconds(),
			},
		)
		r.eventBus.Publish(context.Background(), cancelEvent)
	}

	return true, nil
}

// ListAsyncRuns returns all async run IDs and their current states.
func (r *Runtime) ListAsyncRuns() map[string]string {
	r.asyncRunsMutex.RLock()
	defer r.asyncRunsMutex.RUnlock()

	result := make(map[string]string)
	for id, rCtx := range r.asyncRuns {
		result[id] = string(rCtx.CurrentState)
	}

	return result
}

// CleanupCompletedRuns removes terminal runs older than the given duration.
// This keeps the async run map from growing without bound.
func (r *Runtime) CleanupCompletedRuns(olderThan time.Duration) int {
	r.asyncRunsMutex.Lock()
	defer r.asyncRunsMutex.Unlock()

	now := time.Now()
	count := 0

	for id, rCtx := range r.asyncRuns {
		if rCtx.IsTerminal() && now.Sub(rCtx.StateStartTimes[rCtx.CurrentState]) > olderThan {
			delete(r.asyncRuns, id)
			count++
		}
	}

	return count
}
