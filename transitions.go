package actionloop

import (
	"context"
	"log"
	"time"

	"github.com/talentmesh/actionloop/internal/eventbus"
)

// RuntimeComponents holds references to the components needed by the state
// transitions.
type RuntimeComponents struct {
	Registry  *Registry
	Planner   Planner
	Executor  Executor
	Finalizer Finalizer
	Loader    ContextLoader
	Config    Config
}

// CreateRunStateMachine builds the complete state machine for the request loop.
func CreateRunStateMachine(components RuntimeComponents, eventBus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(eventBus)

	sm.RegisterTransition(StateInit, createInitTransition(components))
	sm.RegisterTransition(StatePlanning, createPlanningTransition(components))
	sm.RegisterTransition(StateExecution, createExecutionTransition(components))
	sm.RegisterTransition(StateFinalize, createFinalizeTransition(components))
	sm.RegisterTransition(StateComplete, createCompleteTransition(components))
	sm.RegisterTransition(StateCancelled, createCancelledTransition(components))

	return sm
}

// createInitTransition seeds the run: mode resolution and best-effort history
// loading. A request without any message content fails here.
func createInitTransition(components RuntimeComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rCtx *RunContext) (RunState, error) {
		if eb != nil {
			startEvent := eventbus.NewEvent(
				eventbus.EventRunStarted,
				rCtx.SessionID(),
				"StateMachine.Init",
				map[string]interface{}{
					"timestamp": time.Now().Format(time.RFC3339),
					"mode":      rCtx.Request.Mode,
				},
			)
			eb.Publish(ctx, startEvent)
		}

		if rCtx.Store.GetString(KeyLastMessage) == "" {
			return StateError, NewNoMessageError()
		}

		// Resolve the processing mode. Requests without identity keys are
		// treated as discovery regardless of the declared mode.
		rCtx.Mode = rCtx.Request.Mode
		if rCtx.Mode == "" {
			rCtx.Mode = ModeChat
		}
		if !rCtx.Store.Has(KeyProfileID) && !rCtx.Store.Has(KeyRoleID) {
			rCtx.Mode = ModeDiscovery
		}

		// History loading is best-effort: a failed load degrades to planning
		// without history, never to a failed run.
		if components.Loader != nil {
			history, err := components.Loader.Load(ctx, rCtx.SessionID())
			if err != nil {
				log.Printf("context load failed for session %s: %v", rCtx.SessionID(), err)
			} else if history != nil {
				rCtx.History = history
				if history.Summary != "" {
					rCtx.Store.Set(KeySummary, history.Summary)
				}
				if len(history.ContextEmbedding) > 0 {
					rCtx.Store.Set(KeyContextEmbedding, history.ContextEmbedding)
				}
			}
		}

		return StatePlanning, nil
	}
}

// createPlanningTransition generates the action plan. Any planner failure is
// fatal for the run.
func createPlanningTransition(components RuntimeComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rCtx *RunContext) (RunState, error) {
		input := PlanInput{
			SessionID: rCtx.SessionID(),
			Mode:      rCtx.Mode,
			Message:   rCtx.Store.GetString(KeyLastMessage),
			ProfileID: rCtx.Store.GetString(KeyProfileID),
			RoleID:    rCtx.Store.GetString(KeyRoleID),
			Focus:     rCtx.Store.GetString(KeyFocus),
			Store:     rCtx.Store,
			History:   rCtx.History,
		}

		if eb != nil {
			planStartEvent := eventbus.NewEvent(
				eventbus.EventPlanStarted,
				input.Message,
				"StateMachine.Planning",
				map[string]interface{}{"mode": rCtx.Mode},
			)
			eb.Publish(ctx, planStartEvent)
		}

		plan, err := components.Planner.GeneratePlan(ctx, input)
		if err != nil {
			if _, ok := err.(*LoopError); !ok {
				err = NewPlanGenerationError(err)
			}
			if eb != nil {
				failEvent := eventbus.NewEvent(
					eventbus.EventPlanFailure,
					err.Error(),
					"StateMachine.Planning",
					map[string]interface{}{"error": err.Error()},
				)
				eb.Publish(ctx, failEvent)
			}
			return StateError, err
		}

		if eb != nil {
			planSuccessEvent := eventbus.NewEvent(
				eventbus.EventPlanSuccess,
				plan,
				"StateMachine.Planning",
				map[string]interface{}{"step_count": len(plan)},
			)
			eb.Publish(ctx, planSuccessEvent)
		}

		rCtx.Plan = plan
		return StateExecution, nil
	}
}

// createExecutionTransition runs the plan's steps sequentially. Step failures
// land in the result list; this transition never fails the run.
func createExecutionTransition(components RuntimeComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rCtx *RunContext) (RunState, error) {
		// The finalizer step is reserved for the finalize stage.
		steps := make([]PlannedAction, 0, len(rCtx.Plan))
		for _, action := range rCtx.Plan {
			if action.Tool == FinalizerToolID {
				continue
			}
			steps = append(steps, action)
		}

		if eb != nil {
			for i, action := range steps {
				eb.Publish(ctx, eventbus.NewEvent(
					eventbus.EventStepStarted,
					action.Tool,
					"StateMachine.Execution",
					map[string]interface{}{"step": i},
				))
				if action.Announcement != "" {
					eb.Publish(ctx, eventbus.NewEvent(
						eventbus.EventStepAnnouncement,
						action.Announcement,
						"StateMachine.Execution",
						map[string]interface{}{"step": i, "tool": action.Tool},
					))
				}
			}
		}

		rCtx.Results = components.Executor.ExecutePlan(ctx, rCtx.SessionID(), steps, rCtx.Store)

		if eb != nil {
			for i, result := range rCtx.Results {
				eventType := eventbus.EventStepSuccess
				meta := map[string]interface{}{"step": i, "tool": result.Tool}
				switch {
				case result.Reused:
					eventType = eventbus.EventStepReused
				case !result.Success:
					eventType = eventbus.EventStepFailure
					meta["error"] = result.Error
				}
				eb.Publish(ctx, eventbus.NewEvent(eventType, result, "StateMachine.Execution", meta))
			}
		}

		return StateFinalize, nil
	}
}

// createFinalizeTransition runs the reserved summary tool when the plan asked
// for it. All failures here are swallowed.
func createFinalizeTransition(components RuntimeComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rCtx *RunContext) (RunState, error) {
		planned := false
		for _, action := range rCtx.Plan {
			if action.Tool == FinalizerToolID {
				planned = true
				break
			}
		}

		if planned && components.Finalizer != nil && components.Registry.Has(FinalizerToolID) {
			if eb != nil {
				eb.Publish(ctx, eventbus.NewEvent(
					eventbus.EventSummaryStarted,
					rCtx.SessionID(),
					"StateMachine.Finalize",
					nil,
				))
			}

			summary, err := components.Finalizer.Summarize(ctx, rCtx.SessionID(), rCtx.Plan, rCtx.Results, rCtx.Store)
			if err != nil {
				log.Printf("summary synthesis failed for session %s: %v", rCtx.SessionID(), err)
				if eb != nil {
					eb.Publish(ctx, eventbus.NewEvent(
						eventbus.EventSummaryFailure,
						err.Error(),
						"StateMachine.Finalize",
						map[string]interface{}{"error": err.Error()},
					))
				}
			} else {
				rCtx.Summary = summary
				if eb != nil {
					eb.Publish(ctx, eventbus.NewEvent(
						eventbus.EventSummarySuccess,
						summary,
						"StateMachine.Finalize",
						map[string]interface{}{"summary_length": len(summary)},
					))
				}
			}
		}

		if eb != nil {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventRunSuccess,
				rCtx.SessionID(),
				"StateMachine.Finalize",
				map[string]interface{}{
					"step_count":  len(rCtx.Results),
					"duration_ms": rCtx.GetTotalDuration().Milliseconds(),
				},
			))
		}

		return StateComplete, nil
	}
}

// createCompleteTransition handles the complete state.
func createCompleteTransition(_ RuntimeComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rCtx *RunContext) (RunState, error) {
		// Terminal state; the runtime builds the response from the run context.
		return StateComplete, nil
	}
}

// createCancelledTransition handles the cancelled state.
func createCancelledTransition(_ RuntimeComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rCtx *RunContext) (RunState, error) {
		// Terminal state. The cancellation error is already on the context.
		return StateCancelled, rCtx.LastError
	}
}
