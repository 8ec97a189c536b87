package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/talentmesh/actionloop"
)

// Summarize runs the reserved summary tool with the full run: the context
// snapshot, the plan, and the ordered result log. The output is coerced to
// text for the response envelope.
func (e *Executor) Summarize(ctx context.Context, sessionID string, plan []actionloop.PlannedAction, results []actionloop.ActionResult, store *actionloop.ContextStore) (string, error) {
	tool, err := e.registry.Get(actionloop.FinalizerToolID)
	if err != nil {
		return "", err
	}

	input := store.Snapshot()
	input["sessionId"] = sessionID
	input["plan"] = plan
	input["results"] = results

	res, err := tool.Execute(ctx, input)
	if err != nil {
		return "", actionloop.NewFinalizationError(err)
	}
	if res == nil || res.Output == nil {
		return "", nil
	}
	return coerceText(res.Output), nil
}

func coerceText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
