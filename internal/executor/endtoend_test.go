package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/talentmesh/actionloop"
	"github.com/talentmesh/actionloop/internal/actionlog"
)

// talentRegistry builds the three-step skill analysis chain: gaps feed the
// development plan, recommendations read the accumulated context.
func talentRegistry(t *testing.T, invocations map[string]int) *actionloop.Registry {
	t.Helper()

	gaps := &mockTool{
		spec: actionloop.ToolSpec{ID: "getCapabilityGaps", RequiredInputs: []string{"profileId", "roleId"}},
		execFunc: func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			invocations["getCapabilityGaps"]++
			return &actionloop.ToolResult{
				Output:     map[string]any{"gaps": []any{"kubernetes", "grpc"}},
				Downstream: map[string]any{"gapIds": []any{"kubernetes", "grpc"}},
			}, nil
		},
	}
	plan := &mockTool{
		spec: actionloop.ToolSpec{
			ID:                "getDevelopmentPlan",
			RequiredInputs:    []string{"gapIds"},
			HardPrerequisites: []string{"getCapabilityGaps"},
		},
		execFunc: func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			invocations["getDevelopmentPlan"]++
			gapIds, _ := input["gapIds"].([]any)
			return &actionloop.ToolResult{
				Output: map[string]any{"planFor": gapIds},
			}, nil
		},
	}
	recs := &mockTool{
		spec: actionloop.ToolSpec{ID: "getSemanticSkillRecommendations", RequiredContext: []string{"getCapabilityGaps"}},
		execFunc: func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			invocations["getSemanticSkillRecommendations"]++
			return &actionloop.ToolResult{Output: map[string]any{"recommendations": []any{"cka-course"}}}, nil
		},
	}

	return newRegistry(t, gaps, plan, recs)
}

func talentPlan() []actionloop.PlannedAction {
	return []actionloop.PlannedAction{
		{Tool: "getCapabilityGaps", Args: map[string]any{"profileId": "p1", "roleId": "r1"}},
		{Tool: "getDevelopmentPlan", Args: map[string]any{}},
		{Tool: "getSemanticSkillRecommendations", Args: map[string]any{}},
	}
}

func TestEndToEnd_SkillAnalysisChain(t *testing.T) {
	invocations := map[string]int{}
	registry := talentRegistry(t, invocations)

	logStore, err := actionlog.NewSQLiteStore(filepath.Join(t.TempDir(), "actions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer logStore.Close()

	exec := NewExecutor(registry, WithActionLog(logStore))

	store := actionloop.NewContextStore()
	store.Set(actionloop.KeyProfileID, "p1")
	store.Set(actionloop.KeyRoleID, "r1")

	results := exec.ExecutePlan(context.Background(), "s1", talentPlan(), store)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Success {
			t.Fatalf("step %d failed: %s", i, r.Error)
		}
	}

	// The development plan consumed the gaps' downstream payload
	planOut, ok := results[1].Output.(map[string]any)
	if !ok || planOut["planFor"] == nil {
		t.Errorf("expected development plan built from gap ids, got %#v", results[1].Output)
	}

	// All three outputs landed in the context under their tool ids
	for _, id := range []string{"getCapabilityGaps", "getDevelopmentPlan", "getSemanticSkillRecommendations"} {
		if !store.Has(id) {
			t.Errorf("expected %s output in context", id)
		}
	}
}

func TestEndToEnd_SecondRunReusesPersistedSteps(t *testing.T) {
	invocations := map[string]int{}
	registry := talentRegistry(t, invocations)

	logStore, err := actionlog.NewSQLiteStore(filepath.Join(t.TempDir(), "actions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer logStore.Close()

	exec := NewExecutor(registry, WithActionLog(logStore))

	run := func() []actionloop.ActionResult {
		store := actionloop.NewContextStore()
		store.Set(actionloop.KeyProfileID, "p1")
		store.Set(actionloop.KeyRoleID, "r1")
		return exec.ExecutePlan(context.Background(), "s1", talentPlan(), store)
	}

	run()
	second := run()

	// The gaps step binds identical args both times and is served from the log
	if !second[0].Reused {
		t.Error("expected getCapabilityGaps to be reused on the second run")
	}
	if invocations["getCapabilityGaps"] != 1 {
		t.Errorf("expected 1 gaps invocation, got %d", invocations["getCapabilityGaps"])
	}

	// Reuse replays downstream data, so the dependent step still binds
	if !second[1].Success {
		t.Errorf("expected development plan to succeed after reuse: %s", second[1].Error)
	}
}
