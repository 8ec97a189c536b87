package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/talentmesh/actionloop"
)

type echoInvoker struct {
	lastReq actionloop.ModelRequest
}

func (e *echoInvoker) Invoke(ctx context.Context, req actionloop.ModelRequest) (*actionloop.ModelResponse, error) {
	e.lastReq = req
	return &actionloop.ModelResponse{Text: "You asked about your gaps; I found two and built a plan."}, nil
}

func TestCapabilityGaps_ComputesAndFlowsDownstream(t *testing.T) {
	tool, err := NewCapabilityGapsTool(NewDemoDirectory())
	if err != nil {
		t.Fatalf("NewCapabilityGapsTool: %v", err)
	}

	res, err := tool.Execute(context.Background(), map[string]any{
		actionloop.KeyProfileID: "p-ada",
		actionloop.KeyRoleID:    "senior-backend",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := res.Output.(map[string]any)
	gaps := out["gaps"].([]Gap)
	// Ada has go 4 and sql 3 covered; kubernetes (1 of 3) and grpc (0 of 3) gap
	if len(gaps) != 2 {
		t.Fatalf("expected 2 gaps, got %d: %#v", len(gaps), gaps)
	}
	// Widest gap first: grpc is 3 levels short, kubernetes 2
	if gaps[0].SkillID != "grpc" || gaps[1].SkillID != "kubernetes" {
		t.Errorf("unexpected gap ordering: %#v", gaps)
	}

	gapIDs := res.Downstream["gapIds"].([]any)
	if len(gapIDs) != 2 || gapIDs[0] != "grpc" {
		t.Errorf("unexpected downstream gap ids: %#v", gapIDs)
	}
}

func TestCapabilityGaps_UnknownProfileFails(t *testing.T) {
	tool, err := NewCapabilityGapsTool(NewDemoDirectory())
	if err != nil {
		t.Fatalf("NewCapabilityGapsTool: %v", err)
	}

	_, err = tool.Execute(context.Background(), map[string]any{
		actionloop.KeyProfileID: "nobody",
		actionloop.KeyRoleID:    "senior-backend",
	})
	if err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestDevelopmentPlan_SequencesCourses(t *testing.T) {
	tool, err := NewDevelopmentPlanTool(NewDemoDirectory())
	if err != nil {
		t.Fatalf("NewDevelopmentPlanTool: %v", err)
	}

	// gapIds arrive as []any after a context round trip
	res, err := tool.Execute(context.Background(), map[string]any{
		"gapIds": []any{"kubernetes", "grpc"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := res.Output.(map[string]any)
	totalWeeks := out["totalWeeks"].(int)
	// kubernetes: 6 + 8 weeks, grpc: 4 weeks
	if totalWeeks != 18 {
		t.Errorf("expected 18 total weeks, got %d", totalWeeks)
	}
}

func TestDevelopmentPlan_RejectsNonStringGapIds(t *testing.T) {
	tool, err := NewDevelopmentPlanTool(NewDemoDirectory())
	if err != nil {
		t.Fatalf("NewDevelopmentPlanTool: %v", err)
	}

	if _, err := tool.Execute(context.Background(), map[string]any{"gapIds": []any{42}}); err == nil {
		t.Error("expected error for non-string gap ids")
	}
}

func TestSkillRecommendations_ExpandsGapsFromContext(t *testing.T) {
	tool, err := NewSkillRecommendationsTool(NewDemoDirectory())
	if err != nil {
		t.Fatalf("NewSkillRecommendationsTool: %v", err)
	}

	// The gaps output lands in context under the tool id and is merged into
	// the execution input
	input := map[string]any{
		"getCapabilityGaps": map[string]any{
			"gaps": []any{
				map[string]any{"skillId": "kubernetes"},
			},
		},
	}
	res, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := res.Output.(map[string]any)
	recs := out["recommendations"].([]string)
	if len(recs) != 2 || recs[0] != "helm" || recs[1] != "terraform" {
		t.Errorf("unexpected recommendations: %#v", recs)
	}
}

func TestSkillRecommendations_FallsBackToFocus(t *testing.T) {
	tool, err := NewSkillRecommendationsTool(NewDemoDirectory())
	if err != nil {
		t.Fatalf("NewSkillRecommendationsTool: %v", err)
	}

	res, err := tool.Execute(context.Background(), map[string]any{
		actionloop.KeyFocus: "go",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := res.Output.(map[string]any)
	recs := out["recommendations"].([]string)
	if len(recs) == 0 {
		t.Error("expected focus-seeded recommendations")
	}
}

func TestCalculate_EvaluatesExpressions(t *testing.T) {
	tool, err := NewCalculateTool()
	if err != nil {
		t.Fatalf("NewCalculateTool: %v", err)
	}

	res, err := tool.Execute(context.Background(), map[string]any{"expression": "6*5+4"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := res.Output.(map[string]any)
	if out["result"] != float64(34) {
		t.Errorf("expected 34, got %v", out["result"])
	}

	if _, err := tool.Execute(context.Background(), map[string]any{"expression": "6*"}); err == nil {
		t.Error("expected error for malformed expression")
	}
}

func TestCalculate_SchemaRejectsMissingExpression(t *testing.T) {
	tool, err := NewCalculateTool()
	if err != nil {
		t.Fatalf("NewCalculateTool: %v", err)
	}
	if err := tool.ValidateArgs(map[string]any{}); err == nil {
		t.Error("expected schema rejection for missing expression")
	}
}

func TestSummarize_InvokesModelWithRunRecord(t *testing.T) {
	invoker := &echoInvoker{}
	tool, err := NewSummarizeTool(invoker)
	if err != nil {
		t.Fatalf("NewSummarizeTool: %v", err)
	}
	if tool.Spec().ID != actionloop.FinalizerToolID {
		t.Errorf("expected finalizer id, got %s", tool.Spec().ID)
	}

	res, err := tool.Execute(context.Background(), map[string]any{
		"sessionId": "s1",
		"plan":      []actionloop.PlannedAction{{Tool: "getCapabilityGaps"}},
		"results":   []actionloop.ActionResult{{Tool: "getCapabilityGaps", Success: true}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if text, ok := res.Output.(string); !ok || text == "" {
		t.Errorf("expected text summary, got %#v", res.Output)
	}
	if !strings.Contains(invoker.lastReq.User, "getCapabilityGaps") {
		t.Error("expected the run record in the model prompt")
	}
	if invoker.lastReq.SessionID != "s1" {
		t.Errorf("expected session id threaded through, got %q", invoker.lastReq.SessionID)
	}
}

func TestSetupTools_RegistersBuiltins(t *testing.T) {
	tools, err := SetupTools(NewDemoDirectory(), &echoInvoker{})
	if err != nil {
		t.Fatalf("SetupTools: %v", err)
	}
	if len(tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(tools))
	}

	withoutInvoker, err := SetupTools(NewDemoDirectory(), nil)
	if err != nil {
		t.Fatalf("SetupTools without invoker: %v", err)
	}
	for _, tool := range withoutInvoker {
		if tool.Spec().ID == actionloop.FinalizerToolID {
			t.Error("summarize must not register without a model invoker")
		}
	}
}
