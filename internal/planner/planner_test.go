package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/talentmesh/actionloop"
)

type scriptedInvoker struct {
	responses []string
	err       error
	calls     int
	lastReq   actionloop.ModelRequest
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req actionloop.ModelRequest) (*actionloop.ModelResponse, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return &actionloop.ModelResponse{Text: s.responses[idx]}, nil
}

type memCache struct {
	items map[string]any
	gets  int
}

func newMemCache() *memCache {
	return &memCache{items: map[string]any{}}
}

func (c *memCache) Get(ctx context.Context, key string) (any, error) {
	c.gets++
	v, ok := c.items[key]
	if !ok {
		return nil, errors.New("cache item not found")
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value any) error {
	c.items[key] = value
	return nil
}

type stubTool struct {
	spec actionloop.ToolSpec
}

func (t *stubTool) Spec() actionloop.ToolSpec         { return t.spec }
func (t *stubTool) Schema() map[string]any            { return nil }
func (t *stubTool) ValidateArgs(map[string]any) error { return nil }
func (t *stubTool) Execute(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
	return &actionloop.ToolResult{Output: "ok"}, nil
}

func plannerRegistry(t *testing.T) *actionloop.Registry {
	t.Helper()
	registry := actionloop.NewRegistry()
	specs := []actionloop.ToolSpec{
		{ID: "getCapabilityGaps", Description: "Find skill gaps", RequiredInputs: []string{"profileId", "roleId"}},
		{ID: "getDevelopmentPlan", Description: "Build a plan", RequiredInputs: []string{"gapIds"}, HardPrerequisites: []string{"getCapabilityGaps"}},
		{ID: "getRoleCatalog", Description: "Browse roles"},
		{ID: "managerReport", Description: "Manager only", Roles: []string{"manager"}},
	}
	for _, spec := range specs {
		if err := registry.Register(&stubTool{spec: spec}); err != nil {
			t.Fatalf("Register(%s): %v", spec.ID, err)
		}
	}
	return registry
}

func chatInput(message string) actionloop.PlanInput {
	return actionloop.PlanInput{
		SessionID: "s1",
		Mode:      actionloop.ModeChat,
		Message:   message,
		ProfileID: "p1",
	}
}

func TestGeneratePlan_ParsesModelResponse(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{
		"```json\n[{\"tool\": \"getCapabilityGaps\", \"args\": {\"roleId\": \"r1\"}, \"reason\": \"assess gaps\"}]\n```",
	}}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	plan, err := p.GeneratePlan(context.Background(), chatInput("where am I falling short for r1?"))
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("expected 1 step, got %d", len(plan))
	}
	if plan[0].Tool != "getCapabilityGaps" {
		t.Errorf("expected getCapabilityGaps, got %s", plan[0].Tool)
	}
	if plan[0].Args["roleId"] != "r1" {
		t.Errorf("expected roleId arg bound from model output, got %#v", plan[0].Args)
	}
	if invoker.lastReq.Temperature != 0 {
		t.Errorf("expected deterministic invocation, got temperature %v", invoker.lastReq.Temperature)
	}
}

func TestGeneratePlan_EmptyArrayMeansNoActions(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{"[]"}}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	plan, err := p.GeneratePlan(context.Background(), chatInput("hello there"))
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan) != 0 {
		t.Errorf("expected empty plan, got %d steps", len(plan))
	}
}

func TestGeneratePlan_NonArrayResponseIsParseError(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{`{"plan": []}`}}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	_, err := p.GeneratePlan(context.Background(), chatInput("do something"))
	var loopErr *actionloop.LoopError
	if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodePlanParse {
		t.Fatalf("expected plan parse error, got %v", err)
	}
}

func TestGeneratePlan_NullResponseIsParseError(t *testing.T) {
	// "null" unmarshals into a slice without error, so it must be rejected
	// before parsing.
	invoker := &scriptedInvoker{responses: []string{"null"}}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	_, err := p.GeneratePlan(context.Background(), chatInput("do something"))
	var loopErr *actionloop.LoopError
	if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodePlanParse {
		t.Fatalf("expected plan parse error for null response, got %v", err)
	}
}

func TestGeneratePlan_SamplingOptionsReachModel(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{"[]"}}
	p := NewLLMPlanner(plannerRegistry(t), invoker,
		WithTemperature(0.4),
		WithMaxTokens(256),
	)

	if _, err := p.GeneratePlan(context.Background(), chatInput("hello")); err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if invoker.lastReq.Temperature != 0.4 {
		t.Errorf("expected temperature 0.4, got %v", invoker.lastReq.Temperature)
	}
	if invoker.lastReq.MaxTokens != 256 {
		t.Errorf("expected max tokens 256, got %d", invoker.lastReq.MaxTokens)
	}
}

func TestGeneratePlan_UnknownToolIsFatal(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{`[{"tool": "launchRocket", "args": {}}]`}}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	_, err := p.GeneratePlan(context.Background(), chatInput("launch"))
	var loopErr *actionloop.LoopError
	if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodeToolNotFound {
		t.Fatalf("expected tool not found error, got %v", err)
	}
}

func TestGeneratePlan_HardPrerequisiteOrdering(t *testing.T) {
	t.Run("satisfied by earlier plan step", func(t *testing.T) {
		invoker := &scriptedInvoker{responses: []string{
			`[{"tool": "getCapabilityGaps", "args": {}}, {"tool": "getDevelopmentPlan", "args": {}}]`,
		}}
		p := NewLLMPlanner(plannerRegistry(t), invoker)
		if _, err := p.GeneratePlan(context.Background(), chatInput("plan my growth")); err != nil {
			t.Fatalf("GeneratePlan: %v", err)
		}
	})

	t.Run("unsatisfied prerequisite rejected", func(t *testing.T) {
		invoker := &scriptedInvoker{responses: []string{`[{"tool": "getDevelopmentPlan", "args": {}}]`}}
		p := NewLLMPlanner(plannerRegistry(t), invoker)
		_, err := p.GeneratePlan(context.Background(), chatInput("plan my growth"))
		var loopErr *actionloop.LoopError
		if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("satisfied by session history", func(t *testing.T) {
		invoker := &scriptedInvoker{responses: []string{`[{"tool": "getDevelopmentPlan", "args": {}}]`}}
		p := NewLLMPlanner(plannerRegistry(t), invoker)
		input := chatInput("plan my growth")
		input.History = &actionloop.ConversationContext{
			AgentActions: []actionloop.LogEntry{{Tool: "getCapabilityGaps", Success: true}},
		}
		if _, err := p.GeneratePlan(context.Background(), input); err != nil {
			t.Fatalf("GeneratePlan: %v", err)
		}
	})
}

func TestGeneratePlan_DiscoveryModeFiltersIdentityTools(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{`[{"tool": "getCapabilityGaps", "args": {}}]`}}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	input := actionloop.PlanInput{
		SessionID: "s1",
		Mode:      actionloop.ModeDiscovery,
		Message:   "what are my gaps?",
	}
	_, err := p.GeneratePlan(context.Background(), input)
	var loopErr *actionloop.LoopError
	if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodeValidation {
		t.Fatalf("expected eligibility rejection in discovery mode, got %v", err)
	}

	// Identifier-agnostic tools stay available
	if !strings.Contains(invoker.lastReq.User, `"id": "getRoleCatalog"`) {
		t.Error("expected getRoleCatalog in the discovery catalog")
	}
	if strings.Contains(invoker.lastReq.User, `"id": "getCapabilityGaps"`) {
		t.Error("identity-bound tool leaked into the discovery catalog")
	}
}

func TestGeneratePlan_RoleRestrictedTools(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{`[{"tool": "managerReport", "args": {}}]`}}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	input := chatInput("show my team report")
	input.RoleID = "engineer"
	_, err := p.GeneratePlan(context.Background(), input)
	var loopErr *actionloop.LoopError
	if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodeValidation {
		t.Fatalf("expected role eligibility rejection, got %v", err)
	}

	input.RoleID = "manager"
	invoker.calls = 0
	if _, err := p.GeneratePlan(context.Background(), input); err != nil {
		t.Fatalf("GeneratePlan with matching role: %v", err)
	}
}

func TestGeneratePlan_MaxStepsBound(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{
		`[{"tool": "getRoleCatalog", "args": {}}, {"tool": "getRoleCatalog", "args": {}}, {"tool": "getRoleCatalog", "args": {}}]`,
	}}
	p := NewLLMPlanner(plannerRegistry(t), invoker, WithMaxSteps(2))

	_, err := p.GeneratePlan(context.Background(), chatInput("browse a lot"))
	var loopErr *actionloop.LoopError
	if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodeValidation {
		t.Fatalf("expected max steps rejection, got %v", err)
	}
}

func TestGeneratePlan_CachesValidPlans(t *testing.T) {
	invoker := &scriptedInvoker{responses: []string{`[{"tool": "getRoleCatalog", "args": {}}]`}}
	cache := newMemCache()
	p := NewLLMPlanner(plannerRegistry(t), invoker, WithCache(cache))

	input := chatInput("what roles exist?")
	first, err := p.GeneratePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("first GeneratePlan: %v", err)
	}
	second, err := p.GeneratePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("second GeneratePlan: %v", err)
	}

	if invoker.calls != 1 {
		t.Errorf("expected 1 model call, got %d", invoker.calls)
	}
	if len(second) != len(first) || second[0].Tool != first[0].Tool {
		t.Errorf("cached plan diverged: %#v vs %#v", second, first)
	}

	// A different message misses the cache
	if _, err := p.GeneratePlan(context.Background(), chatInput("something else entirely")); err != nil {
		t.Fatalf("third GeneratePlan: %v", err)
	}
	if invoker.calls != 2 {
		t.Errorf("expected a fresh model call for a new message, got %d total", invoker.calls)
	}
}

func TestGeneratePlan_CacheRoundTripsThroughJSON(t *testing.T) {
	// Redis-style backends return decoded JSON, not the original typed slice.
	cached := []any{map[string]any{"tool": "getRoleCatalog", "args": map[string]any{"q": "eng"}}}

	plan, ok := decodeCachedPlan(cached)
	if !ok {
		t.Fatal("expected generic JSON value to decode")
	}
	if plan[0].Tool != "getRoleCatalog" || plan[0].Args["q"] != "eng" {
		t.Errorf("decoded plan mismatch: %#v", plan)
	}

	if _, ok := decodeCachedPlan("garbage"); ok {
		t.Error("expected scalar cache value to be rejected")
	}
}

func TestGeneratePlan_FallbackOnModelFailure(t *testing.T) {
	invoker := &scriptedInvoker{err: errors.New("model unavailable")}
	fallback := NewRulePlanner(Rule{
		Keywords: []string{"gaps"},
		Plan:     []actionloop.PlannedAction{{Tool: "getCapabilityGaps", Args: map[string]any{}}},
	})
	p := NewLLMPlanner(plannerRegistry(t), invoker, WithFallback(fallback))

	plan, err := p.GeneratePlan(context.Background(), chatInput("what are my gaps?"))
	if err != nil {
		t.Fatalf("expected fallback plan, got error: %v", err)
	}
	if len(plan) != 1 || plan[0].Tool != "getCapabilityGaps" {
		t.Errorf("unexpected fallback plan: %#v", plan)
	}
}

func TestGeneratePlan_NoFallbackPropagatesError(t *testing.T) {
	invoker := &scriptedInvoker{err: errors.New("model unavailable")}
	p := NewLLMPlanner(plannerRegistry(t), invoker)

	_, err := p.GeneratePlan(context.Background(), chatInput("what are my gaps?"))
	var loopErr *actionloop.LoopError
	if !errors.As(err, &loopErr) || loopErr.Code != actionloop.ErrCodeModelInvocation {
		t.Fatalf("expected model invocation error, got %v", err)
	}
}

func TestRulePlanner_MatchesKeywords(t *testing.T) {
	p := NewRulePlanner(
		Rule{Keywords: []string{"gap"}, Plan: []actionloop.PlannedAction{{Tool: "getCapabilityGaps"}}},
		Rule{Keywords: []string{"role"}, Plan: []actionloop.PlannedAction{{Tool: "getRoleCatalog"}}},
	)

	plan, err := p.GeneratePlan(context.Background(), chatInput("Show my skill GAP analysis"))
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan) != 1 || plan[0].Tool != "getCapabilityGaps" {
		t.Errorf("unexpected plan: %#v", plan)
	}

	empty, err := p.GeneratePlan(context.Background(), chatInput("unrelated chatter"))
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no actions for unmatched message, got %#v", empty)
	}
}

func TestBuildSystemPrompt_StatesStepBound(t *testing.T) {
	if got := buildSystemPrompt(4); !strings.Contains(got, "more than 4 steps") {
		t.Errorf("expected the step bound in the system prompt, got:\n%s", got)
	}
	if got := buildSystemPrompt(0); strings.Contains(got, "more than") {
		t.Errorf("expected no step bound line when unbounded, got:\n%s", got)
	}
}

func TestBuildUserPrompt_IncludesIdentifiers(t *testing.T) {
	input := actionloop.PlanInput{
		SessionID: "s-42",
		Mode:      actionloop.ModeChat,
		Message:   "where do I stand?",
		ProfileID: "p-ada",
		RoleID:    "senior-backend",
	}

	got := buildUserPrompt(input, nil)
	for _, want := range []string{"Session: s-42", "Profile: p-ada", "Role: senior-backend"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in the user prompt, got:\n%s", want, got)
		}
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"plain":           `[{"tool":"a"}]`,
		"fenced":          "```\n[{\"tool\":\"a\"}]\n```",
		"fenced with tag": "```json\n[{\"tool\":\"a\"}]\n```",
		"padded":          "  \n```json\n[{\"tool\":\"a\"}]\n```\n  ",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if got := stripFences(raw); got != `[{"tool":"a"}]` {
				t.Errorf("stripFences(%q) = %q", raw, got)
			}
		})
	}
}
