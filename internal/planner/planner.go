// Package planner turns a user message and the tool catalog into an ordered
// action plan. Planning failures are fatal for the request; the executor owns
// per-step tolerance.
package planner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/talentmesh/actionloop"
)

// Identity keys a tool must not depend on to be eligible in discovery mode.
var identityKeys = map[string]bool{
	actionloop.KeyProfileID: true,
	actionloop.KeyRoleID:    true,
}

// LLMPlanner generates plans by prompting a model with the tool catalog and
// the request context, then parsing its strict JSON answer.
type LLMPlanner struct {
	registry *actionloop.Registry
	invoker  actionloop.ModelInvoker
	cache    actionloop.Cache
	fallback actionloop.Planner

	maxSteps    int
	maxTokens   int
	temperature float64
}

// Option configures the LLMPlanner.
type Option func(*LLMPlanner)

// WithCache enables plan memoization keyed by the planning input.
func WithCache(cache actionloop.Cache) Option {
	return func(p *LLMPlanner) {
		p.cache = cache
	}
}

// WithFallback sets an explicit fallback planner consulted only when the
// model-backed path fails. Never mixed into successful plans.
func WithFallback(fallback actionloop.Planner) Option {
	return func(p *LLMPlanner) {
		p.fallback = fallback
	}
}

// WithMaxSteps bounds the accepted plan length.
func WithMaxSteps(n int) Option {
	return func(p *LLMPlanner) {
		p.maxSteps = n
	}
}

// WithMaxTokens bounds the model's output budget.
func WithMaxTokens(n int) Option {
	return func(p *LLMPlanner) {
		p.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature for plan generation.
func WithTemperature(t float64) Option {
	return func(p *LLMPlanner) {
		p.temperature = t
	}
}

// NewLLMPlanner creates a planner over the registry and model invoker.
func NewLLMPlanner(registry *actionloop.Registry, invoker actionloop.ModelInvoker, options ...Option) *LLMPlanner {
	p := &LLMPlanner{
		registry:    registry,
		invoker:     invoker,
		maxSteps:    6,
		maxTokens:   1024,
		temperature: 0,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// GeneratePlan implements actionloop.Planner.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, input actionloop.PlanInput) ([]actionloop.PlannedAction, error) {
	plan, err := p.generate(ctx, input)
	if err != nil && p.fallback != nil {
		log.Printf("planner failed, using fallback (session: %s): %v", input.SessionID, err)
		return p.fallback.GeneratePlan(ctx, input)
	}
	return plan, err
}

func (p *LLMPlanner) generate(ctx context.Context, input actionloop.PlanInput) ([]actionloop.PlannedAction, error) {
	if input.Message == "" {
		return nil, actionloop.NewNoMessageError()
	}

	tools := p.eligibleTools(input)
	metadata := p.registry.MetadataList(tools)

	cacheKey := p.cacheKey(input, metadata)
	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, cacheKey); err == nil {
			if plan, ok := decodeCachedPlan(cached); ok {
				return plan, nil
			}
		}
	}

	req := actionloop.ModelRequest{
		System:      buildSystemPrompt(p.maxSteps),
		User:        buildUserPrompt(input, metadata),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		SessionID:   input.SessionID,
	}
	resp, err := p.invoker.Invoke(ctx, req)
	if err != nil {
		return nil, actionloop.NewModelInvocationError("planning", err)
	}

	plan, err := p.parsePlan(resp.Text)
	if err != nil {
		return nil, err
	}

	if err := p.validatePlan(plan, tools, input); err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, plan); err != nil {
			log.Printf("failed to cache plan (session: %s): %v", input.SessionID, err)
		}
	}

	return plan, nil
}

// eligibleTools narrows the catalog by role applicability and, in discovery
// mode, to identifier-agnostic tools.
func (p *LLMPlanner) eligibleTools(input actionloop.PlanInput) []actionloop.Tool {
	var tools []actionloop.Tool
	if input.RoleID != "" {
		tools = p.registry.GetApplicable(input.RoleID)
	} else {
		tools = p.registry.List()
	}

	if input.Mode != actionloop.ModeDiscovery {
		return tools
	}

	eligible := make([]actionloop.Tool, 0, len(tools))
	for _, tool := range tools {
		if isIdentifierAgnostic(tool.Spec()) {
			eligible = append(eligible, tool)
		}
	}
	return eligible
}

func isIdentifierAgnostic(spec actionloop.ToolSpec) bool {
	for _, name := range spec.RequiredInputs {
		if identityKeys[name] {
			return false
		}
	}
	for _, name := range spec.RequiredContext {
		if identityKeys[name] {
			return false
		}
	}
	return true
}

// parsePlan strips markdown fences and parses the strict JSON array. Any
// other shape is a fatal parse error.
func (p *LLMPlanner) parsePlan(raw string) ([]actionloop.PlannedAction, error) {
	clean := stripFences(raw)
	if clean == "" {
		return nil, actionloop.NewPlanParseError("model returned an empty plan response", nil)
	}
	// json.Unmarshal accepts "null" into a slice without error, so the array
	// shape has to be checked up front.
	if clean[0] != '[' {
		return nil, actionloop.NewPlanParseError("model response is not a JSON action array", nil)
	}

	plan := []actionloop.PlannedAction{}
	if err := json.Unmarshal([]byte(clean), &plan); err != nil {
		return nil, actionloop.NewPlanParseError("model response is not a JSON action array", err)
	}

	for i := range plan {
		if plan[i].Args == nil {
			plan[i].Args = map[string]any{}
		}
	}
	return plan, nil
}

// validatePlan resolves every step against the eligible catalog, enforces
// the step bound, and checks hard prerequisite ordering.
func (p *LLMPlanner) validatePlan(plan []actionloop.PlannedAction, tools []actionloop.Tool, input actionloop.PlanInput) error {
	if p.maxSteps > 0 && len(plan) > p.maxSteps {
		return actionloop.NewValidationError("planning",
			fmt.Sprintf("plan has %d steps, maximum is %d", len(plan), p.maxSteps), nil)
	}

	eligible := make(map[string]actionloop.ToolSpec, len(tools))
	for _, tool := range tools {
		eligible[tool.Spec().ID] = tool.Spec()
	}
	// The finalizer is always addressable even when filtered out of prompts.
	if tool, err := p.registry.Get(actionloop.FinalizerToolID); err == nil {
		eligible[actionloop.FinalizerToolID] = tool.Spec()
	}

	executed := input.History.ExecutedTools()
	seen := make(map[string]bool, len(plan))

	for i, action := range plan {
		if action.Tool == "" {
			return actionloop.NewPlanParseError(fmt.Sprintf("step %d has no tool id", i), nil)
		}
		spec, ok := eligible[action.Tool]
		if !ok {
			if p.registry.Has(action.Tool) {
				return actionloop.NewValidationError("planning",
					fmt.Sprintf("tool '%s' is not eligible for this request", action.Tool), nil)
			}
			return actionloop.NewToolNotFoundError("planning", action.Tool)
		}

		for _, prereq := range spec.HardPrerequisites {
			if !executed[prereq] && !seen[prereq] {
				return actionloop.NewValidationError("planning",
					fmt.Sprintf("tool '%s' requires '%s' to run first", action.Tool, prereq), nil)
			}
		}
		seen[action.Tool] = true
	}

	return nil
}

// cacheKey fingerprints the planning input: message, mode, role, and the
// visible tool catalog.
func (p *LLMPlanner) cacheKey(input actionloop.PlanInput, metadata []actionloop.ToolMetadata) string {
	cacheable := struct {
		Message string                    `json:"message"`
		Mode    string                    `json:"mode"`
		RoleID  string                    `json:"roleId"`
		Tools   []actionloop.ToolMetadata `json:"tools"`
	}{
		Message: input.Message,
		Mode:    input.Mode,
		RoleID:  input.RoleID,
		Tools:   metadata,
	}

	inputBytes, err := json.Marshal(cacheable)
	if err != nil {
		log.Printf("failed to marshal planner input for cache key: %v", err)
		return "planner:" + input.Message
	}

	hasher := sha1.New()
	hasher.Write(inputBytes)
	return "planner:" + hex.EncodeToString(hasher.Sum(nil))
}

// decodeCachedPlan coerces a cached value back into a plan. Backends that
// round-trip through JSON hand back generic maps.
func decodeCachedPlan(v any) ([]actionloop.PlannedAction, bool) {
	if plan, ok := v.([]actionloop.PlannedAction); ok {
		out := make([]actionloop.PlannedAction, len(plan))
		copy(out, plan)
		return out, true
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var plan []actionloop.PlannedAction
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, false
	}
	if len(plan) == 0 {
		return nil, false
	}
	for i := range plan {
		if plan[i].Tool == "" {
			return nil, false
		}
		if plan[i].Args == nil {
			plan[i].Args = map[string]any{}
		}
	}
	return plan, true
}
