package planner

import (
	"context"
	"strings"

	"github.com/talentmesh/actionloop"
)

// Rule maps message keywords to a canned plan.
type Rule struct {
	Keywords []string
	Plan     []actionloop.PlannedAction
}

// RulePlanner is a deterministic keyword planner. It backs tests and serves
// as an explicit fallback when the model-backed planner fails.
type RulePlanner struct {
	rules []Rule
}

// NewRulePlanner creates a planner over the given rules, matched in order.
func NewRulePlanner(rules ...Rule) *RulePlanner {
	return &RulePlanner{rules: rules}
}

// GeneratePlan returns a copy of the first rule's plan whose keywords all
// appear in the message. No match yields an empty plan.
func (p *RulePlanner) GeneratePlan(ctx context.Context, input actionloop.PlanInput) ([]actionloop.PlannedAction, error) {
	if input.Message == "" {
		return nil, actionloop.NewNoMessageError()
	}

	message := strings.ToLower(input.Message)
	for _, rule := range p.rules {
		if matchesAll(message, rule.Keywords) {
			plan := make([]actionloop.PlannedAction, len(rule.Plan))
			copy(plan, rule.Plan)
			return plan, nil
		}
	}
	return []actionloop.PlannedAction{}, nil
}

func matchesAll(message string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, kw := range keywords {
		if !strings.Contains(message, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}
