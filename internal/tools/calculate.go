package tools

import (
	"context"
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/talentmesh/actionloop"
	"github.com/talentmesh/actionloop/internal/adapters"
)

const maxExpressionLength = 256

// NewCalculateTool evaluates arithmetic expressions, e.g. estimating total
// learning hours across a plan.
func NewCalculateTool() (*adapters.GoToolAdapter, error) {
	return adapters.NewGoToolAdapter("calculate",
		func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			raw, _ := input["expression"].(string)

			expr, err := govaluate.NewEvaluableExpression(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid expression '%s': %w", raw, err)
			}
			value, err := expr.Evaluate(nil)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate '%s': %w", raw, err)
			}

			return &actionloop.ToolResult{
				Output: map[string]any{
					"expression": raw,
					"result":     value,
				},
			}, nil
		},
		adapters.WithDescription("Evaluates a mathematical expression, e.g. '6*5+4'."),
		adapters.WithRequiredInputs("expression"),
		adapters.WithTags("math"),
		adapters.WithArgSchema(map[string]any{
			"type":     "object",
			"required": []any{"expression"},
			"properties": map[string]any{
				"expression": map[string]any{
					"type":      "string",
					"minLength": float64(1),
					"maxLength": float64(maxExpressionLength),
				},
			},
		}),
	)
}
