package tools

import (
	"context"
	"fmt"
	"log"

	"github.com/talentmesh/actionloop"
	"github.com/talentmesh/actionloop/internal/adapters"
)

// SetupTools builds the built-in tool set over the directory. The summary
// tool is included only when a model invoker is available.
func SetupTools(directory *Directory, invoker actionloop.ModelInvoker) ([]actionloop.Tool, error) {
	if directory == nil {
		return nil, actionloop.NewConfigurationError("tool setup requires a directory", nil)
	}

	builders := []func() (actionloop.Tool, error){
		func() (actionloop.Tool, error) { return NewCapabilityGapsTool(directory) },
		func() (actionloop.Tool, error) { return NewDevelopmentPlanTool(directory) },
		func() (actionloop.Tool, error) { return NewSkillRecommendationsTool(directory) },
		func() (actionloop.Tool, error) { return NewCalculateTool() },
	}
	if invoker != nil {
		builders = append(builders, func() (actionloop.Tool, error) { return NewSummarizeTool(invoker) })
	}

	tools := make([]actionloop.Tool, 0, len(builders))
	for _, build := range builders {
		tool, err := build()
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// NewCapabilityGapsTool compares a profile's skills against a target
// role's bar. Gap ids flow downstream for the development plan.
func NewCapabilityGapsTool(directory *Directory) (*adapters.GoToolAdapter, error) {
	return adapters.NewGoToolAdapter("getCapabilityGaps",
		func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			profileID, _ := input[actionloop.KeyProfileID].(string)
			roleID, _ := input[actionloop.KeyRoleID].(string)

			gaps, err := directory.GapsFor(profileID, roleID)
			if err != nil {
				return nil, err
			}
			log.Printf("Capability gaps computed (profile: %s, role: %s, gaps: %d)", profileID, roleID, len(gaps))

			gapIDs := make([]any, 0, len(gaps))
			for _, gap := range gaps {
				gapIDs = append(gapIDs, gap.SkillID)
			}

			return &actionloop.ToolResult{
				Output: map[string]any{
					"profileId": profileID,
					"roleId":    roleID,
					"gaps":      gaps,
				},
				Downstream: map[string]any{
					"gapIds": gapIDs,
				},
			}, nil
		},
		adapters.WithDescription("Compares an employee profile against a target role and returns the skill gaps."),
		adapters.WithRequiredInputs(actionloop.KeyProfileID, actionloop.KeyRoleID),
		adapters.WithTags("skills", "analysis"),
		adapters.WithArgSchema(map[string]any{
			"type":     "object",
			"required": []any{actionloop.KeyProfileID, actionloop.KeyRoleID},
			"properties": map[string]any{
				actionloop.KeyProfileID: map[string]any{"type": "string", "minLength": float64(1)},
				actionloop.KeyRoleID:    map[string]any{"type": "string", "minLength": float64(1)},
			},
		}),
	)
}

// NewDevelopmentPlanTool turns gap ids into a sequenced course plan. It
// depends on the gaps tool having run, either this turn or earlier in the
// session.
func NewDevelopmentPlanTool(directory *Directory) (*adapters.GoToolAdapter, error) {
	return adapters.NewGoToolAdapter("getDevelopmentPlan",
		func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			gapIDs, err := stringSlice(input["gapIds"])
			if err != nil {
				return nil, fmt.Errorf("gapIds: %w", err)
			}

			type planItem struct {
				SkillID string   `json:"skillId"`
				Courses []Course `json:"courses"`
				Weeks   int      `json:"weeks"`
			}

			items := make([]planItem, 0, len(gapIDs))
			totalWeeks := 0
			for _, skillID := range gapIDs {
				courses := directory.CoursesFor(skillID)
				weeks := 0
				for _, course := range courses {
					weeks += course.Weeks
				}
				items = append(items, planItem{SkillID: skillID, Courses: courses, Weeks: weeks})
				totalWeeks += weeks
			}
			log.Printf("Development plan built (skills: %d, weeks: %d)", len(items), totalWeeks)

			return &actionloop.ToolResult{
				Output: map[string]any{
					"items":      items,
					"totalWeeks": totalWeeks,
				},
			}, nil
		},
		adapters.WithDescription("Builds a sequenced learning plan for a set of skill gaps."),
		adapters.WithRequiredInputs("gapIds"),
		adapters.WithHardPrerequisites("getCapabilityGaps"),
		adapters.WithTags("skills", "planning"),
		adapters.WithArgSchema(map[string]any{
			"type":     "object",
			"required": []any{"gapIds"},
			"properties": map[string]any{
				"gapIds": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
		}),
	)
}

// NewSkillRecommendationsTool suggests adjacent skills worth developing
// next, reading the gaps result from the conversation context. The gaps
// tool is a soft prerequisite; without it the tool falls back to the
// current focus skill.
func NewSkillRecommendationsTool(directory *Directory) (*adapters.GoToolAdapter, error) {
	return adapters.NewGoToolAdapter("getSemanticSkillRecommendations",
		func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			seeds := seedSkills(input)
			if len(seeds) == 0 {
				return &actionloop.ToolResult{
					Output: map[string]any{"recommendations": []any{}},
				}, nil
			}

			seen := map[string]bool{}
			var recommendations []string
			for _, skillID := range seeds {
				for _, related := range directory.RelatedSkills(skillID) {
					if !seen[related] {
						seen[related] = true
						recommendations = append(recommendations, related)
					}
				}
			}
			log.Printf("Skill recommendations computed (seeds: %d, recommendations: %d)", len(seeds), len(recommendations))

			return &actionloop.ToolResult{
				Output: map[string]any{
					"seedSkills":      seeds,
					"recommendations": recommendations,
				},
			}, nil
		},
		adapters.WithDescription("Recommends adjacent skills based on the computed gaps or the current focus."),
		adapters.WithRequiredContext("getCapabilityGaps"),
		adapters.WithSoftPrerequisites("getCapabilityGaps"),
		adapters.WithTags("skills", "recommendations"),
	)
}

// seedSkills extracts the skill ids to expand from: the gaps output in
// context, then the focus key.
func seedSkills(input map[string]any) []string {
	if gapsOut, ok := input["getCapabilityGaps"].(map[string]any); ok {
		if gaps, ok := gapsOut["gaps"].([]Gap); ok {
			out := make([]string, 0, len(gaps))
			for _, gap := range gaps {
				out = append(out, gap.SkillID)
			}
			return out
		}
		if gaps, ok := gapsOut["gaps"].([]any); ok {
			var out []string
			for _, g := range gaps {
				if m, ok := g.(map[string]any); ok {
					if id, ok := m["skillId"].(string); ok {
						out = append(out, id)
					}
				}
			}
			return out
		}
	}
	if focus, ok := input[actionloop.KeyFocus].(string); ok && focus != "" {
		return []string{focus}
	}
	return nil
}

func stringSlice(v any) ([]string, error) {
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string array, got %T", v)
	}
}
