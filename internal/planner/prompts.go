package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talentmesh/actionloop"
)

// buildSystemPrompt states the output contract and the planning rules the
// validator will enforce, so the model fails less often.
func buildSystemPrompt(maxSteps int) string {
	var b strings.Builder
	b.WriteString(`You are a planning engine for a talent development assistant.
Given the user's message and a catalog of tools, produce the minimal ordered
sequence of tool calls that serves the request.

Rules:
- Respond with ONLY a JSON array. No prose, no markdown fences.
- Each element: {"tool": "<id>", "args": {...}, "reason": "<why>", "announcement": "<optional user-facing progress line>"}
- Use only tools from the catalog. Respect their hardPrerequisites: a tool may
  only appear after every prerequisite tool has run earlier in the plan or in a
  previous turn.
- Omit args you cannot determine from the message; requiredInputs are filled
  from session context and upstream tool outputs.
- In discovery mode only tools that need no profile or role identifier are
  available; the catalog already reflects that.
- If no tool is needed, respond with [].`)
	if maxSteps > 0 {
		fmt.Fprintf(&b, "\n- Never plan more than %d steps.", maxSteps)
	}
	return b.String()
}

// buildUserPrompt renders the catalog and request context for the model.
func buildUserPrompt(input actionloop.PlanInput, metadata []actionloop.ToolMetadata) string {
	var b strings.Builder

	catalog, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		catalog = []byte("[]")
	}
	b.WriteString("Available tools:\n")
	b.Write(catalog)
	b.WriteString("\n\n")

	if input.Mode == actionloop.ModeDiscovery {
		b.WriteString("Mode: discovery (no user identity is available).\n")
	} else {
		b.WriteString("Mode: chat.\n")
	}
	if input.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", input.SessionID)
	}
	if input.ProfileID != "" {
		fmt.Fprintf(&b, "Profile: %s\n", input.ProfileID)
	}
	if input.RoleID != "" {
		fmt.Fprintf(&b, "Role: %s\n", input.RoleID)
	}
	if input.Focus != "" {
		fmt.Fprintf(&b, "Current focus: %s\n", input.Focus)
	}
	if executed := input.History.ExecutedTools(); len(executed) > 0 {
		ids := make([]string, 0, len(executed))
		for id := range executed {
			ids = append(ids, id)
		}
		fmt.Fprintf(&b, "Tools already run this session: %s\n", strings.Join(ids, ", "))
	}

	fmt.Fprintf(&b, "\nUser message:\n%s\n", input.Message)
	return b.String()
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "[{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
