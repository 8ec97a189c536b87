package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talentmesh/actionloop"
	"github.com/talentmesh/actionloop/internal/adapters"
)

const summarySystemPrompt = `You summarize what a talent development assistant
just did for the user. Write one short, friendly paragraph covering the
actions taken and their key outcomes. Mention failures plainly, without
technical detail. Do not invent results.`

// NewSummarizeTool builds the reserved finalizer tool. It never appears in
// execution plans; the runtime invokes it after the plan completes.
func NewSummarizeTool(invoker actionloop.ModelInvoker) (*adapters.GoToolAdapter, error) {
	if invoker == nil {
		return nil, actionloop.NewConfigurationError("summarize tool requires a model invoker", nil)
	}

	return adapters.NewGoToolAdapter(actionloop.FinalizerToolID,
		func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
			sessionID, _ := input["sessionId"].(string)

			resp, err := invoker.Invoke(ctx, actionloop.ModelRequest{
				System:      summarySystemPrompt,
				User:        summaryUserPrompt(input),
				Temperature: 0.3,
				MaxTokens:   512,
				SessionID:   sessionID,
			})
			if err != nil {
				return nil, err
			}

			return &actionloop.ToolResult{Output: strings.TrimSpace(resp.Text)}, nil
		},
		adapters.WithDescription("Writes the closing summary for a completed run."),
		adapters.WithTags("finalizer"),
	)
}

func summaryUserPrompt(input map[string]any) string {
	var b strings.Builder
	b.WriteString("Run record:\n")

	if plan, ok := input["plan"]; ok {
		writeSection(&b, "Planned actions", plan)
	}
	if results, ok := input["results"]; ok {
		writeSection(&b, "Results", results)
	}

	b.WriteString("\nSummarize this run for the user.\n")
	return b.String()
}

func writeSection(b *strings.Builder, title string, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", v))
	}
	fmt.Fprintf(b, "\n%s:\n%s\n", title, raw)
}
