package adapters

import (
	"context"

	"github.com/firebase/genkit/go/ai"

	"github.com/talentmesh/actionloop"
	"github.com/talentmesh/actionloop/internal/prompt"
)

// DefaultInvokePrompt is the passthrough prompt the invoker executes. It
// ships as prompts/invoke.prompt and forwards system and user text verbatim.
const DefaultInvokePrompt = "invoke"

// GenkitModelInvoker implements actionloop.ModelInvoker on top of the
// Genkit prompt registry.
type GenkitModelInvoker struct {
	prompts    *prompt.Registry
	promptName string
}

// InvokerOption configures a GenkitModelInvoker.
type InvokerOption func(*GenkitModelInvoker)

// WithPromptName overrides the prompt executed per invocation.
func WithPromptName(name string) InvokerOption {
	return func(i *GenkitModelInvoker) {
		i.promptName = name
	}
}

// NewGenkitModelInvoker creates an invoker over an initialized prompt
// registry.
func NewGenkitModelInvoker(prompts *prompt.Registry, options ...InvokerOption) (*GenkitModelInvoker, error) {
	if prompts == nil {
		return nil, actionloop.NewConfigurationError("model invoker requires a prompt registry", nil)
	}
	invoker := &GenkitModelInvoker{
		prompts:    prompts,
		promptName: DefaultInvokePrompt,
	}
	for _, option := range options {
		option(invoker)
	}
	return invoker, nil
}

// Invoke implements actionloop.ModelInvoker. The request's sampling
// parameters override the prompt's defaults.
func (i *GenkitModelInvoker) Invoke(ctx context.Context, req actionloop.ModelRequest) (*actionloop.ModelResponse, error) {
	input := map[string]interface{}{
		"system": req.System,
		"user":   req.User,
	}

	config := &ai.GenerationCommonConfig{
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = req.MaxTokens
	}

	resp, err := i.prompts.ExecutePrompt(ctx, i.promptName, input, ai.WithConfig(config))
	if err != nil {
		return nil, actionloop.NewModelInvocationError("invoke", err)
	}

	return &actionloop.ModelResponse{Text: resp.Text()}, nil
}
