package adapters

import (
	"context"

	"github.com/firebase/genkit/go/core"

	"github.com/talentmesh/actionloop"
)

// FlowModelInvoker implements actionloop.ModelInvoker over a Genkit flow,
// for deployments that expose model calls as traced, inspectable flows
// instead of direct prompt executions.
type FlowModelInvoker struct {
	flow *core.Flow[*actionloop.ModelRequest, string, struct{}]
}

// NewFlowModelInvoker creates an invoker over a defined flow.
func NewFlowModelInvoker(flow *core.Flow[*actionloop.ModelRequest, string, struct{}]) *FlowModelInvoker {
	return &FlowModelInvoker{flow: flow}
}

// Invoke implements actionloop.ModelInvoker.
func (a *FlowModelInvoker) Invoke(ctx context.Context, req actionloop.ModelRequest) (*actionloop.ModelResponse, error) {
	if a.flow == nil {
		return nil, actionloop.NewConfigurationError("invoker flow is not configured", nil)
	}

	text, err := a.flow.Run(ctx, &req)
	if err != nil {
		return nil, actionloop.NewModelInvocationError("invoke", err)
	}

	return &actionloop.ModelResponse{Text: text}, nil
}
