package actionloop

import "context"

// Planner generates an ordered action plan from the request and context.
type Planner interface {
	GeneratePlan(ctx context.Context, input PlanInput) ([]PlannedAction, error)
}

// Tool represents an executable action that can be part of a plan.
type Tool interface {
	// Spec returns the tool's declared identity and requirements.
	Spec() ToolSpec

	// Schema returns the JSON Schema for the tool's arguments, or nil when
	// the tool declares none. Used for validation and planner prompts.
	Schema() map[string]any

	// ValidateArgs checks the bound arguments against the tool's schema.
	// Returns nil when valid or when no schema is declared.
	ValidateArgs(args map[string]any) error

	// Execute performs the tool's action. input is the merged view of the
	// context snapshot and the bound arguments.
	Execute(ctx context.Context, input map[string]any) (*ToolResult, error)
}

// ModelInvoker abstracts the LLM used for planning and summarization.
type ModelInvoker interface {
	Invoke(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// Embedder produces vector fingerprints for messages and step descriptions.
// Embeddings never influence plan correctness.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContextLoader loads conversation history for a session. Failures degrade
// gracefully: the runtime plans without history.
type ContextLoader interface {
	Load(ctx context.Context, sessionID string) (*ConversationContext, error)
}

// ActionLog persists executed actions and serves cache lookups.
type ActionLog interface {
	Append(ctx context.Context, entry LogEntry) error

	// FindLatest returns the most recent entry for the tool in the session,
	// or (nil, nil) when none exists.
	FindLatest(ctx context.Context, sessionID, toolID string) (*LogEntry, error)
}

// Notifier delivers user-facing progress and failure messages. Best-effort:
// callers ignore its errors.
type Notifier interface {
	Notify(ctx context.Context, sessionID, message string, meta map[string]any) error
}

// Cache provides storage for frequently accessed data, like generated plans.
// Get returns a not-found error on miss.
type Cache interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any) error
}
