package actionloop

import "time"

// Processing modes accepted by the runtime.
const (
	// ModeChat is the default conversational mode: identity keys are expected
	// in the request context and every applicable tool is eligible.
	ModeChat = "chat"
	// ModeDiscovery restricts planning to tools that do not require identity
	// keys. Requests without a profile or role are treated as discovery.
	ModeDiscovery = "discovery"
)

// FinalizerToolID is the reserved tool id for the terminal summary step.
// A tool registered under this id is invoked at most once, after all other
// plan steps, and its failures never fail the run.
const FinalizerToolID = "summarize"

// Message is a single conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestContext carries the caller-provided context for one request.
type RequestContext struct {
	ProfileID   string         `json:"profileId,omitempty"`
	RoleID      string         `json:"roleId,omitempty"`
	LastMessage string         `json:"lastMessage,omitempty"`
	Focus       string         `json:"focus,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Request is the inbound envelope processed by the runtime.
type Request struct {
	SessionID string         `json:"sessionId"`
	Mode      string         `json:"mode,omitempty"`
	Messages  []Message      `json:"messages,omitempty"`
	Context   RequestContext `json:"context"`
}

// LatestMessage returns the newest user message content, preferring the
// explicit context field over the message list.
func (r *Request) LatestMessage() string {
	if r.Context.LastMessage != "" {
		return r.Context.LastMessage
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" && r.Messages[i].Content != "" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// PlannedAction is one step of a generated plan.
type PlannedAction struct {
	Tool         string         `json:"tool"`
	Args         map[string]any `json:"args"`
	Reason       string         `json:"reason,omitempty"`
	Announcement string         `json:"announcement,omitempty"`
}

// ActionResult records the outcome of one executed plan step.
type ActionResult struct {
	Tool    string         `json:"tool"`
	Input   map[string]any `json:"input"`
	Output  any            `json:"output,omitempty"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	// Reused marks results replayed from the action log instead of a fresh
	// tool invocation.
	Reused bool `json:"reused,omitempty"`
}

// ToolResult is what a tool invocation produces. Downstream entries are
// merged into the shared downstream data map for later steps.
type ToolResult struct {
	Output     any            `json:"output"`
	Downstream map[string]any `json:"downstream,omitempty"`
}

// ToolSpec declares a tool's identity and requirements to the registry and
// the planner.
type ToolSpec struct {
	ID          string `json:"id"`
	Description string `json:"description"`

	// RequiredInputs must be present in the bound args at execution time.
	RequiredInputs []string `json:"requiredInputs,omitempty"`
	// RequiredContext must be present in the context store before execution.
	RequiredContext []string `json:"requiredContext,omitempty"`

	// HardPrerequisites name tools that must have run (this session or
	// earlier in the plan) before this one. SoftPrerequisites only bias the
	// planner prompt.
	HardPrerequisites []string `json:"hardPrerequisites,omitempty"`
	SoftPrerequisites []string `json:"softPrerequisites,omitempty"`

	Tags []string `json:"tags,omitempty"`
	// Roles restricts applicability; empty means applicable to every role.
	Roles []string `json:"roles,omitempty"`
}

// PlanInput contains the information needed by a Planner to generate a plan.
type PlanInput struct {
	SessionID string
	Mode      string
	Message   string
	ProfileID string
	RoleID    string
	Focus     string

	// Store is the live context store seeded from the request.
	Store *ContextStore
	// History is the loaded conversation context, nil when loading failed
	// or no loader is configured.
	History *ConversationContext
}

// ModelRequest is a single LLM invocation.
type ModelRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	SessionID   string
}

// ModelResponse carries the raw model output text.
type ModelResponse struct {
	Text string
}

// ConversationContext is the session history loaded before planning.
type ConversationContext struct {
	PastMessages     []Message  `json:"pastMessages,omitempty"`
	AgentActions     []LogEntry `json:"agentActions,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	ContextEmbedding []float32  `json:"contextEmbedding,omitempty"`
}

// ExecutedTools returns the ids of tools that ran in this session.
func (c *ConversationContext) ExecutedTools() map[string]bool {
	if c == nil {
		return nil
	}
	out := make(map[string]bool, len(c.AgentActions))
	for _, a := range c.AgentActions {
		if a.Success {
			out[a.Tool] = true
		}
	}
	return out
}

// LogEntry is one persisted action log record.
type LogEntry struct {
	SessionID string         `json:"sessionId"`
	Tool      string         `json:"tool"`
	StepIndex int            `json:"stepIndex"`
	ArgsHash  string         `json:"argsHash"`
	Input     map[string]any `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	// Downstream is the payload the tool declared for later steps; replayed
	// into the context when the entry serves a cache hit.
	Downstream map[string]any `json:"downstream,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ResponseData is the success payload of a processed request.
type ResponseData struct {
	Context             map[string]any  `json:"context"`
	IntermediateResults []ActionResult  `json:"intermediateResults"`
	Plan                []PlannedAction `json:"plan"`
	SummaryMessage      string          `json:"summaryMessage,omitempty"`
}

// ErrorInfo is the failure payload of a processed request.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Response is the outbound envelope. Step-level failures live inside
// Data.IntermediateResults with Success still true; only planner-phase and
// configuration failures produce Success false.
type Response struct {
	Success bool          `json:"success"`
	Data    *ResponseData `json:"data,omitempty"`
	Error   *ErrorInfo    `json:"error,omitempty"`
}

// errorResponse builds the failure envelope from a typed error.
func errorResponse(err error) *Response {
	info := &ErrorInfo{Type: ErrCodeInternal, Message: "internal error"}
	if le, ok := err.(*LoopError); ok {
		info.Type = le.Code
		info.Message = le.Message
		if le.Cause != nil {
			info.Details = le.Cause.Error()
		}
	} else if err != nil {
		info.Message = err.Error()
	}
	return &Response{Success: false, Error: info}
}
