package actionloop

import "fmt"

// Error codes for specific failure types
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeToolNotFound    = "TOOL_NOT_FOUND"
	ErrCodeToolExecution   = "TOOL_EXECUTION_ERROR"
	ErrCodeArgBinding      = "ARGUMENT_BINDING_ERROR"
	ErrCodePlanGeneration  = "PLAN_GENERATION_ERROR"
	ErrCodePlanParse       = "PLAN_PARSE_ERROR"
	ErrCodeModelInvocation = "MODEL_INVOCATION_ERROR"
	ErrCodeNoMessage       = "NO_MESSAGE_CONTENT"
	ErrCodeFinalization    = "FINALIZATION_ERROR"
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeCancelled       = "EXECUTION_CANCELLED"
	ErrCodePersistence     = "PERSISTENCE_ERROR"
	ErrCodeCache           = "CACHE_ERROR"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// LoopError is a custom error type for action loop specific errors.
type LoopError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeToolNotFound)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "planning", "execution")
	Cause   error  // The underlying error, if any

	// UserNotified marks errors the failing tool already surfaced through the
	// Notifier, so the executor does not message the user a second time.
	UserNotified bool
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LoopError.
func NewError(code, stage, message string, cause error) *LoopError {
	return &LoopError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// IsUserNotified reports whether the error was already surfaced to the user
// by the failing tool.
func IsUserNotified(err error) bool {
	if le, ok := err.(*LoopError); ok {
		return le.UserNotified
	}
	return false
}

// Specific error constructors

func NewValidationError(stage, message string, cause error) *LoopError {
	return NewError(ErrCodeValidation, stage, message, cause)
}

func NewToolNotFoundError(stage, toolID string) *LoopError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolID), nil)
}

func NewToolExecutionError(stage, toolID string, cause error) *LoopError {
	return NewError(ErrCodeToolExecution, stage, fmt.Sprintf("execution failed for tool '%s'", toolID), cause)
}

func NewArgBindingError(stage, toolID, argName string, cause error) *LoopError {
	msg := fmt.Sprintf("failed to bind argument '%s' for tool '%s'", argName, toolID)
	return NewError(ErrCodeArgBinding, stage, msg, cause)
}

func NewPlanGenerationError(cause error) *LoopError {
	return NewError(ErrCodePlanGeneration, "planning", "failed to generate plan", cause)
}

func NewPlanParseError(message string, cause error) *LoopError {
	return NewError(ErrCodePlanParse, "planning", message, cause)
}

func NewModelInvocationError(stage string, cause error) *LoopError {
	return NewError(ErrCodeModelInvocation, stage, "model invocation failed", cause)
}

func NewNoMessageError() *LoopError {
	return NewError(ErrCodeNoMessage, "planning", "no message content found in request", nil)
}

func NewFinalizationError(cause error) *LoopError {
	return NewError(ErrCodeFinalization, "finalization", "failed to synthesize summary", cause)
}

func NewConfigurationError(message string, cause error) *LoopError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *LoopError {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewPersistenceError(stage, operation string, cause error) *LoopError {
	return NewError(ErrCodePersistence, stage, fmt.Sprintf("persistence operation '%s' failed", operation), cause)
}

func NewCacheError(stage, operation string, cause error) *LoopError {
	return NewError(ErrCodeCache, stage, fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewInternalError(stage, message string, cause error) *LoopError {
	return NewError(ErrCodeInternal, stage, message, cause)
}
