// Package adapters bridges external systems (Genkit models, JSON Schema
// validation, the event bus) to the actionloop interfaces.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/talentmesh/actionloop"
)

// ToolFunc is the body of an adapted tool. It receives the merged
// context-plus-args input and returns the step result.
type ToolFunc func(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error)

// GoToolAdapter adapts a Go function to the actionloop.Tool interface,
// with JSON Schema argument validation compiled at construction.
type GoToolAdapter struct {
	spec      actionloop.ToolSpec
	toolFunc  ToolFunc
	schemaDoc map[string]any
	compiled  *jsonschema.Schema
	validator func(map[string]any) error
}

// ToolOption configures a GoToolAdapter.
type ToolOption func(*GoToolAdapter)

// WithDescription sets the tool description shown to the planner.
func WithDescription(description string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.spec.Description = description
	}
}

// WithRequiredInputs names the argument keys the binder must fill.
func WithRequiredInputs(names ...string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.spec.RequiredInputs = names
	}
}

// WithRequiredContext names the context keys that must exist before the
// tool runs.
func WithRequiredContext(names ...string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.spec.RequiredContext = names
	}
}

// WithHardPrerequisites names tools that must have run earlier.
func WithHardPrerequisites(ids ...string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.spec.HardPrerequisites = ids
	}
}

// WithSoftPrerequisites names tools that improve results but are not
// enforced.
func WithSoftPrerequisites(ids ...string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.spec.SoftPrerequisites = ids
	}
}

// WithTags labels the tool for catalog filtering.
func WithTags(tags ...string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.spec.Tags = tags
	}
}

// WithRoles restricts the tool to the given role ids.
func WithRoles(roles ...string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.spec.Roles = roles
	}
}

// WithArgSchema attaches a JSON Schema document validated against every
// bound argument set.
func WithArgSchema(schema map[string]any) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.schemaDoc = schema
	}
}

// WithValidator sets a custom validator run before the schema check.
func WithValidator(validator func(map[string]any) error) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.validator = validator
	}
}

// NewGoToolAdapter creates a tool from a Go function. The arg schema, when
// present, is compiled here so malformed schemas fail at startup rather
// than mid-plan.
func NewGoToolAdapter(id string, toolFunc ToolFunc, options ...ToolOption) (*GoToolAdapter, error) {
	if id == "" {
		return nil, actionloop.NewConfigurationError("tool adapter requires an id", nil)
	}
	if toolFunc == nil {
		return nil, actionloop.NewConfigurationError(fmt.Sprintf("tool '%s' has no function", id), nil)
	}

	adapter := &GoToolAdapter{
		spec:     actionloop.ToolSpec{ID: id},
		toolFunc: toolFunc,
	}
	for _, option := range options {
		option(adapter)
	}

	if adapter.schemaDoc != nil {
		compiled, err := compileSchema(id, adapter.schemaDoc)
		if err != nil {
			return nil, actionloop.NewConfigurationError(
				fmt.Sprintf("tool '%s' has an invalid argument schema", id), err)
		}
		adapter.compiled = compiled
	}

	return adapter, nil
}

func compileSchema(id string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	resource := id + ".schema.json"
	if err := compiler.AddResource(resource, parsed); err != nil {
		return nil, err
	}
	return compiler.Compile(resource)
}

// Spec implements actionloop.Tool.
func (a *GoToolAdapter) Spec() actionloop.ToolSpec {
	return a.spec
}

// Schema implements actionloop.Tool. Nil when no schema was attached.
func (a *GoToolAdapter) Schema() map[string]any {
	return a.schemaDoc
}

// ValidateArgs implements actionloop.Tool. Args are round-tripped through
// JSON so typed values compare as the schema expects.
func (a *GoToolAdapter) ValidateArgs(args map[string]any) error {
	if a.validator != nil {
		if err := a.validator(args); err != nil {
			return err
		}
	}
	if a.compiled == nil {
		return nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("args for '%s' are not serializable: %w", a.spec.ID, err)
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("args for '%s' are not valid JSON: %w", a.spec.ID, err)
	}
	return a.compiled.Validate(instance)
}

// Execute implements actionloop.Tool.
func (a *GoToolAdapter) Execute(ctx context.Context, input map[string]any) (*actionloop.ToolResult, error) {
	if input == nil {
		input = map[string]any{}
	}
	return a.toolFunc(ctx, input)
}
