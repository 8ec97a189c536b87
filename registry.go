package actionloop

import (
	"strings"
	"sync"
)

// ValidationReport is the result of checking a tool's declared inputs.
// Issues carries the field-level schema violations when the values are
// present but malformed.
type ValidationReport struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
	Issues  []string `json:"issues,omitempty"`
}

// ToolMetadata is the compact projection of a tool used in planner prompts.
type ToolMetadata struct {
	ID                string         `json:"id"`
	Description       string         `json:"description"`
	RequiredInputs    []string       `json:"requiredInputs,omitempty"`
	RequiredContext   []string       `json:"requiredContext,omitempty"`
	HardPrerequisites []string       `json:"hardPrerequisites,omitempty"`
	SoftPrerequisites []string       `json:"softPrerequisites,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Schema            map[string]any `json:"schema,omitempty"`
}

// Registry holds the tools available to the loop. It is an injected instance,
// wired once at startup and read-only afterwards. The RWMutex keeps reads
// safe should registration ever happen after startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its spec id. Registering an empty id or a nil
// tool is a configuration error; re-registering an id replaces the tool but
// keeps its original position in the listing order.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return NewConfigurationError("cannot register a nil tool", nil)
	}
	id := tool.Spec().ID
	if id == "" {
		return NewConfigurationError("cannot register a tool with an empty id", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[id]; !exists {
		r.order = append(r.order, id)
	}
	r.tools[id] = tool
	return nil
}

// Get retrieves a tool by id. Returns a typed not-found error, never panics.
func (r *Registry) Get(id string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	if !ok {
		return nil, NewToolNotFoundError("registry", id)
	}
	return tool, nil
}

// Has reports whether a tool id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[id]
	return ok
}

// List returns all tools in stable registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id])
	}
	return out
}

// GetByTag returns tools carrying the given tag, in registration order.
func (r *Registry) GetByTag(tag string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, id := range r.order {
		for _, t := range r.tools[id].Spec().Tags {
			if t == tag {
				out = append(out, r.tools[id])
				break
			}
		}
	}
	return out
}

// GetApplicable returns tools applicable to the given role. Tools with no
// declared roles apply to every role.
func (r *Registry) GetApplicable(roleID string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, id := range r.order {
		spec := r.tools[id].Spec()
		if len(spec.Roles) == 0 {
			out = append(out, r.tools[id])
			continue
		}
		for _, role := range spec.Roles {
			if role == roleID {
				out = append(out, r.tools[id])
				break
			}
		}
	}
	return out
}

// MetadataList returns the prompt projection of the given tools. A nil slice
// projects every registered tool.
func (r *Registry) MetadataList(tools []Tool) []ToolMetadata {
	if tools == nil {
		tools = r.List()
	}
	out := make([]ToolMetadata, 0, len(tools))
	for _, tool := range tools {
		spec := tool.Spec()
		out = append(out, ToolMetadata{
			ID:                spec.ID,
			Description:       spec.Description,
			RequiredInputs:    spec.RequiredInputs,
			RequiredContext:   spec.RequiredContext,
			HardPrerequisites: spec.HardPrerequisites,
			SoftPrerequisites: spec.SoftPrerequisites,
			Tags:              spec.Tags,
			Schema:            tool.Schema(),
		})
	}
	return out
}

// ValidateInputs checks the provided values against the tool's declaration:
// schema validation when the tool declares a schema, otherwise a presence
// check on RequiredInputs.
func (r *Registry) ValidateInputs(id string, values map[string]any) (ValidationReport, error) {
	tool, err := r.Get(id)
	if err != nil {
		return ValidationReport{}, err
	}
	spec := tool.Spec()

	var missing []string
	for _, name := range spec.RequiredInputs {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ValidationReport{Valid: false, Missing: missing}, nil
	}

	if tool.Schema() != nil {
		if err := tool.ValidateArgs(values); err != nil {
			return ValidationReport{Valid: false, Issues: validationIssues(err)}, nil
		}
	}
	return ValidationReport{Valid: true}, nil
}

// validationIssues flattens a schema validation error into per-line issues.
func validationIssues(err error) []string {
	var issues []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			issues = append(issues, line)
		}
	}
	return issues
}
