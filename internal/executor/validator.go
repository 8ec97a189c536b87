package executor

import (
	"fmt"

	"github.com/talentmesh/actionloop"
)

// validate is the pre-invocation gate: required context keys, required args,
// then schema validation. A failing gate means the tool body never runs.
func (e *Executor) validate(tool actionloop.Tool, args map[string]any, store *actionloop.ContextStore) error {
	spec := tool.Spec()

	for _, key := range spec.RequiredContext {
		if !store.Has(key) {
			return actionloop.NewValidationError("execution",
				fmt.Sprintf("tool '%s' requires context key '%s'", spec.ID, key), nil)
		}
	}

	for _, name := range spec.RequiredInputs {
		if _, ok := args[name]; !ok {
			return actionloop.NewValidationError("execution",
				fmt.Sprintf("tool '%s' is missing required input '%s'", spec.ID, name), nil)
		}
	}

	if err := tool.ValidateArgs(args); err != nil {
		return actionloop.NewValidationError("execution",
			fmt.Sprintf("arguments for tool '%s' failed schema validation", spec.ID), err)
	}

	return nil
}
