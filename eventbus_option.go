package actionloop

import "github.com/talentmesh/actionloop/internal/eventbus"

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(r *Runtime) {
		r.eventBus = bus
	}
}
