package adapters

import (
	"context"

	"github.com/talentmesh/actionloop"
	"github.com/talentmesh/actionloop/internal/eventbus"
)

// EventBusNotifier implements actionloop.Notifier by publishing user
// notifications to the event bus, where transport subscribers deliver them.
type EventBusNotifier struct {
	bus    eventbus.EventBus
	source string
}

// NewEventBusNotifier creates a notifier over the bus.
func NewEventBusNotifier(bus eventbus.EventBus) (*EventBusNotifier, error) {
	if bus == nil {
		return nil, actionloop.NewConfigurationError("notifier requires an event bus", nil)
	}
	return &EventBusNotifier{bus: bus, source: "executor"}, nil
}

// Notify implements actionloop.Notifier.
func (n *EventBusNotifier) Notify(ctx context.Context, sessionID, message string, meta map[string]any) error {
	metadata := map[string]interface{}{
		"sessionID": sessionID,
	}
	for k, v := range meta {
		metadata[k] = v
	}

	event := eventbus.NewEvent(eventbus.EventUserNotification, message, n.source, metadata)
	return n.bus.Publish(ctx, event)
}
