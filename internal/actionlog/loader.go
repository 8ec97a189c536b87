package actionlog

import (
	"context"

	"github.com/talentmesh/actionloop"
)

// RecentLister is the slice of the store API the history loader needs.
type RecentLister interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]actionloop.LogEntry, error)
}

// HistoryLoader builds conversation history from the action log. It is the
// default ContextLoader when no richer conversation store is wired in.
type HistoryLoader struct {
	store RecentLister
	limit int
}

// NewHistoryLoader creates a loader reading up to limit recent actions.
func NewHistoryLoader(store RecentLister, limit int) *HistoryLoader {
	if limit <= 0 {
		limit = 50
	}
	return &HistoryLoader{store: store, limit: limit}
}

// Load returns the session's recent actions in chronological order.
func (l *HistoryLoader) Load(ctx context.Context, sessionID string) (*actionloop.ConversationContext, error) {
	entries, err := l.store.Recent(ctx, sessionID, l.limit)
	if err != nil {
		return nil, err
	}

	// Recent returns newest first; history reads oldest first.
	actions := make([]actionloop.LogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i])
	}

	return &actionloop.ConversationContext{AgentActions: actions}, nil
}
