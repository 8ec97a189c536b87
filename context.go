package actionloop

import "sync"

// Well-known context store keys.
const (
	KeySessionID        = "sessionId"
	KeyProfileID        = "profileId"
	KeyRoleID           = "roleId"
	KeyLastMessage      = "lastMessage"
	KeyFocus            = "focus"
	KeySummary          = "conversationSummary"
	KeyContextEmbedding = "contextEmbedding"
	KeyDownstream       = "downstreamData"
)

// ContextStore is the string-keyed working memory of one request. Writes are
// append-oriented: Set never deletes, the last writer for a key wins. The
// downstream map under KeyDownstream accumulates payloads tools declare for
// later steps.
type ContextStore struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewContextStore creates an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{data: make(map[string]any)}
}

// NewContextStoreFromRequest seeds a store from the request envelope. Empty
// identity fields are not written, so discovery detection can rely on key
// absence.
func NewContextStoreFromRequest(req *Request) *ContextStore {
	s := NewContextStore()
	s.Set(KeySessionID, req.SessionID)
	if req.Context.ProfileID != "" {
		s.Set(KeyProfileID, req.Context.ProfileID)
	}
	if req.Context.RoleID != "" {
		s.Set(KeyRoleID, req.Context.RoleID)
	}
	if msg := req.LatestMessage(); msg != "" {
		s.Set(KeyLastMessage, msg)
	}
	if req.Context.Focus != "" {
		s.Set(KeyFocus, req.Context.Focus)
	}
	for k, v := range req.Context.Extra {
		s.Set(k, v)
	}
	return s
}

// Set stores a value under key.
func (s *ContextStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get retrieves a value by key.
func (s *ContextStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// GetString retrieves a string value by key, "" when absent or non-string.
func (s *ContextStore) GetString(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Has reports whether key is present.
func (s *ContextStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// MergeDownstream merges the given payload into the shared downstream map.
func (s *ContextStore) MergeDownstream(payload map[string]any) {
	if len(payload) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	down, _ := s.data[KeyDownstream].(map[string]any)
	if down == nil {
		down = make(map[string]any, len(payload))
		s.data[KeyDownstream] = down
	}
	for k, v := range payload {
		down[k] = v
	}
}

// Downstream returns a copy of the shared downstream map.
func (s *ContextStore) Downstream() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	down, _ := s.data[KeyDownstream].(map[string]any)
	if down == nil {
		return nil
	}
	out := make(map[string]any, len(down))
	for k, v := range down {
		out[k] = v
	}
	return out
}

// Snapshot returns a shallow defensive copy of the store. The downstream
// sub-map is copied one level deep so callers cannot mutate it.
func (s *ContextStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	if down, ok := out[KeyDownstream].(map[string]any); ok {
		cp := make(map[string]any, len(down))
		for k, v := range down {
			cp[k] = v
		}
		out[KeyDownstream] = cp
	}
	return out
}
