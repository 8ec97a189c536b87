package actionlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/talentmesh/actionloop"
)

type store interface {
	Append(ctx context.Context, entry actionloop.LogEntry) error
	FindLatest(ctx context.Context, sessionID, toolID string) (*actionloop.LogEntry, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]actionloop.LogEntry, error)
}

func testStores(t *testing.T) map[string]store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "actions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func entry(session, tool, hash string, step int, success bool) actionloop.LogEntry {
	return actionloop.LogEntry{
		SessionID: session,
		Tool:      tool,
		StepIndex: step,
		ArgsHash:  hash,
		Input:     map[string]any{"profileId": "p1"},
		Output:    map[string]any{"gaps": []any{"g1"}},
		Success:   success,
		Embedding: []float32{0.1, 0.2},
		CreatedAt: time.Now().UTC(),
	}
}

func TestStore_AppendAndFindLatest(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Append(ctx, entry("s1", "getCapabilityGaps", "h1", 0, true)); err != nil {
				t.Fatalf("Append: %v", err)
			}
			if err := s.Append(ctx, entry("s1", "getCapabilityGaps", "h2", 1, false)); err != nil {
				t.Fatalf("Append: %v", err)
			}
			if err := s.Append(ctx, entry("s2", "getCapabilityGaps", "h3", 0, true)); err != nil {
				t.Fatalf("Append: %v", err)
			}

			got, err := s.FindLatest(ctx, "s1", "getCapabilityGaps")
			if err != nil {
				t.Fatalf("FindLatest: %v", err)
			}
			if got == nil {
				t.Fatal("expected an entry")
			}
			if got.ArgsHash != "h2" || got.Success {
				t.Errorf("expected latest entry h2/failed, got %+v", got)
			}
			if got.Input["profileId"] != "p1" {
				t.Errorf("expected input round-trip, got %+v", got.Input)
			}
		})
	}
}

func TestStore_FindLatestMissIsNil(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.FindLatest(context.Background(), "none", "tool")
			if err != nil {
				t.Fatalf("FindLatest: %v", err)
			}
			if got != nil {
				t.Errorf("expected nil on miss, got %+v", got)
			}
		})
	}
}

func TestStore_Recent(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				if err := s.Append(ctx, entry("s1", "tool", "h", i, true)); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			entries, err := s.Recent(ctx, "s1", 3)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(entries) != 3 {
				t.Fatalf("expected 3 entries, got %d", len(entries))
			}
			if entries[0].StepIndex != 4 {
				t.Errorf("expected newest first, got step %d", entries[0].StepIndex)
			}
		})
	}
}

func TestHistoryLoader_ChronologicalOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, entry("s1", "tool", "h", i, true)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	loader := NewHistoryLoader(s, 10)
	history, err := loader.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(history.AgentActions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(history.AgentActions))
	}
	if history.AgentActions[0].StepIndex != 0 || history.AgentActions[2].StepIndex != 2 {
		t.Errorf("expected chronological order, got %+v", history.AgentActions)
	}
}
