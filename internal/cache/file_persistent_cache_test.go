package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFilePersistentCache_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	ctx := context.Background()

	first := NewFilePersistentCache(time.Minute, path, nil)
	if err := first.Set(ctx, "plan:abc", map[string]interface{}{"steps": float64(2)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := NewFilePersistentCache(time.Minute, path, &StdLogger{})
	got, err := second.Get(ctx, "plan:abc")
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	m, ok := got.(map[string]interface{})
	if !ok || m["steps"] != float64(2) {
		t.Errorf("unexpected value after reload: %#v", got)
	}
}

func TestFilePersistentCache_MissAndExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	ctx := context.Background()

	c := NewFilePersistentCache(30*time.Millisecond, path, nil)
	if _, err := c.Get(ctx, "missing"); err == nil {
		t.Error("expected not-found error on miss")
	}

	if err := c.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected error for expired item")
	}
}
