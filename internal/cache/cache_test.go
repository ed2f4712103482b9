package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/huraaa/Agent-one/internal/database"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(database.DriverCGO, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMakeKey_Stable(t *testing.T) {
	a := MakeKey("gpt-4.1", "What is 17*24?", map[string]string{"name": "Ada", "citation_style": "path-only"})
	b := MakeKey("gpt-4.1", "What is 17*24?", map[string]string{"citation_style": "path-only", "name": "Ada"})
	if a != b {
		t.Errorf("key depends on map order: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestMakeKey_Sensitivity(t *testing.T) {
	base := MakeKey("gpt-4.1", "goal", map[string]string{"citation_style": "path-only"})

	tests := []struct {
		name    string
		model   string
		prompt  string
		profile map[string]string
	}{
		{"model", "gpt-4.1-mini", "goal", map[string]string{"citation_style": "path-only"}},
		{"prompt", "gpt-4.1", "goal ", map[string]string{"citation_style": "path-only"}},
		{"profile value", "gpt-4.1", "goal", map[string]string{"citation_style": "apa"}},
		{"profile added key", "gpt-4.1", "goal", map[string]string{"citation_style": "path-only", "name": "Ada"}},
		{"profile emptied", "gpt-4.1", "goal", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MakeKey(tt.model, tt.prompt, tt.profile); got == base {
				t.Errorf("changing %s did not change the key", tt.name)
			}
		})
	}
}

func TestMakeKey_NilAndEmptyProfileEqual(t *testing.T) {
	if MakeKey("m", "p", nil) != MakeKey("m", "p", map[string]string{}) {
		t.Error("nil and empty profile should hash equally")
	}
}

func TestStore_GetSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("Get(missing) = found %v, err %v", found, err)
	}

	if err := s.Set(ctx, "k1", "408"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, found, err := s.Get(ctx, "k1")
	if err != nil || !found || got != "408" {
		t.Fatalf("Get(k1) = %q, %v, %v", got, found, err)
	}

	// Last write wins, one row per key.
	if err := s.Set(ctx, "k1", "409"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _, _ = s.Get(ctx, "k1")
	if got != "409" {
		t.Errorf("after overwrite Get = %q, want 409", got)
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestStore_EmptyAnswerIsHit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || got != "" {
		t.Errorf("Get = %q, found %v, err %v; want empty hit", got, found, err)
	}
}

func TestStore_Clear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.Set(ctx, "a", "1")
	s.Set(ctx, "b", "2")

	n, err := s.Clear(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v; want 2", n, err)
	}
	if _, found, _ := s.Get(ctx, "a"); found {
		t.Error("entry survived Clear")
	}
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	db, _ := database.Open(database.DriverCGO, path)
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.Set(ctx, "k", "v")
	s.Close()

	db2, _ := database.Open(database.DriverCGO, path)
	s2, err := NewStore(db2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if got, found, _ := s2.Get(ctx, "k"); !found || got != "v" {
		t.Errorf("after reopen Get = %q, %v", got, found)
	}
}
