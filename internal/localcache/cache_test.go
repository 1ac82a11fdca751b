package localcache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"planner/api/internal/plandoc"
)

func backends(t *testing.T) map[string]Cache {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Cache{
		"file":   NewFile(t.TempDir()),
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := cache.Get(ctx, "feature:schedule"); err != nil || ok {
				t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
			}

			want := json.RawMessage(`{"slots":[1,2,3]}`)
			if err := cache.Put(ctx, "feature:schedule", want); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, ok, err := cache.Get(ctx, "feature:schedule")
			if err != nil || !ok {
				t.Fatalf("Get() ok=%v err=%v", ok, err)
			}
			if string(got) != string(want) {
				t.Fatalf("Get() = %s, want %s", got, want)
			}

			if err := cache.Put(ctx, "feature:schedule", json.RawMessage(`[]`)); err != nil {
				t.Fatalf("overwrite error = %v", err)
			}
			got, _, _ = cache.Get(ctx, "feature:schedule")
			if string(got) != `[]` {
				t.Fatalf("expected overwrite, got %s", got)
			}

			if err := cache.Delete(ctx, "feature:schedule"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, ok, _ := cache.Get(ctx, "feature:schedule"); ok {
				t.Fatal("expected key deleted")
			}
			if err := cache.Delete(ctx, "feature:schedule"); err != nil {
				t.Fatalf("second Delete() error = %v", err)
			}
		})
	}
}

func TestFileCacheReportsCorruptValueAsParseError(t *testing.T) {
	dir := t.TempDir()
	cache := NewFile(dir)
	if err := os.WriteFile(filepath.Join(dir, "remote:document.json"), []byte(`{"version":`), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	_, ok, err := cache.Get(context.Background(), "remote:document")
	if ok {
		t.Fatal("corrupt value must not be returned")
	}
	if !plandoc.IsParse(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestFileCacheWithoutDirIsEmpty(t *testing.T) {
	cache := NewFile("")
	if _, ok, err := cache.Get(context.Background(), "k"); ok || err != nil {
		t.Fatalf("expected empty read, ok=%v err=%v", ok, err)
	}
	if err := cache.Put(context.Background(), "k", json.RawMessage(`1`)); err == nil {
		t.Fatal("expected write without dir to fail")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	if _, ok := mustOpen(t, ctx, "memory").(*Memory); !ok {
		t.Fatal("expected memory backend")
	}
	if _, ok := mustOpen(t, ctx, "").(*File); !ok {
		t.Fatal("expected file backend by default")
	}
	if _, err := Open(ctx, "bogus", t.TempDir()); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func mustOpen(t *testing.T, ctx context.Context, backend string) Cache {
	t.Helper()
	cache, err := Open(ctx, backend, t.TempDir())
	if err != nil {
		t.Fatalf("Open(%q) error = %v", backend, err)
	}
	return cache
}
