package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, 7, []byte("<h1>v1</h1>")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "campaigns", "7.html")); err != nil {
		t.Errorf("expected body at campaigns/7.html: %v", err)
	}

	if err := s.Put(ctx, 7, []byte("<h1>v2</h1>")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "<h1>v2</h1>" {
		t.Errorf("expected latest body, got %q", got)
	}

	if err := s.Delete(ctx, 7); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, 7); err != nil {
		t.Errorf("expected idempotent delete, got %v", err)
	}
}

func TestLocalStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	if err := s.Put(context.Background(), 1, []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "campaigns", ".tmp-*"))
	if len(matches) != 0 {
		t.Errorf("expected no temp files, found %v", matches)
	}
}

func TestKey(t *testing.T) {
	if got := Key(42); got != "campaigns/42.html" {
		t.Errorf("expected campaigns/42.html, got %s", got)
	}
}
