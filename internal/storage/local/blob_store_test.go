package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty base dir")
	}
}

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()
	base := filepath.Join(t.TempDir(), "snapshots")

	if _, err := New(Config{BaseDir: base}); err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		t.Fatalf("base dir not created: %v", err)
	}
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	store, err := New(Config{BaseDir: base})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	uri, err := store.PutObject(context.Background(), "snapshots/abc/1.html", "text/html", strings.NewReader("<html></html>"))
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if !strings.HasPrefix(uri, "file://") {
		t.Fatalf("uri = %q, want file:// prefix", uri)
	}

	data, err := os.ReadFile(filepath.Join(base, "snapshots", "abc", "1.html"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "<html></html>" {
		t.Fatalf("content = %q", data)
	}
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := store.PutObject(context.Background(), "../escape.html", "text/html", strings.NewReader("x")); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := store.PutObject(context.Background(), "", "text/html", strings.NewReader("x")); err == nil {
		t.Fatal("expected empty path rejection")
	}
}
