package memory

import (
	"context"
	"strings"
	"testing"
)

func TestPutAndGetObject(t *testing.T) {
	t.Parallel()
	store := New()

	uri, err := store.PutObject(context.Background(), "snapshots/a/1.html", "text/html", strings.NewReader("<p>x</p>"))
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if uri != "mem://snapshots/a/1.html" {
		t.Fatalf("uri = %q", uri)
	}

	obj, ok := store.GetObject("snapshots/a/1.html")
	if !ok {
		t.Fatal("object not found")
	}
	if obj.ContentType != "text/html" || string(obj.Data) != "<p>x</p>" {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()
	store := New()
	if _, err := store.PutObject(context.Background(), "  ", "text/html", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for blank path")
	}
}
