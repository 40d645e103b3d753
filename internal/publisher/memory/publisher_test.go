package memory

import (
	"context"
	"testing"
)

func TestPublishRecordsMessages(t *testing.T) {
	t.Parallel()
	p := New()

	id, err := p.Publish(context.Background(), "scan-results", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Fatal("expected a message id")
	}

	if _, err := p.Publish(context.Background(), "scan-results", "second"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs := p.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Topic != "scan-results" {
		t.Fatalf("topic = %q", msgs[0].Topic)
	}
	if msgs[1].Payload != "second" {
		t.Fatalf("payload = %v", msgs[1].Payload)
	}
}
