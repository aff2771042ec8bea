package localbroker_test

import (
	"context"
	"testing"
	"time"

	"github.com/goatee-collab/goatee/broker/localbroker"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := localbroker.New()
	ctx := context.Background()

	msgs, cleanup, err := b.Subscribe(ctx, "doc:1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cleanup()

	if err := b.Publish(ctx, "doc:1", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-msgs:
		if string(got) != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestPublishDoesNotCrossChannels(t *testing.T) {
	b := localbroker.New()
	ctx := context.Background()

	msgs, cleanup, err := b.Subscribe(ctx, "doc:1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cleanup()

	if err := b.Publish(ctx, "doc:2", []byte("other")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-msgs:
		t.Fatalf("unexpected delivery on doc:1: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCleanupClosesChannel(t *testing.T) {
	b := localbroker.New()
	ctx := context.Background()

	msgs, cleanup, err := b.Subscribe(ctx, "doc:1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cleanup()

	if _, ok := <-msgs; ok {
		t.Fatal("expected channel to be closed after cleanup")
	}
}
