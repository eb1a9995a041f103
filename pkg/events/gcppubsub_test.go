package events

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
)

func TestPubSubSinkPublishes(t *testing.T) {
	// Use the in-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	defer os.Unsetenv("PUBSUB_EMULATOR_HOST")
	os.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, err := client.CreateTopic(ctx, "posting-ingested"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	sink, err := newPubSubSink(ctx, SinkConfig{
		ID:   "topic",
		Type: TypePubSub,
		PubSub: &GCPQueueConfig{
			ProjectID: "test-project",
			Topic:     "posting-ingested",
		},
	}, nil)
	if err != nil {
		t.Fatalf("newPubSubSink: %v", err)
	}
	defer sink.(*pubsubSink).Close()

	evt := NewEvent("s1", "Campus", domain.Posting{ID: 1, Category: "c"})
	if err := sink.Send(ctx, evt); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestPubSubSinkRequiresConfig(t *testing.T) {
	if _, err := newPubSubSink(context.Background(), SinkConfig{ID: "topic", Type: TypePubSub}, nil); err == nil {
		t.Fatalf("expected error without gcppubsub configuration")
	}
}
