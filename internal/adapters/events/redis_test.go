package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poyrazK/licensegate/internal/core/domain"
)

func TestRedisPublisher_PublishSubscribe(t *testing.T) {
	// 1. Setup miniredis
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to run miniredis: %v", err)
	}
	defer mr.Close()

	pub := NewRedisPublisher(mr.Addr(), "", 0, nil)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Subscribe before publishing
	events, err := pub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// 3. Publish and receive
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	sent := domain.LicenseEvent{Key: "ABCDEFGHIJKLMNOP", Action: domain.ActionValidate, Actor: domain.ActorBot, GuildID: "g1", At: at}
	if err := pub.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-events:
		if got.Key != sent.Key || got.Action != sent.Action || got.GuildID != "g1" || !got.At.Equal(at) {
			t.Errorf("Expected %+v, got %+v", sent, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	// 4. Cancelling the context closes the stream
	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel to be closed after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not shut down")
	}
}

func TestRedisPublisher_SkipsMalformed(t *testing.T) {
	mr, _ := miniredis.Run()
	defer mr.Close()
	pub := NewRedisPublisher(mr.Addr(), "", 0, nil)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := pub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	mr.Publish(Channel, "{not json")
	if err := pub.Publish(ctx, domain.LicenseEvent{Key: "ABCDEFGHIJKLMNOP", Action: domain.ActionDelete}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-events:
		if got.Action != domain.ActionDelete {
			t.Errorf("expected the well-formed event, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisPublisher_Ping(t *testing.T) {
	mr, _ := miniredis.Run()
	pub := NewRedisPublisher(mr.Addr(), "", 0, nil)
	defer pub.Close()

	if err := pub.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	mr.Close()
	if err := pub.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail once Redis is gone")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	if err := p.Publish(context.Background(), domain.LicenseEvent{}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
