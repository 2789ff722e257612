package testutil

import (
	"context"
	"testing"

	"github.com/poyrazK/licensegate/internal/core/domain"
)

func TestMocks(t *testing.T) {
	ctx := context.Background()

	// Test MockPublisher
	p := &MockPublisher{}
	_ = p.Publish(ctx, domain.LicenseEvent{Key: "k", Action: domain.ActionCreate})
	if got := p.Published(); len(got) != 1 || got[0].Key != "k" {
		t.Errorf("expected one recorded event, got %+v", got)
	}
	p.FailPublish = true
	if err := p.Publish(ctx, domain.LicenseEvent{}); err == nil {
		t.Error("expected error from failed publish")
	}
	p.FailPing = true
	if err := p.Ping(ctx); err == nil {
		t.Error("expected error from failed ping")
	}

	// Test StaticLimiter
	l := &StaticLimiter{}
	if !l.Allow("1.1.1.1") {
		t.Error("expected allow")
	}
	l.Deny = true
	if l.Allow("1.1.1.1") {
		t.Error("expected deny")
	}
	if len(l.Clients) != 2 {
		t.Errorf("expected 2 recorded clients, got %d", len(l.Clients))
	}
}
