package service

import (
	"context"
	"strings"
	"testing"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/config"
)

func TestSandboxGatewayReferences(t *testing.T) {
	g := NewSandboxGateway(&config.EscrowConfig{GatewayWebhookKey: "gw-key"})
	ctx := context.Background()

	holdRef, err := g.CreateHold(ctx, 10000, nil)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if !strings.HasPrefix(holdRef, "hold_") {
		t.Fatalf("unexpected hold ref %q", holdRef)
	}

	if _, err := g.CreateHold(ctx, 0, nil); err == nil {
		t.Fatal("zero-amount hold must fail")
	}

	captureRef, err := g.Capture(ctx, holdRef, 10000)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !strings.HasPrefix(captureRef, "ch_") {
		t.Fatalf("unexpected capture ref %q", captureRef)
	}

	if _, err := g.Capture(ctx, "bogus", 10000); err == nil {
		t.Fatal("capture on unknown hold must fail")
	}

	refundRef, err := g.Refund(ctx, captureRef, 10000)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !strings.HasPrefix(refundRef, "re_") {
		t.Fatalf("unexpected refund ref %q", refundRef)
	}
}

func TestSandboxGatewayFailNextResets(t *testing.T) {
	g := NewSandboxGateway(&config.EscrowConfig{})
	ctx := context.Background()

	g.FailNext = "simulated outage"
	if _, err := g.CreateHold(ctx, 100, nil); err == nil {
		t.Fatal("expected scripted failure")
	}
	if _, err := g.CreateHold(ctx, 100, nil); err != nil {
		t.Fatalf("failure must reset after one call: %v", err)
	}
}

func TestSandboxGatewayWebhookSignature(t *testing.T) {
	g := NewSandboxGateway(&config.EscrowConfig{GatewayWebhookKey: "gw-key"})
	payload := []byte(`{"type":"payout.sent"}`)

	if err := g.VerifyWebhookSignature(payload, signPayload(payload, "gw-key")); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	err := g.VerifyWebhookSignature(payload, signPayload(payload, "other"))
	wantCode(t, err, apperr.CodeSignatureMismatch)
}
