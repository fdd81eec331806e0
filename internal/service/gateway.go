package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/config"
)

// PaymentGateway abstracts the external payment processor. The engine
// never assumes a specific processor; it needs exactly these operations,
// with failures surfaced as distinguishable gateway errors.
type PaymentGateway interface {
	// CreateHold reserves funds and returns the processor's hold reference.
	CreateHold(ctx context.Context, amountMinor int64, metadata map[string]string) (string, error)
	// Capture settles a previously created hold.
	Capture(ctx context.Context, holdRef string, amountMinor int64) (string, error)
	// Refund reverses a hold or charge.
	Refund(ctx context.Context, chargeRef string, amountMinor int64) (string, error)
	// VerifyWebhookSignature authenticates an inbound processor event.
	VerifyWebhookSignature(payload []byte, signature string) error
}

// SandboxGateway is the processor stand-in used outside production and in
// tests. References are shaped like the real processor's.
type SandboxGateway struct {
	webhookKey string

	// FailNext, when set, makes the next mutating call fail with the given
	// reason and then resets. Test hook.
	FailNext string
}

func NewSandboxGateway(cfg *config.EscrowConfig) *SandboxGateway {
	return &SandboxGateway{webhookKey: cfg.GatewayWebhookKey}
}

func (g *SandboxGateway) CreateHold(_ context.Context, amountMinor int64, _ map[string]string) (string, error) {
	if err := g.takeFailure("create hold"); err != nil {
		return "", err
	}
	if amountMinor <= 0 {
		return "", fmt.Errorf("gateway: hold amount must be positive, got %d", amountMinor)
	}
	return "hold_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func (g *SandboxGateway) Capture(_ context.Context, holdRef string, _ int64) (string, error) {
	if err := g.takeFailure("capture"); err != nil {
		return "", err
	}
	if !strings.HasPrefix(holdRef, "hold_") {
		return "", fmt.Errorf("gateway: unknown hold reference %q", holdRef)
	}
	return "ch_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func (g *SandboxGateway) Refund(_ context.Context, chargeRef string, _ int64) (string, error) {
	if err := g.takeFailure("refund"); err != nil {
		return "", err
	}
	if chargeRef == "" {
		return "", fmt.Errorf("gateway: refund requires a charge reference")
	}
	return "re_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func (g *SandboxGateway) VerifyWebhookSignature(payload []byte, signature string) error {
	if !verifyHMACSignature(payload, signature, g.webhookKey) {
		return apperr.New(apperr.CodeSignatureMismatch, "invalid gateway webhook signature")
	}
	return nil
}

func (g *SandboxGateway) takeFailure(op string) error {
	if g.FailNext == "" {
		return nil
	}
	reason := g.FailNext
	g.FailNext = ""
	return fmt.Errorf("gateway: %s failed: %s", op, reason)
}

// verifyHMACSignature checks "sha256=" + hex(HMAC-SHA256(secret, payload))
// in constant time.
func verifyHMACSignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
