package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/config"
	"github.com/bylinehq/bylined/internal/models"
)

func TestPaymentZeroFeeRate(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Escrow.FeePercent = config.Float(0)
	assignment := env.acceptedAssignment(t)

	payment := env.pendingPayment(t, assignment, "1000.00")
	wantDecimal(t, payment.PlatformFee, "0")
	wantDecimal(t, payment.NetAmount, "1000.00")
}

func TestPaymentFeeCalculation(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)

	payment := env.pendingPayment(t, assignment, "1000.00")
	wantDecimal(t, payment.GrossAmount, "1000.00")
	wantDecimal(t, payment.PlatformFee, "100.00")
	wantDecimal(t, payment.NetAmount, "900.00")
	if payment.Status != models.PaymentPending {
		t.Fatalf("expected pending, got %s", payment.Status)
	}
	if payment.Currency != "USD" {
		t.Fatalf("expected USD, got %s", payment.Currency)
	}
}

func TestPaymentFeeRounding(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)

	// 10% of 33.33 is 3.333; the fee rounds to 3.33 and the net absorbs
	// the remainder so gross always equals fee plus net.
	payment := env.pendingPayment(t, assignment, "33.33")
	wantDecimal(t, payment.PlatformFee, "3.33")
	wantDecimal(t, payment.NetAmount, "30.00")
	if !payment.PlatformFee.Add(payment.NetAmount).Equal(payment.GrossAmount) {
		t.Fatal("fee plus net must equal gross")
	}
}

func TestPaymentCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)

	_, err := env.payments.Create(env.ctx(), env.freelancer, PaymentCreateInput{
		AssignmentID: assignment.ID,
		PaymentType:  models.PaymentTypeAssignment,
		GrossAmount:  decimal.RequireFromString("100.00"),
	})
	wantCode(t, err, apperr.CodeForbidden)

	_, err = env.payments.Create(env.ctx(), env.editor, PaymentCreateInput{
		AssignmentID: assignment.ID,
		PaymentType:  "tip",
		GrossAmount:  decimal.RequireFromString("100.00"),
	})
	wantCode(t, err, apperr.CodeValidationFailed)

	_, err = env.payments.Create(env.ctx(), env.editor, PaymentCreateInput{
		AssignmentID: assignment.ID,
		PaymentType:  models.PaymentTypeAssignment,
		GrossAmount:  decimal.Zero,
	})
	wantCode(t, err, apperr.CodeValidationFailed)
}

func TestPaymentEscrowChain(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	payment := env.pendingPayment(t, assignment, "1000.00")

	held, err := env.payments.Hold(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if held.Status != models.PaymentEscrowHeld || held.EscrowHeldAt == nil {
		t.Fatalf("expected escrow_held with timestamp, got %s", held.Status)
	}
	if !strings.HasPrefix(held.GatewayHoldRef, "hold_") {
		t.Fatalf("expected hold reference, got %q", held.GatewayHoldRef)
	}

	released, err := env.payments.Release(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != models.PaymentProcessing || released.ReleaseTriggeredAt == nil {
		t.Fatalf("expected processing with release timestamp, got %s", released.Status)
	}
	if !strings.HasPrefix(released.GatewayCaptureRef, "ch_") {
		t.Fatalf("expected capture reference, got %q", released.GatewayCaptureRef)
	}

	completed, err := env.payments.Complete(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.PaymentCompleted || completed.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp, got %s", completed.Status)
	}

	// Completion lands the net amount on the freelancer's ledger.
	balance, err := env.ledger.Balance(env.ctx(), env.freelancer.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	wantDecimal(t, balance, "900.00")

	// And rolls into the compliance record for the completion year.
	record, err := env.compliance.Record(env.ctx(), env.freelancer.ID, env.now.Year())
	if err != nil {
		t.Fatalf("compliance record: %v", err)
	}
	wantDecimal(t, record.TotalGrossPayments, "1000.00")
	if record.PaymentCount != 1 {
		t.Fatalf("expected payment count 1, got %d", record.PaymentCount)
	}
}

func TestPaymentStateOrderEnforced(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	payment := env.pendingPayment(t, assignment, "500.00")

	// Release and Complete cannot skip ahead.
	_, err := env.payments.Release(env.ctx(), env.editor, payment.ID)
	wantCode(t, err, apperr.CodeInvalidTransition)
	_, err = env.payments.Complete(env.ctx(), env.editor, payment.ID)
	wantCode(t, err, apperr.CodeInvalidTransition)

	if _, err := env.payments.Hold(env.ctx(), env.editor, payment.ID); err != nil {
		t.Fatalf("hold: %v", err)
	}
	// Holding twice is rejected.
	_, err = env.payments.Hold(env.ctx(), env.editor, payment.ID)
	wantCode(t, err, apperr.CodeInvalidTransition)
}

func TestPaymentGatewayFailureOnHold(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	payment := env.pendingPayment(t, assignment, "400.00")

	env.gateway.FailNext = "insufficient funds"
	_, err := env.payments.Hold(env.ctx(), env.editor, payment.ID)
	wantCode(t, err, apperr.CodeGatewayFailure)

	failed, err := env.payments.Get(env.ctx(), payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if failed.Status != models.PaymentFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.FailureReason == "" {
		t.Fatal("failure reason should be recorded")
	}

	// Failed is terminal; no refund, no retry.
	_, err = env.payments.Refund(env.ctx(), env.editor, payment.ID)
	wantCode(t, err, apperr.CodeInvalidTransition)
	_, err = env.payments.Hold(env.ctx(), env.editor, payment.ID)
	wantCode(t, err, apperr.CodeInvalidTransition)
}

func TestPaymentGatewayFailureOnCapture(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	payment := env.heldPayment(t, assignment, "400.00")

	env.gateway.FailNext = "card declined"
	_, err := env.payments.Release(env.ctx(), env.editor, payment.ID)
	wantCode(t, err, apperr.CodeGatewayFailure)

	failed, err := env.payments.Get(env.ctx(), payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if failed.Status != models.PaymentFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}

	// No ledger entry was ever written.
	balance, err := env.ledger.Balance(env.ctx(), env.freelancer.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", balance.StringFixed(2))
	}
}

func TestPaymentRefundPendingSkipsGateway(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	payment := env.pendingPayment(t, assignment, "250.00")

	refunded, err := env.payments.Refund(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("refund pending: %v", err)
	}
	if refunded.Status != models.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	if refunded.GatewayRefundRef != "" {
		t.Fatal("refunding a pending payment must not touch the gateway")
	}
}

func TestPaymentRefundHeld(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	payment := env.heldPayment(t, assignment, "250.00")

	refunded, err := env.payments.Refund(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("refund held: %v", err)
	}
	if !strings.HasPrefix(refunded.GatewayRefundRef, "re_") {
		t.Fatalf("expected refund reference, got %q", refunded.GatewayRefundRef)
	}

	// Funds never reached the ledger, so no claw-back entry.
	entries, total, err := env.ledger.ListForFreelancer(env.ctx(), env.freelancer.ID, LedgerListInput{})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if total != 0 || len(entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", total)
	}
}

func TestPaymentRefundCompletedClawsBack(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	payment := env.completedPayment(t, assignment, "1000.00")

	refunded, err := env.payments.Refund(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("refund completed: %v", err)
	}
	if refunded.Status != models.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}

	balance, err := env.ledger.Balance(env.ctx(), env.freelancer.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected claw-back to zero the balance, got %s", balance.StringFixed(2))
	}

	entries, total, err := env.ledger.ListForFreelancer(env.ctx(), env.freelancer.ID, LedgerListInput{})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected completion plus claw-back entries, got %d", total)
	}
	latest := entries[0]
	if latest.EntryType != models.LedgerRefund {
		t.Fatalf("expected refund entry, got %s", latest.EntryType)
	}
	wantDecimal(t, latest.Amount, "-900.00")
}

func TestPaymentKillFee(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)

	// Kill fee requires a killed assignment.
	_, err := env.payments.CreateKillFee(env.ctx(), env.editor, assignment.ID)
	wantCode(t, err, apperr.CodeInvalidTransition)

	if _, err := env.assignments.Transition(env.ctx(), env.editor, assignment.ID, AssignmentTransitionInput{
		Status: models.AssignmentKilled,
	}); err != nil {
		t.Fatalf("kill assignment: %v", err)
	}

	// 25% of the 1000.00 agreed rate.
	payment, err := env.payments.CreateKillFee(env.ctx(), env.editor, assignment.ID)
	if err != nil {
		t.Fatalf("create kill fee: %v", err)
	}
	if payment.PaymentType != models.PaymentTypeKillFee {
		t.Fatalf("expected kill_fee, got %s", payment.PaymentType)
	}
	wantDecimal(t, payment.GrossAmount, "250.00")
	wantDecimal(t, payment.PlatformFee, "25.00")
	wantDecimal(t, payment.NetAmount, "225.00")
}

func TestPaymentKillFeeLedgerEntryType(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.assignmentInStatus(t, models.AssignmentKilled)

	payment, err := env.payments.CreateKillFee(env.ctx(), env.editor, assignment.ID)
	if err != nil {
		t.Fatalf("create kill fee: %v", err)
	}
	env.completedFromPending(t, payment)

	entries, _, err := env.ledger.ListForFreelancer(env.ctx(), env.freelancer.ID, LedgerListInput{})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].EntryType != models.LedgerKillFee {
		t.Fatalf("expected a single kill_fee ledger entry, got %+v", entries)
	}
}

// completedFromPending drives an existing pending payment to completed.
func (env *testEnv) completedFromPending(t *testing.T, payment *models.Payment) *models.Payment {
	t.Helper()
	if _, err := env.payments.Hold(env.ctx(), env.editor, payment.ID); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := env.payments.Release(env.ctx(), env.editor, payment.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	completed, err := env.payments.Complete(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return completed
}
