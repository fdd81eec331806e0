package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bylinehq/bylined/internal/models"
)

// TestFullPipeline walks one story end to end: window, pitch, review,
// delivery, publication via webhook, escrow settlement, ledger and
// compliance rollup.
func TestFullPipeline(t *testing.T) {
	env := newTestEnv(t)

	window := env.openWindow(t, 10)
	pitch := env.submittedPitch(t, env.freelancer, window.ID)

	_, assignment, err := env.pitches.Review(env.ctx(), env.editor, pitch.ID, PitchReviewInput{
		Accept:     true,
		AgreedRate: decimal.RequireFromString("1000.00"),
		RateType:   "flat",
		Deadline:   env.now.Add(14 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("accept pitch: %v", err)
	}

	// The editor escrows the full fee up front.
	payment := env.heldPayment(t, assignment, "1000.00")

	// Freelancer delivers, editor approves.
	for _, status := range []models.AssignmentStatus{models.AssignmentInProgress, models.AssignmentSubmitted} {
		if _, err := env.assignments.Transition(env.ctx(), env.freelancer, assignment.ID, AssignmentTransitionInput{
			Status:     status,
			ContentURL: "https://drafts.example.com/final",
		}); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	if _, err := env.assignments.Transition(env.ctx(), env.editor, assignment.ID, AssignmentTransitionInput{
		Status: models.AssignmentApproved,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// CMS publishes; escrow release rides on the webhook.
	result, err := env.webhooks.Handle(env.ctx(), CMSEvent{
		Event:        "article.published",
		CMSPostID:    "post-final",
		AssignmentID: assignment.ID,
		PublishedURL: "https://news.example.com/final",
	})
	if err != nil {
		t.Fatalf("publish webhook: %v", err)
	}
	if !result.PaymentReleaseTriggered {
		t.Fatal("publication must release the escrowed payment")
	}

	if _, err := env.payments.Complete(env.ctx(), env.editor, payment.ID); err != nil {
		t.Fatalf("complete payment: %v", err)
	}

	balance, err := env.ledger.Balance(env.ctx(), env.freelancer.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	wantDecimal(t, balance, "900.00")

	record, err := env.compliance.Record(env.ctx(), env.freelancer.ID, env.now.Year())
	if err != nil {
		t.Fatalf("compliance record: %v", err)
	}
	wantDecimal(t, record.TotalGrossPayments, "1000.00")
	if record.ExceedsThreshold != true {
		t.Fatal("1000.00 exceeds the reporting threshold")
	}
}
