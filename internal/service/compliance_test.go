package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bylinehq/bylined/internal/apperr"
)

func TestComplianceThresholdCrossing(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)

	// 200 + 250 = 450 stays under the 600.00 threshold.
	env.completedPayment(t, assignment, "200.00")
	env.completedFromPending(t, env.pendingPayment(t, assignment, "250.00"))

	record, err := env.compliance.Record(env.ctx(), env.freelancer.ID, env.now.Year())
	if err != nil {
		t.Fatalf("compliance record: %v", err)
	}
	wantDecimal(t, record.TotalGrossPayments, "450.00")
	if record.ExceedsThreshold {
		t.Fatal("450.00 must not exceed the 600.00 threshold")
	}

	// The third payment pushes the total to 650.
	env.completedFromPending(t, env.pendingPayment(t, assignment, "200.00"))

	record, err = env.compliance.Record(env.ctx(), env.freelancer.ID, env.now.Year())
	if err != nil {
		t.Fatalf("compliance record: %v", err)
	}
	wantDecimal(t, record.TotalGrossPayments, "650.00")
	if !record.ExceedsThreshold {
		t.Fatal("650.00 must exceed the 600.00 threshold")
	}
	if record.PaymentCount != 3 {
		t.Fatalf("expected 3 payments, got %d", record.PaymentCount)
	}
	wantDecimal(t, record.TotalPlatformFees, "65.00")
	wantDecimal(t, record.TotalNetPayments, "585.00")
}

func TestComplianceThresholdExactBoundary(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)

	// Exactly 600.00 counts as exceeding.
	env.completedPayment(t, assignment, "600.00")

	record, err := env.compliance.Record(env.ctx(), env.freelancer.ID, env.now.Year())
	if err != nil {
		t.Fatalf("compliance record: %v", err)
	}
	if !record.ExceedsThreshold {
		t.Fatal("a total equal to the threshold must count as exceeding")
	}
}

func TestComplianceW9AndForm1099(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.acceptedAssignment(t)
	env.completedPayment(t, assignment, "700.00")
	year := env.now.Year()

	_, err := env.compliance.MarkW9Received(env.ctx(), env.freelancer.ID, year, "12345")
	wantCode(t, err, apperr.CodeValidationFailed)

	record, err := env.compliance.MarkW9Received(env.ctx(), env.freelancer.ID, year, "6789")
	if err != nil {
		t.Fatalf("mark w9: %v", err)
	}
	if !record.W9Received || record.TINLastFour != "6789" {
		t.Fatal("w9 flag and TIN suffix not recorded")
	}

	record, err = env.compliance.Mark1099Generated(env.ctx(), env.freelancer.ID, year)
	if err != nil {
		t.Fatalf("mark 1099: %v", err)
	}
	if !record.Form1099Generated {
		t.Fatal("1099 flag not recorded")
	}

	_, err = env.compliance.MarkW9Received(env.ctx(), uuid.NewString(), year, "1111")
	wantCode(t, err, apperr.CodeNotFound)
}

func TestComplianceSummary(t *testing.T) {
	env := newTestEnv(t)
	year := env.now.Year()

	// One freelancer over the threshold, one under.
	over := env.acceptedAssignment(t)
	env.completedPayment(t, over, "800.00")

	second := Caller{ID: uuid.NewString(), Role: RoleFreelancer}
	window := env.openWindow(t, 5)
	pitch := env.submittedPitch(t, second, window.ID)
	_, underAssignment, err := env.pitches.Review(env.ctx(), env.editor, pitch.ID, PitchReviewInput{
		Accept:     true,
		AgreedRate: decimal.RequireFromString("100.00"),
		RateType:   "flat",
		Deadline:   env.now.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("accept pitch: %v", err)
	}
	env.completedFromPending(t, env.pendingPayment(t, underAssignment, "100.00"))

	summary, err := env.compliance.Summary(env.ctx(), year)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalFreelancers != 2 {
		t.Fatalf("expected 2 freelancers, got %d", summary.TotalFreelancers)
	}
	if summary.FreelancersExceedingThreshold != 1 {
		t.Fatalf("expected 1 over threshold, got %d", summary.FreelancersExceedingThreshold)
	}
	wantDecimal(t, summary.TotalGrossPaid, "900.00")
	if summary.W9PendingCount != 1 || summary.Form1099PendingCount != 1 {
		t.Fatalf("expected 1 pending w9 and 1 pending 1099, got %d/%d",
			summary.W9PendingCount, summary.Form1099PendingCount)
	}

	// Filing the W-9 clears that pending count.
	if _, err := env.compliance.MarkW9Received(env.ctx(), env.freelancer.ID, year, "4321"); err != nil {
		t.Fatalf("mark w9: %v", err)
	}
	summary, err = env.compliance.Summary(env.ctx(), year)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.W9PendingCount != 0 {
		t.Fatalf("expected no pending w9, got %d", summary.W9PendingCount)
	}

	records, err := env.compliance.ListForYear(env.ctx(), year, true)
	if err != nil {
		t.Fatalf("list for year: %v", err)
	}
	if len(records) != 1 || records[0].FreelancerID != env.freelancer.ID {
		t.Fatalf("expected only the over-threshold freelancer, got %d records", len(records))
	}
}
