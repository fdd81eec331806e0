package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/config"
	"github.com/bylinehq/bylined/internal/models"
)

// testNow is a fixed Wednesday; the current week starts Monday 2026-03-02.
var testNow = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	cfg     *config.Config
	db      *gorm.DB
	gateway *SandboxGateway

	windows     *PitchWindowService
	pitches     *PitchService
	assignments *AssignmentService
	ledger      *LedgerService
	compliance  *ComplianceService
	payments    *PaymentService
	webhooks    *CMSWebhookService

	editor     Caller
	freelancer Caller
	newsroomID string

	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "bylined.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	cfg := &config.Config{}
	cfg.Pitches.WeeklyLimit = 5
	cfg.Pitches.DefaultWindowMax = 50
	cfg.Escrow.FeePercent = config.Float(10.0)
	cfg.Escrow.Currency = "USD"
	cfg.Escrow.Threshold1099 = config.Float(600.00)
	cfg.Escrow.KillFeePercent = config.Float(25.0)
	cfg.CMS.WebhookSecret = "cms-test-secret"

	logger := zap.NewNop()
	gateway := NewSandboxGateway(&cfg.Escrow)

	env := &testEnv{
		cfg:        cfg,
		db:         db,
		gateway:    gateway,
		editor:     Caller{ID: uuid.NewString(), Role: RoleEditor},
		freelancer: Caller{ID: uuid.NewString(), Role: RoleFreelancer},
		newsroomID: uuid.NewString(),
		now:        testNow,
	}

	env.windows = NewPitchWindowService(cfg, db, logger)
	env.pitches = NewPitchService(cfg, db, logger, env.windows)
	env.assignments = NewAssignmentService(cfg, db, logger)
	env.ledger = NewLedgerService(db, logger)
	env.compliance = NewComplianceService(cfg, db, logger)
	env.payments = NewPaymentService(cfg, db, logger, gateway, env.ledger, env.compliance)
	env.webhooks = NewCMSWebhookService(cfg, db, logger, env.payments)

	clock := func() time.Time { return env.now }
	env.windows.Now = clock
	env.pitches.Now = clock
	env.assignments.Now = clock
	env.compliance.Now = clock
	env.payments.Now = clock
	env.webhooks.Now = clock

	return env
}

func (env *testEnv) ctx() context.Context {
	return context.Background()
}

// openWindow creates and opens a window accepting pitches right now.
func (env *testEnv) openWindow(t *testing.T, maxPitches int) *models.PitchWindow {
	t.Helper()
	window, err := env.windows.Create(env.ctx(), env.editor, env.newsroomID, WindowCreateInput{
		Title:      "City infrastructure deep dives",
		Beats:      []string{"local", "infrastructure"},
		MaxPitches: maxPitches,
		OpensAt:    env.now.Add(-time.Hour),
		ClosesAt:   env.now.Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	window, err = env.windows.Open(env.ctx(), env.editor, window.ID)
	if err != nil {
		t.Fatalf("open window: %v", err)
	}
	return window
}

func (env *testEnv) draftPitch(t *testing.T, freelancer Caller, windowID string) *models.Pitch {
	t.Helper()
	pitch, err := env.pitches.Create(env.ctx(), freelancer, PitchCreateInput{
		PitchWindowID: windowID,
		Headline:      "Why the transit levy keeps failing",
		Summary:       "Three decades of ballot measures, one pattern.",
	})
	if err != nil {
		t.Fatalf("create pitch: %v", err)
	}
	return pitch
}

func (env *testEnv) submittedPitch(t *testing.T, freelancer Caller, windowID string) *models.Pitch {
	t.Helper()
	pitch := env.draftPitch(t, freelancer, windowID)
	pitch, err := env.pitches.Submit(env.ctx(), freelancer, pitch.ID)
	if err != nil {
		t.Fatalf("submit pitch: %v", err)
	}
	return pitch
}

// acceptedAssignment walks a pitch through review acceptance and returns
// the resulting assignment.
func (env *testEnv) acceptedAssignment(t *testing.T) *models.Assignment {
	t.Helper()
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
	return assignment
}

// assignmentInStatus force-sets an assignment status for tests that start
// mid-lifecycle.
func (env *testEnv) assignmentInStatus(t *testing.T, status models.AssignmentStatus) *models.Assignment {
	t.Helper()
	assignment := env.acceptedAssignment(t)
	if status == models.AssignmentAssigned {
		return assignment
	}
	err := env.db.Model(&models.Assignment{}).
		Where("id = ?", assignment.ID).
		Update("status", status).Error
	if err != nil {
		t.Fatalf("set assignment status: %v", err)
	}
	assignment.Status = status
	return assignment
}

func (env *testEnv) pendingPayment(t *testing.T, assignment *models.Assignment, gross string) *models.Payment {
	t.Helper()
	payment, err := env.payments.Create(env.ctx(), env.editor, PaymentCreateInput{
		AssignmentID: assignment.ID,
		PaymentType:  models.PaymentTypeAssignment,
		GrossAmount:  decimal.RequireFromString(gross),
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return payment
}

func (env *testEnv) heldPayment(t *testing.T, assignment *models.Assignment, gross string) *models.Payment {
	t.Helper()
	payment := env.pendingPayment(t, assignment, gross)
	payment, err := env.payments.Hold(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("hold payment: %v", err)
	}
	return payment
}

func (env *testEnv) completedPayment(t *testing.T, assignment *models.Assignment, gross string) *models.Payment {
	t.Helper()
	payment := env.heldPayment(t, assignment, gross)
	payment, err := env.payments.Release(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("release payment: %v", err)
	}
	payment, err = env.payments.Complete(env.ctx(), env.editor, payment.ID)
	if err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	return payment
}

func wantCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code %s, got nil", code)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected domain error code %s, got %T: %v", code, err, err)
	}
	if appErr.Code != code {
		t.Fatalf("expected error code %s, got %s (%v)", code, appErr.Code, err)
	}
}

func wantDecimal(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s, got %s", want, got.StringFixed(2))
	}
}
