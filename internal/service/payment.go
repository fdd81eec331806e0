package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/config"
	"github.com/bylinehq/bylined/internal/models"
)

var hundred = decimal.NewFromInt(100)

// PaymentService drives the escrow state machine:
// pending -> escrow_held -> release_triggered -> processing -> completed,
// with failed and refunded as alternative terminals. Ledger and compliance
// side effects happen exactly at completion.
type PaymentService struct {
	cfg        *config.Config
	db         *gorm.DB
	logger     *zap.Logger
	gateway    PaymentGateway
	ledger     *LedgerService
	compliance *ComplianceService

	Now func() time.Time
}

func NewPaymentService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, gateway PaymentGateway, ledger *LedgerService, compliance *ComplianceService) *PaymentService {
	return &PaymentService{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		gateway:    gateway,
		ledger:     ledger,
		compliance: compliance,
		Now:        time.Now,
	}
}

type PaymentCreateInput struct {
	AssignmentID string
	PaymentType  models.PaymentType
	GrossAmount  decimal.Decimal
	Description  string
}

// Create records a new payment. The platform fee and net amount are
// computed here, once; they are never recomputed afterwards.
func (s *PaymentService) Create(ctx context.Context, caller Caller, in PaymentCreateInput) (*models.Payment, error) {
	if caller.Role != RoleEditor {
		return nil, apperr.New(apperr.CodeForbidden, "only editors can create payments")
	}
	switch in.PaymentType {
	case models.PaymentTypeAssignment, models.PaymentTypeKillFee, models.PaymentTypeBonus, models.PaymentTypeRefund:
	default:
		return nil, apperr.New(apperr.CodeValidationFailed, "unknown payment type")
	}
	if in.GrossAmount.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.New(apperr.CodeValidationFailed, "gross_amount must be positive")
	}

	var assignment models.Assignment
	if err := s.db.WithContext(ctx).First(&assignment, "id = ?", in.AssignmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.CodeNotFound, "assignment not found")
		}
		return nil, err
	}
	if assignment.EditorID != caller.ID {
		return nil, apperr.New(apperr.CodeForbidden, "assignment belongs to another editor")
	}

	fee, net := s.calculateFees(in.GrossAmount)
	payment := &models.Payment{
		AssignmentID: assignment.ID,
		NewsroomID:   assignment.NewsroomID,
		FreelancerID: assignment.FreelancerID,
		PaymentType:  in.PaymentType,
		GrossAmount:  in.GrossAmount,
		PlatformFee:  fee,
		NetAmount:    net,
		Currency:     s.cfg.Escrow.Currency,
		Description:  in.Description,
		Status:       models.PaymentPending,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}

	s.logger.Info("Payment created",
		zap.String("payment_id", payment.ID),
		zap.String("assignment_id", assignment.ID),
		zap.String("type", string(in.PaymentType)),
		zap.String("gross", in.GrossAmount.StringFixed(2)))
	return payment, nil
}

// CreateKillFee records the partial payment owed when an editor kills a
// started assignment, at the assignment's kill fee percentage.
func (s *PaymentService) CreateKillFee(ctx context.Context, caller Caller, assignmentID string) (*models.Payment, error) {
	var assignment models.Assignment
	if err := s.db.WithContext(ctx).First(&assignment, "id = ?", assignmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.CodeNotFound, "assignment not found")
		}
		return nil, err
	}
	if assignment.Status != models.AssignmentKilled {
		return nil, apperr.WithMetadata(apperr.CodeInvalidTransition,
			"kill fee requires a killed assignment",
			map[string]string{"current": string(assignment.Status)})
	}

	gross := assignment.AgreedRate.Mul(assignment.KillFeePercentage).Div(hundred).Round(2)
	return s.Create(ctx, caller, PaymentCreateInput{
		AssignmentID: assignmentID,
		PaymentType:  models.PaymentTypeKillFee,
		GrossAmount:  gross,
		Description:  "kill fee for assignment " + assignmentID,
	})
}

func (s *PaymentService) calculateFees(gross decimal.Decimal) (fee, net decimal.Decimal) {
	rate := decimal.NewFromFloat(*s.cfg.Escrow.FeePercent).Div(hundred)
	fee = gross.Mul(rate).Round(2)
	net = gross.Sub(fee)
	return fee, net
}

func (s *PaymentService) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.CodeNotFound, "payment not found")
		}
		return nil, err
	}
	return &payment, nil
}

// Hold opens the external escrow hold and records its reference. The local
// state flips only after the gateway result is known.
func (s *PaymentService) Hold(ctx context.Context, caller Caller, paymentID string) (*models.Payment, error) {
	payment, err := s.requireStatus(ctx, caller, paymentID, models.PaymentPending)
	if err != nil {
		return nil, err
	}

	holdRef, gerr := s.gateway.CreateHold(ctx, minorUnits(payment.GrossAmount), map[string]string{
		"payment_id":    payment.ID,
		"assignment_id": payment.AssignmentID,
		"freelancer_id": payment.FreelancerID,
	})
	if gerr != nil {
		return nil, s.failFromGateway(ctx, payment.ID, "hold", gerr)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockExpecting(tx, payment, models.PaymentPending); err != nil {
			return err
		}
		now := s.Now().UTC()
		payment.Status = models.PaymentEscrowHeld
		payment.GatewayHoldRef = holdRef
		payment.EscrowHeldAt = &now
		return tx.Save(payment).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Escrow held",
		zap.String("payment_id", payment.ID),
		zap.String("hold_ref", holdRef))
	return payment, nil
}

// Release triggers capture against the hold. The release_triggered state
// commits before the gateway call so a crash mid-capture leaves a durable
// progress marker; success advances to processing.
func (s *PaymentService) Release(ctx context.Context, caller Caller, paymentID string) (*models.Payment, error) {
	payment, err := s.requireStatus(ctx, caller, paymentID, models.PaymentEscrowHeld)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockExpecting(tx, payment, models.PaymentEscrowHeld); err != nil {
			return err
		}
		now := s.Now().UTC()
		payment.Status = models.PaymentReleaseTriggered
		payment.ReleaseTriggeredAt = &now
		return tx.Save(payment).Error
	})
	if err != nil {
		return nil, err
	}

	captureRef, gerr := s.gateway.Capture(ctx, payment.GatewayHoldRef, minorUnits(payment.GrossAmount))
	if gerr != nil {
		return nil, s.failFromGateway(ctx, payment.ID, "capture", gerr)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockExpecting(tx, payment, models.PaymentReleaseTriggered); err != nil {
			return err
		}
		payment.Status = models.PaymentProcessing
		payment.GatewayCaptureRef = captureRef
		return tx.Save(payment).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment released",
		zap.String("payment_id", payment.ID),
		zap.String("capture_ref", captureRef))
	return payment, nil
}

// Complete finishes a processing payment. The status flip, the ledger
// append and the compliance rollup commit in one transaction.
func (s *PaymentService) Complete(ctx context.Context, caller Caller, paymentID string) (*models.Payment, error) {
	payment, err := s.requireStatus(ctx, caller, paymentID, models.PaymentProcessing)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockExpecting(tx, payment, models.PaymentProcessing); err != nil {
			return err
		}
		now := s.Now().UTC()
		payment.Status = models.PaymentCompleted
		payment.CompletedAt = &now
		if err := tx.Save(payment).Error; err != nil {
			return err
		}
		if _, err := s.ledger.recordCompletion(tx, payment); err != nil {
			return err
		}
		_, err := s.compliance.applyCompletion(tx, payment)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment completed",
		zap.String("payment_id", payment.ID),
		zap.String("net", payment.NetAmount.StringFixed(2)))
	return payment, nil
}

// Refund reverses a payment from pending, escrow_held or completed. A
// payment that already failed cannot be refunded. Funds that had reached
// the freelancer's ledger are clawed back with a negative entry.
func (s *PaymentService) Refund(ctx context.Context, caller Caller, paymentID string) (*models.Payment, error) {
	if caller.Role != RoleEditor {
		return nil, apperr.New(apperr.CodeForbidden, "only editors can drive payments")
	}
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case models.PaymentPending, models.PaymentEscrowHeld, models.PaymentCompleted:
	default:
		return nil, apperr.WithMetadata(apperr.CodeInvalidTransition,
			"payment cannot be refunded from its current state",
			map[string]string{
				"current":   string(payment.Status),
				"attempted": string(models.PaymentRefunded),
			})
	}
	wasCompleted := payment.Status == models.PaymentCompleted
	priorStatus := payment.Status

	// Nothing moved externally for a pending payment; no gateway call.
	if payment.Status != models.PaymentPending {
		ref := payment.GatewayCaptureRef
		if ref == "" {
			ref = payment.GatewayHoldRef
		}
		refundRef, gerr := s.gateway.Refund(ctx, ref, minorUnits(payment.GrossAmount))
		if gerr != nil {
			return nil, s.failFromGateway(ctx, payment.ID, "refund", gerr)
		}
		payment.GatewayRefundRef = refundRef
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockExpecting(tx, payment, priorStatus); err != nil {
			return err
		}
		now := s.Now().UTC()
		payment.Status = models.PaymentRefunded
		payment.CompletedAt = &now
		if err := tx.Save(payment).Error; err != nil {
			return err
		}
		if wasCompleted {
			if _, err := s.ledger.recordRefund(tx, payment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment refunded", zap.String("payment_id", payment.ID))
	return payment, nil
}

// Fail marks a non-terminal payment as failed with a recorded reason.
func (s *PaymentService) Fail(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&payment, "id = ?", paymentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.CodeNotFound, "payment not found")
			}
			return err
		}
		switch payment.Status {
		case models.PaymentCompleted, models.PaymentRefunded, models.PaymentFailed:
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"payment is already terminal",
				map[string]string{
					"current":   string(payment.Status),
					"attempted": string(models.PaymentFailed),
				})
		}
		payment.Status = models.PaymentFailed
		payment.FailureReason = reason
		return tx.Save(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Error("Payment failed",
		zap.String("payment_id", payment.ID),
		zap.String("reason", reason))
	return &payment, nil
}

func (s *PaymentService) ListForAssignment(ctx context.Context, assignmentID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

type PaymentListInput struct {
	Status  models.PaymentStatus
	Page    int
	PerPage int
}

func (s *PaymentService) ListForFreelancer(ctx context.Context, freelancerID string, in PaymentListInput) ([]models.Payment, int64, error) {
	return s.list(ctx, "freelancer_id = ?", freelancerID, in)
}

func (s *PaymentService) ListForNewsroom(ctx context.Context, newsroomID string, in PaymentListInput) ([]models.Payment, int64, error) {
	return s.list(ctx, "newsroom_id = ?", newsroomID, in)
}

func (s *PaymentService) list(ctx context.Context, cond string, arg string, in PaymentListInput) ([]models.Payment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Payment{}).Where(cond, arg)
	if in.Status != "" {
		query = query.Where("status = ?", in.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	page, perPage := normalizePage(in.Page, in.PerPage)
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&payments).Error
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// requireStatus loads a payment for an editor-driven operation and checks
// the exact required predecessor state.
func (s *PaymentService) requireStatus(ctx context.Context, caller Caller, paymentID string, want models.PaymentStatus) (*models.Payment, error) {
	if caller.Role != RoleEditor {
		return nil, apperr.New(apperr.CodeForbidden, "only editors can drive payments")
	}
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != want {
		return nil, apperr.WithMetadata(apperr.CodeInvalidTransition,
			"payment is not in the required state",
			map[string]string{
				"current":  string(payment.Status),
				"required": string(want),
			})
	}
	return payment, nil
}

// failFromGateway records the gateway failure on the payment and returns a
// GATEWAY_FAILURE error; the failed state is the outcome, never a silent
// no-op.
func (s *PaymentService) failFromGateway(ctx context.Context, paymentID, op string, gerr error) error {
	if _, ferr := s.Fail(ctx, paymentID, gerr.Error()); ferr != nil {
		s.logger.Error("Failed to record gateway failure",
			zap.String("payment_id", paymentID),
			zap.Error(ferr))
	}
	return apperr.Wrap(apperr.CodeGatewayFailure, "payment gateway "+op+" failed", gerr)
}

// lockExpecting re-reads the payment row under lock and validates that
// its persisted status still matches the expected predecessor.
func lockExpecting(tx *gorm.DB, payment *models.Payment, want models.PaymentStatus) error {
	var current models.Payment
	if err := forUpdate(tx).First(&current, "id = ?", payment.ID).Error; err != nil {
		return err
	}
	if current.Status != want {
		return apperr.WithMetadata(apperr.CodeInvalidTransition,
			"payment state changed concurrently",
			map[string]string{
				"current":  string(current.Status),
				"required": string(want),
			})
	}
	return nil
}

// minorUnits converts a 2-decimal currency amount to integer minor units
// for the gateway.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).IntPart()
}
