package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/models"
)

// LedgerService maintains the append-only per-freelancer vendor ledger.
// The balance read and the entry insert always share a transaction with a
// lock on the freelancer's latest entry; two concurrent appends must not
// compute the same stale balance.
type LedgerService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewLedgerService(db *gorm.DB, logger *zap.Logger) *LedgerService {
	return &LedgerService{db: db, logger: logger}
}

// Balance returns the running balance of the freelancer's most recent
// entry, zero if none exists.
func (s *LedgerService) Balance(ctx context.Context, freelancerID string) (decimal.Decimal, error) {
	return s.latestBalance(s.db.WithContext(ctx), freelancerID)
}

func (s *LedgerService) latestBalance(tx *gorm.DB, freelancerID string) (decimal.Decimal, error) {
	var entry models.VendorLedgerEntry
	err := forUpdate(tx).
		Where("freelancer_id = ?", freelancerID).
		Order("created_at DESC").
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return entry.RunningBalance, nil
}

var completionEntryTypes = map[models.PaymentType]models.LedgerEntryType{
	models.PaymentTypeAssignment: models.LedgerPayment,
	models.PaymentTypeKillFee:    models.LedgerKillFee,
	models.PaymentTypeBonus:      models.LedgerBonus,
}

// recordCompletion appends the positive entry for a completed payment
// inside the caller's transaction.
func (s *LedgerService) recordCompletion(tx *gorm.DB, payment *models.Payment) (*models.VendorLedgerEntry, error) {
	entryType, ok := completionEntryTypes[payment.PaymentType]
	if !ok {
		entryType = models.LedgerPayment
	}
	return s.append(tx, payment, entryType, payment.NetAmount,
		string(payment.PaymentType)+" payment completed")
}

// recordRefund appends the negative claw-back entry inside the caller's
// transaction.
func (s *LedgerService) recordRefund(tx *gorm.DB, payment *models.Payment) (*models.VendorLedgerEntry, error) {
	return s.append(tx, payment, models.LedgerRefund, payment.NetAmount.Neg(),
		"refund for payment "+payment.ID)
}

func (s *LedgerService) append(tx *gorm.DB, payment *models.Payment, entryType models.LedgerEntryType, amount decimal.Decimal, description string) (*models.VendorLedgerEntry, error) {
	balance, err := s.latestBalance(tx, payment.FreelancerID)
	if err != nil {
		return nil, err
	}

	paymentID := payment.ID
	entry := &models.VendorLedgerEntry{
		PaymentID:      &paymentID,
		FreelancerID:   payment.FreelancerID,
		NewsroomID:     payment.NewsroomID,
		EntryType:      entryType,
		Amount:         amount,
		RunningBalance: balance.Add(amount),
		Currency:       payment.Currency,
		Description:    description,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}

	s.logger.Info("Ledger entry appended",
		zap.String("entry_id", entry.ID),
		zap.String("freelancer_id", entry.FreelancerID),
		zap.String("type", string(entryType)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("running_balance", entry.RunningBalance.StringFixed(2)))
	return entry, nil
}

// AppendAdjustment records a manual correction as its own transaction.
func (s *LedgerService) AppendAdjustment(ctx context.Context, freelancerID, newsroomID string, amount decimal.Decimal, description string) (*models.VendorLedgerEntry, error) {
	if amount.IsZero() {
		return nil, apperr.New(apperr.CodeValidationFailed, "adjustment amount must be non-zero")
	}

	var entry *models.VendorLedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.latestBalance(tx, freelancerID)
		if err != nil {
			return err
		}
		entry = &models.VendorLedgerEntry{
			FreelancerID:   freelancerID,
			NewsroomID:     newsroomID,
			EntryType:      models.LedgerAdjustment,
			Amount:         amount,
			RunningBalance: balance.Add(amount),
			Description:    description,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

type LedgerListInput struct {
	Page    int
	PerPage int
}

func (s *LedgerService) ListForFreelancer(ctx context.Context, freelancerID string, in LedgerListInput) ([]models.VendorLedgerEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.VendorLedgerEntry{}).
		Where("freelancer_id = ?", freelancerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.VendorLedgerEntry
	page, perPage := normalizePage(in.Page, in.PerPage)
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
