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

// ComplianceService rolls up completed payments per freelancer and tax
// year for 1099 reporting.
type ComplianceService struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *zap.Logger

	Now func() time.Time
}

func NewComplianceService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *ComplianceService {
	return &ComplianceService{
		cfg:    cfg,
		db:     db,
		logger: logger,
		Now:    time.Now,
	}
}

func (s *ComplianceService) getOrCreate(tx *gorm.DB, freelancerID string, taxYear int) (*models.ComplianceRecord, error) {
	var record models.ComplianceRecord
	err := forUpdate(tx).
		Where("freelancer_id = ? AND tax_year = ?", freelancerID, taxYear).
		First(&record).Error
	if err == nil {
		return &record, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	record = models.ComplianceRecord{
		FreelancerID:  freelancerID,
		TaxYear:       taxYear,
		Threshold1099: decimal.NewFromFloat(*s.cfg.Escrow.Threshold1099),
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// applyCompletion additively updates the freelancer's yearly totals inside
// the caller's transaction. The tax year is the payment's completion year.
func (s *ComplianceService) applyCompletion(tx *gorm.DB, payment *models.Payment) (*models.ComplianceRecord, error) {
	taxYear := s.Now().UTC().Year()
	if payment.CompletedAt != nil {
		taxYear = payment.CompletedAt.UTC().Year()
	}

	record, err := s.getOrCreate(tx, payment.FreelancerID, taxYear)
	if err != nil {
		return nil, err
	}

	record.TotalGrossPayments = record.TotalGrossPayments.Add(payment.GrossAmount)
	record.TotalPlatformFees = record.TotalPlatformFees.Add(payment.PlatformFee)
	record.TotalNetPayments = record.TotalNetPayments.Add(payment.NetAmount)
	record.PaymentCount++
	record.ExceedsThreshold = record.TotalGrossPayments.GreaterThanOrEqual(record.Threshold1099)

	if err := tx.Save(record).Error; err != nil {
		return nil, err
	}

	if record.ExceedsThreshold {
		s.logger.Info("Freelancer exceeds 1099 threshold",
			zap.String("freelancer_id", record.FreelancerID),
			zap.Int("tax_year", taxYear),
			zap.String("total_gross", record.TotalGrossPayments.StringFixed(2)))
	}
	return record, nil
}

func (s *ComplianceService) Record(ctx context.Context, freelancerID string, taxYear int) (*models.ComplianceRecord, error) {
	var record models.ComplianceRecord
	err := s.db.WithContext(ctx).
		Where("freelancer_id = ? AND tax_year = ?", freelancerID, taxYear).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.New(apperr.CodeNotFound, "compliance record not found")
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *ComplianceService) ListForYear(ctx context.Context, taxYear int, exceedsOnly bool) ([]models.ComplianceRecord, error) {
	query := s.db.WithContext(ctx).Where("tax_year = ?", taxYear)
	if exceedsOnly {
		query = query.Where("exceeds_threshold = ?", true)
	}

	var records []models.ComplianceRecord
	err := query.Order("total_gross_payments DESC").Find(&records).Error
	return records, err
}

// ComplianceSummary aggregates a tax year across all freelancers.
type ComplianceSummary struct {
	TaxYear                       int             `json:"tax_year"`
	TotalFreelancers              int             `json:"total_freelancers"`
	FreelancersExceedingThreshold int             `json:"freelancers_exceeding_threshold"`
	TotalGrossPaid                decimal.Decimal `json:"total_gross_paid"`
	TotalPlatformFees             decimal.Decimal `json:"total_platform_fees"`
	W9PendingCount                int             `json:"w9_pending_count"`
	Form1099PendingCount          int             `json:"form_1099_pending_count"`
}

// Summary is read-only; it never mutates records.
func (s *ComplianceService) Summary(ctx context.Context, taxYear int) (*ComplianceSummary, error) {
	records, err := s.ListForYear(ctx, taxYear, false)
	if err != nil {
		return nil, err
	}

	summary := &ComplianceSummary{
		TaxYear:           taxYear,
		TotalFreelancers:  len(records),
		TotalGrossPaid:    decimal.Zero,
		TotalPlatformFees: decimal.Zero,
	}
	for _, r := range records {
		summary.TotalGrossPaid = summary.TotalGrossPaid.Add(r.TotalGrossPayments)
		summary.TotalPlatformFees = summary.TotalPlatformFees.Add(r.TotalPlatformFees)
		if !r.ExceedsThreshold {
			continue
		}
		summary.FreelancersExceedingThreshold++
		if !r.W9Received {
			summary.W9PendingCount++
		}
		if !r.Form1099Generated {
			summary.Form1099PendingCount++
		}
	}
	return summary, nil
}

// MarkW9Received flags the freelancer's W-9 as on file.
func (s *ComplianceService) MarkW9Received(ctx context.Context, freelancerID string, taxYear int, tinLastFour string) (*models.ComplianceRecord, error) {
	if len(tinLastFour) != 4 {
		return nil, apperr.New(apperr.CodeValidationFailed, "tin_last_four must be exactly four digits")
	}
	return s.update(ctx, freelancerID, taxYear, func(record *models.ComplianceRecord) {
		record.W9Received = true
		record.TINLastFour = tinLastFour
	})
}

// Mark1099Generated flags the 1099 form as generated for the year.
func (s *ComplianceService) Mark1099Generated(ctx context.Context, freelancerID string, taxYear int) (*models.ComplianceRecord, error) {
	return s.update(ctx, freelancerID, taxYear, func(record *models.ComplianceRecord) {
		record.Form1099Generated = true
	})
}

func (s *ComplianceService) update(ctx context.Context, freelancerID string, taxYear int, apply func(*models.ComplianceRecord)) (*models.ComplianceRecord, error) {
	var record models.ComplianceRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := forUpdate(tx).
			Where("freelancer_id = ? AND tax_year = ?", freelancerID, taxYear).
			First(&record).Error
		if err == gorm.ErrRecordNotFound {
			return apperr.New(apperr.CodeNotFound, "compliance record not found")
		}
		if err != nil {
			return err
		}
		apply(&record)
		return tx.Save(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
