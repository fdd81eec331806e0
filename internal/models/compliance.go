package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ComplianceRecord rolls up payments per freelancer and tax year for 1099
// reporting. One record per (freelancer, tax year).
type ComplianceRecord struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	FreelancerID string `gorm:"type:uuid;not null;uniqueIndex:idx_compliance_freelancer_year" json:"freelancer_id"`
	TaxYear      int    `gorm:"not null;uniqueIndex:idx_compliance_freelancer_year" json:"tax_year"`

	TotalGrossPayments decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"total_gross_payments"`
	TotalPlatformFees  decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"total_platform_fees"`
	TotalNetPayments   decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"total_net_payments"`
	PaymentCount       int             `gorm:"default:0" json:"payment_count"`

	W9Received        bool   `gorm:"default:false" json:"w9_received"`
	TINLastFour       string `gorm:"size:4" json:"tin_last_four"`
	Form1099Generated bool   `gorm:"default:false" json:"form_1099_generated"`
	Form1099Sent      bool   `gorm:"default:false" json:"form_1099_sent"`

	Threshold1099    decimal.Decimal `gorm:"type:numeric(10,2)" json:"threshold_1099"`
	ExceedsThreshold bool            `gorm:"default:false" json:"exceeds_threshold"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *ComplianceRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
