package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus follows the escrow state machine.
type PaymentStatus string

const (
	PaymentPending          PaymentStatus = "pending"
	PaymentEscrowHeld       PaymentStatus = "escrow_held"
	PaymentReleaseTriggered PaymentStatus = "release_triggered"
	PaymentProcessing       PaymentStatus = "processing"
	PaymentCompleted        PaymentStatus = "completed"
	PaymentFailed           PaymentStatus = "failed"
	PaymentRefunded         PaymentStatus = "refunded"
)

type PaymentType string

const (
	PaymentTypeAssignment PaymentType = "assignment"
	PaymentTypeKillFee    PaymentType = "kill_fee"
	PaymentTypeBonus      PaymentType = "bonus"
	PaymentTypeRefund     PaymentType = "refund"
)

// Payment is tied to a single assignment monetary event. NetAmount equals
// GrossAmount minus PlatformFee, computed once at creation.
type Payment struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID string `gorm:"type:uuid;not null;index" json:"assignment_id"`
	NewsroomID   string `gorm:"type:uuid;not null;index:idx_payments_newsroom_status" json:"newsroom_id"`
	FreelancerID string `gorm:"type:uuid;not null;index:idx_payments_freelancer_status" json:"freelancer_id"`

	PaymentType PaymentType     `gorm:"size:20;not null" json:"payment_type"`
	GrossAmount decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"gross_amount"`
	PlatformFee decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"platform_fee"`
	NetAmount   decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"net_amount"`
	Currency    string          `gorm:"size:3;default:'USD'" json:"currency"`

	// External gateway references
	GatewayHoldRef    string `gorm:"size:255" json:"gateway_hold_ref"`
	GatewayCaptureRef string `gorm:"size:255" json:"gateway_capture_ref"`
	GatewayRefundRef  string `gorm:"size:255" json:"gateway_refund_ref"`

	Status PaymentStatus `gorm:"size:20;default:'pending';index:idx_payments_freelancer_status;index:idx_payments_newsroom_status" json:"status"`

	Description   string `gorm:"type:text" json:"description"`
	FailureReason string `gorm:"type:text" json:"failure_reason"`

	EscrowHeldAt       *time.Time `json:"escrow_held_at"`
	ReleaseTriggeredAt *time.Time `json:"release_triggered_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
