package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LedgerEntryType string

const (
	LedgerPayment    LedgerEntryType = "payment"
	LedgerKillFee    LedgerEntryType = "kill_fee"
	LedgerBonus      LedgerEntryType = "bonus"
	LedgerRefund     LedgerEntryType = "refund"
	LedgerAdjustment LedgerEntryType = "adjustment"
)

// VendorLedgerEntry is an append-only financial record. Entries are never
// updated or deleted; RunningBalance is the previous entry's balance for
// the same freelancer plus Amount.
type VendorLedgerEntry struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID    *string `gorm:"type:uuid" json:"payment_id"`
	FreelancerID string  `gorm:"type:uuid;not null;index" json:"freelancer_id"`
	NewsroomID   string  `gorm:"type:uuid;not null;index" json:"newsroom_id"`

	EntryType      LedgerEntryType `gorm:"size:20;not null" json:"entry_type"`
	Amount         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	RunningBalance decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"running_balance"`
	Currency       string          `gorm:"size:3;default:'USD'" json:"currency"`
	Description    string          `gorm:"type:text" json:"description"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *VendorLedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
