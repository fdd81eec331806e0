package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PitchStatus string

const (
	PitchDraft       PitchStatus = "draft"
	PitchSubmitted   PitchStatus = "submitted"
	PitchUnderReview PitchStatus = "under_review"
	PitchAccepted    PitchStatus = "accepted"
	PitchRejected    PitchStatus = "rejected"
	PitchWithdrawn   PitchStatus = "withdrawn"
)

// Pitch is a freelancer's submission against a pitch window. At most one
// non-withdrawn pitch may exist per (freelancer, window).
type Pitch struct {
	ID            string `gorm:"type:uuid;primaryKey" json:"id"`
	PitchWindowID string `gorm:"type:uuid;not null;index" json:"pitch_window_id"`
	FreelancerID  string `gorm:"type:uuid;not null;index:idx_pitches_freelancer_status" json:"freelancer_id"`

	Headline           string `gorm:"not null;size:500" json:"headline"`
	Summary            string `gorm:"type:text" json:"summary"`
	Approach           string `gorm:"type:text" json:"approach"`
	EstimatedWordCount *int   `json:"estimated_word_count"`

	ProposedRate          decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"proposed_rate"`
	ProposedRateType      string              `gorm:"size:20" json:"proposed_rate_type"`
	EstimatedDeliveryDays *int                `json:"estimated_delivery_days"`

	Status PitchStatus `gorm:"size:20;default:'draft';index:idx_pitches_freelancer_status" json:"status"`

	EditorNotes     string `gorm:"type:text" json:"editor_notes"`
	RejectionReason string `gorm:"type:text" json:"rejection_reason"`

	SubmittedAt *time.Time `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Pitch) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
