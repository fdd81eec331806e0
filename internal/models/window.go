package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PitchWindowStatus string

const (
	WindowDraft     PitchWindowStatus = "draft"
	WindowOpen      PitchWindowStatus = "open"
	WindowClosed    PitchWindowStatus = "closed"
	WindowCancelled PitchWindowStatus = "cancelled"
)

// PitchWindow is a time-boxed, capacity-bounded opportunity an editor
// publishes for freelancers to pitch against.
type PitchWindow struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	NewsroomID string `gorm:"type:uuid;not null;index:idx_windows_newsroom_status" json:"newsroom_id"`
	EditorID   string `gorm:"type:uuid;not null;index" json:"editor_id"`

	Title        string      `gorm:"not null;size:500" json:"title"`
	Description  string      `gorm:"type:text" json:"description"`
	Beats        StringArray `gorm:"type:text[]" json:"beats"`
	Requirements string      `gorm:"type:text" json:"requirements"`

	BudgetMin decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"budget_min"`
	BudgetMax decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"budget_max"`
	RateType  string              `gorm:"size:20;default:'per_word'" json:"rate_type"`

	MaxPitches        int `gorm:"not null" json:"max_pitches"`
	CurrentPitchCount int `gorm:"default:0" json:"current_pitch_count"`

	OpensAt  time.Time `gorm:"not null" json:"opens_at"`
	ClosesAt time.Time `gorm:"not null" json:"closes_at"`

	Status PitchWindowStatus `gorm:"size:20;default:'draft';index:idx_windows_newsroom_status" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *PitchWindow) BeforeCreate(*gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
