package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AssignmentStatus string

const (
	AssignmentAssigned          AssignmentStatus = "assigned"
	AssignmentInProgress        AssignmentStatus = "in_progress"
	AssignmentSubmitted         AssignmentStatus = "submitted"
	AssignmentRevisionRequested AssignmentStatus = "revision_requested"
	AssignmentApproved          AssignmentStatus = "approved"
	AssignmentPublished         AssignmentStatus = "published"
	AssignmentKilled            AssignmentStatus = "killed"
)

// Assignment is the unit of accepted work, created exactly once when a
// pitch is accepted. Terminal states: killed, published.
type Assignment struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	PitchID      string `gorm:"type:uuid;uniqueIndex;not null" json:"pitch_id"`
	FreelancerID string `gorm:"type:uuid;not null;index:idx_assignments_freelancer_status" json:"freelancer_id"`
	EditorID     string `gorm:"type:uuid;not null;index" json:"editor_id"`
	NewsroomID   string `gorm:"type:uuid;not null;index:idx_assignments_newsroom_status" json:"newsroom_id"`

	AgreedRate      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"agreed_rate"`
	RateType        string          `gorm:"size:20;not null" json:"rate_type"`
	WordCountTarget *int            `json:"word_count_target"`
	Deadline        time.Time       `gorm:"not null" json:"deadline"`

	Status AssignmentStatus `gorm:"size:20;default:'assigned';index:idx_assignments_freelancer_status;index:idx_assignments_newsroom_status" json:"status"`

	RevisionCount int    `gorm:"default:0" json:"revision_count"`
	MaxRevisions  int    `gorm:"default:2" json:"max_revisions"`
	RevisionNotes string `gorm:"type:text" json:"revision_notes"`

	ContentURL     string `gorm:"size:500" json:"content_url"`
	FinalWordCount *int   `json:"final_word_count"`

	DraftURL    string     `gorm:"size:500" json:"draft_url"`
	FinalURL    string     `gorm:"size:500" json:"final_url"`
	CMSPostID   string     `gorm:"size:200" json:"cms_post_id"`
	CMSMetadata JSONMap    `gorm:"type:jsonb" json:"cms_metadata"`
	PublishedAt *time.Time `json:"published_at"`

	KillFeePercentage decimal.Decimal `gorm:"type:numeric(5,2)" json:"kill_fee_percentage"`

	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Assignment) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
