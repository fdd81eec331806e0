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

// PitchService manages the freelancer side of the pitch lifecycle and the
// editor review that turns an accepted pitch into an assignment.
type PitchService struct {
	cfg     *config.Config
	db      *gorm.DB
	logger  *zap.Logger
	windows *PitchWindowService

	Now func() time.Time
}

func NewPitchService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, windows *PitchWindowService) *PitchService {
	return &PitchService{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		windows: windows,
		Now:     time.Now,
	}
}

type PitchCreateInput struct {
	PitchWindowID         string
	Headline              string
	Summary               string
	Approach              string
	EstimatedWordCount    *int
	ProposedRate          decimal.NullDecimal
	ProposedRateType      string
	EstimatedDeliveryDays *int
}

func (s *PitchService) Create(ctx context.Context, caller Caller, in PitchCreateInput) (*models.Pitch, error) {
	if caller.Role != RoleFreelancer {
		return nil, apperr.New(apperr.CodeForbidden, "only freelancers can create pitches")
	}
	if in.Headline == "" {
		return nil, apperr.New(apperr.CodeValidationFailed, "headline is required")
	}

	pitch := &models.Pitch{
		PitchWindowID:         in.PitchWindowID,
		FreelancerID:          caller.ID,
		Headline:              in.Headline,
		Summary:               in.Summary,
		Approach:              in.Approach,
		EstimatedWordCount:    in.EstimatedWordCount,
		ProposedRate:          in.ProposedRate,
		ProposedRateType:      in.ProposedRateType,
		EstimatedDeliveryDays: in.EstimatedDeliveryDays,
		Status:                models.PitchDraft,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var window models.PitchWindow
		if err := tx.First(&window, "id = ?", in.PitchWindowID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.CodeNotFound, "pitch window not found")
			}
			return err
		}
		if aerr := s.windows.acceptanceError(&window); aerr != nil {
			return aerr
		}

		// One non-withdrawn pitch per freelancer per window.
		var existing int64
		err := tx.Model(&models.Pitch{}).
			Where("freelancer_id = ? AND pitch_window_id = ? AND status <> ?",
				caller.ID, in.PitchWindowID, models.PitchWithdrawn).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return apperr.New(apperr.CodeConflict, "you already have a pitch in this window")
		}

		// Weekly quota is checked at creation to fail fast.
		weekly, err := s.countSubmittedThisWeek(tx, caller.ID)
		if err != nil {
			return err
		}
		if weekly >= int64(s.cfg.Pitches.WeeklyLimit) {
			return apperr.New(apperr.CodeWeeklyLimitReached, "weekly pitch limit reached")
		}

		return tx.Create(pitch).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Pitch created",
		zap.String("pitch_id", pitch.ID),
		zap.String("window_id", pitch.PitchWindowID),
		zap.String("freelancer_id", caller.ID))
	return pitch, nil
}

func (s *PitchService) Get(ctx context.Context, pitchID string) (*models.Pitch, error) {
	var pitch models.Pitch
	if err := s.db.WithContext(ctx).First(&pitch, "id = ?", pitchID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.CodeNotFound, "pitch not found")
		}
		return nil, err
	}
	return &pitch, nil
}

type PitchUpdateInput struct {
	Headline              *string
	Summary               *string
	Approach              *string
	EstimatedWordCount    *int
	ProposedRate          *decimal.NullDecimal
	ProposedRateType      *string
	EstimatedDeliveryDays *int
}

func (s *PitchService) UpdateDraft(ctx context.Context, caller Caller, pitchID string, in PitchUpdateInput) (*models.Pitch, error) {
	var pitch models.Pitch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockOwned(tx, caller, pitchID, &pitch); err != nil {
			return err
		}
		if pitch.Status != models.PitchDraft {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"only draft pitches can be edited",
				map[string]string{"current": string(pitch.Status)})
		}

		if in.Headline != nil {
			pitch.Headline = *in.Headline
		}
		if in.Summary != nil {
			pitch.Summary = *in.Summary
		}
		if in.Approach != nil {
			pitch.Approach = *in.Approach
		}
		if in.EstimatedWordCount != nil {
			pitch.EstimatedWordCount = in.EstimatedWordCount
		}
		if in.ProposedRate != nil {
			pitch.ProposedRate = *in.ProposedRate
		}
		if in.ProposedRateType != nil {
			pitch.ProposedRateType = *in.ProposedRateType
		}
		if in.EstimatedDeliveryDays != nil {
			pitch.EstimatedDeliveryDays = in.EstimatedDeliveryDays
		}
		return tx.Save(&pitch).Error
	})
	if err != nil {
		return nil, err
	}
	return &pitch, nil
}

// Submit moves a draft pitch to submitted. Window acceptance is
// re-validated here because a window may close between draft creation and
// submission; the window counter is incremented in the same transaction.
func (s *PitchService) Submit(ctx context.Context, caller Caller, pitchID string) (*models.Pitch, error) {
	var pitch models.Pitch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockOwned(tx, caller, pitchID, &pitch); err != nil {
			return err
		}
		if pitch.Status != models.PitchDraft {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"only draft pitches can be submitted",
				map[string]string{
					"current":   string(pitch.Status),
					"attempted": string(models.PitchSubmitted),
				})
		}

		var window models.PitchWindow
		if err := forUpdate(tx).First(&window, "id = ?", pitch.PitchWindowID).Error; err != nil {
			return err
		}
		if aerr := s.windows.acceptanceError(&window); aerr != nil {
			return aerr
		}

		now := s.Now().UTC()
		pitch.Status = models.PitchSubmitted
		pitch.SubmittedAt = &now
		if err := tx.Save(&pitch).Error; err != nil {
			return err
		}

		return tx.Model(&models.PitchWindow{}).
			Where("id = ?", window.ID).
			UpdateColumn("current_pitch_count", gorm.Expr("current_pitch_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Pitch submitted",
		zap.String("pitch_id", pitch.ID),
		zap.String("window_id", pitch.PitchWindowID))
	return &pitch, nil
}

type PitchReviewInput struct {
	Accept bool

	// Required on accept.
	AgreedRate decimal.Decimal
	RateType   string
	Deadline   time.Time

	WordCountTarget   *int
	KillFeePercentage decimal.NullDecimal
	EditorNotes       string
	RejectionReason   string
}

// Review accepts or rejects a submitted pitch. Acceptance creates exactly
// one assignment in the same transaction.
func (s *PitchService) Review(ctx context.Context, caller Caller, pitchID string, in PitchReviewInput) (*models.Pitch, *models.Assignment, error) {
	if caller.Role != RoleEditor {
		return nil, nil, apperr.New(apperr.CodeForbidden, "only editors can review pitches")
	}
	if in.Accept {
		if in.AgreedRate.LessThanOrEqual(decimal.Zero) || in.RateType == "" || in.Deadline.IsZero() {
			return nil, nil, apperr.New(apperr.CodeValidationFailed,
				"accepting a pitch requires agreed_rate, rate_type and deadline")
		}
	}

	var pitch models.Pitch
	var assignment *models.Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&pitch, "id = ?", pitchID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.CodeNotFound, "pitch not found")
			}
			return err
		}

		var window models.PitchWindow
		if err := tx.First(&window, "id = ?", pitch.PitchWindowID).Error; err != nil {
			return err
		}
		if window.EditorID != caller.ID {
			return apperr.New(apperr.CodeForbidden, "pitch belongs to another editor's window")
		}

		if pitch.Status != models.PitchSubmitted && pitch.Status != models.PitchUnderReview {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"only submitted pitches can be reviewed",
				map[string]string{"current": string(pitch.Status)})
		}

		now := s.Now().UTC()
		pitch.ReviewedAt = &now
		if in.EditorNotes != "" {
			pitch.EditorNotes = in.EditorNotes
		}

		if !in.Accept {
			pitch.Status = models.PitchRejected
			if in.RejectionReason != "" {
				pitch.RejectionReason = in.RejectionReason
			}
			return tx.Save(&pitch).Error
		}

		pitch.Status = models.PitchAccepted
		if err := tx.Save(&pitch).Error; err != nil {
			return err
		}

		killFee := decimal.NewFromFloat(*s.cfg.Escrow.KillFeePercent)
		if in.KillFeePercentage.Valid {
			killFee = in.KillFeePercentage.Decimal
		}
		assignment = &models.Assignment{
			PitchID:           pitch.ID,
			FreelancerID:      pitch.FreelancerID,
			EditorID:          caller.ID,
			NewsroomID:        window.NewsroomID,
			AgreedRate:        in.AgreedRate,
			RateType:          in.RateType,
			WordCountTarget:   in.WordCountTarget,
			Deadline:          in.Deadline,
			KillFeePercentage: killFee,
			Status:            models.AssignmentAssigned,
		}
		return tx.Create(assignment).Error
	})
	if err != nil {
		return nil, nil, err
	}

	if assignment != nil {
		s.logger.Info("Pitch accepted, assignment created",
			zap.String("pitch_id", pitch.ID),
			zap.String("assignment_id", assignment.ID))
	} else {
		s.logger.Info("Pitch rejected", zap.String("pitch_id", pitch.ID))
	}
	return &pitch, assignment, nil
}

// Withdraw is permitted from any non-terminal state except accepted. The
// window counter is decremented only if the pitch had been submitted.
func (s *PitchService) Withdraw(ctx context.Context, caller Caller, pitchID string) (*models.Pitch, error) {
	var pitch models.Pitch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockOwned(tx, caller, pitchID, &pitch); err != nil {
			return err
		}
		switch pitch.Status {
		case models.PitchDraft, models.PitchSubmitted, models.PitchUnderReview:
		default:
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"pitch can no longer be withdrawn",
				map[string]string{
					"current":   string(pitch.Status),
					"attempted": string(models.PitchWithdrawn),
				})
		}

		wasSubmitted := pitch.SubmittedAt != nil
		pitch.Status = models.PitchWithdrawn
		if err := tx.Save(&pitch).Error; err != nil {
			return err
		}
		if wasSubmitted {
			return tx.Model(&models.PitchWindow{}).
				Where("id = ?", pitch.PitchWindowID).
				UpdateColumn("current_pitch_count", gorm.Expr("current_pitch_count - 1")).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Pitch withdrawn", zap.String("pitch_id", pitch.ID))
	return &pitch, nil
}

type PitchListInput struct {
	Status  models.PitchStatus
	Page    int
	PerPage int
}

func (s *PitchService) ListForWindow(ctx context.Context, caller Caller, windowID string, in PitchListInput) ([]models.Pitch, int64, error) {
	if caller.Role != RoleEditor {
		return nil, 0, apperr.New(apperr.CodeForbidden, "only editors can list window pitches")
	}
	window, err := s.windows.Get(ctx, windowID)
	if err != nil {
		return nil, 0, err
	}
	if window.EditorID != caller.ID {
		return nil, 0, apperr.New(apperr.CodeForbidden, "window belongs to another editor")
	}

	query := s.db.WithContext(ctx).Model(&models.Pitch{}).Where("pitch_window_id = ?", windowID)
	if in.Status != "" {
		query = query.Where("status = ?", in.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var pitches []models.Pitch
	page, perPage := normalizePage(in.Page, in.PerPage)
	err = query.Order("submitted_at DESC NULLS LAST, created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&pitches).Error
	if err != nil {
		return nil, 0, err
	}
	return pitches, total, nil
}

func (s *PitchService) ListForFreelancer(ctx context.Context, freelancerID string, in PitchListInput) ([]models.Pitch, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Pitch{}).Where("freelancer_id = ?", freelancerID)
	if in.Status != "" {
		query = query.Where("status = ?", in.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var pitches []models.Pitch
	page, perPage := normalizePage(in.Page, in.PerPage)
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&pitches).Error
	if err != nil {
		return nil, 0, err
	}
	return pitches, total, nil
}

// countSubmittedThisWeek counts pitches submitted since Monday 00:00 UTC,
// across every window, excluding withdrawn pitches.
func (s *PitchService) countSubmittedThisWeek(tx *gorm.DB, freelancerID string) (int64, error) {
	now := s.Now().UTC()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysSinceMonday)

	var count int64
	err := tx.Model(&models.Pitch{}).
		Where("freelancer_id = ? AND submitted_at >= ? AND status <> ?",
			freelancerID, weekStart, models.PitchWithdrawn).
		Count(&count).Error
	return count, err
}

func (s *PitchService) lockOwned(tx *gorm.DB, caller Caller, pitchID string, pitch *models.Pitch) error {
	if caller.Role != RoleFreelancer {
		return apperr.New(apperr.CodeForbidden, "only the pitching freelancer can perform this action")
	}
	if err := forUpdate(tx).First(pitch, "id = ?", pitchID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.New(apperr.CodeNotFound, "pitch not found")
		}
		return err
	}
	if pitch.FreelancerID != caller.ID {
		return apperr.New(apperr.CodeForbidden, "pitch belongs to another freelancer")
	}
	return nil
}
