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

// PitchWindowService manages the lifecycle of editor-published pitch
// windows (draft -> open -> closed/cancelled).
type PitchWindowService struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *zap.Logger

	// Now is swappable for tests.
	Now func() time.Time
}

func NewPitchWindowService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *PitchWindowService {
	return &PitchWindowService{
		cfg:    cfg,
		db:     db,
		logger: logger,
		Now:    time.Now,
	}
}

type WindowCreateInput struct {
	Title        string
	Description  string
	Beats        []string
	Requirements string
	BudgetMin    decimal.NullDecimal
	BudgetMax    decimal.NullDecimal
	RateType     string
	MaxPitches   int
	OpensAt      time.Time
	ClosesAt     time.Time
}

type WindowUpdateInput struct {
	Title        *string
	Description  *string
	Beats        []string
	Requirements *string
	BudgetMin    *decimal.NullDecimal
	BudgetMax    *decimal.NullDecimal
	MaxPitches   *int
	OpensAt      *time.Time
	ClosesAt     *time.Time
}

func (s *PitchWindowService) Create(ctx context.Context, caller Caller, newsroomID string, in WindowCreateInput) (*models.PitchWindow, error) {
	if caller.Role != RoleEditor {
		return nil, apperr.New(apperr.CodeForbidden, "only editors can create pitch windows")
	}
	if in.Title == "" {
		return nil, apperr.New(apperr.CodeValidationFailed, "title is required")
	}
	if !in.ClosesAt.After(in.OpensAt) {
		return nil, apperr.New(apperr.CodeValidationFailed, "closes_at must be after opens_at")
	}
	maxPitches := in.MaxPitches
	if maxPitches <= 0 {
		maxPitches = s.cfg.Pitches.DefaultWindowMax
	}

	window := &models.PitchWindow{
		NewsroomID:   newsroomID,
		EditorID:     caller.ID,
		Title:        in.Title,
		Description:  in.Description,
		Beats:        models.StringArray(in.Beats),
		Requirements: in.Requirements,
		BudgetMin:    in.BudgetMin,
		BudgetMax:    in.BudgetMax,
		RateType:     in.RateType,
		MaxPitches:   maxPitches,
		OpensAt:      in.OpensAt,
		ClosesAt:     in.ClosesAt,
		Status:       models.WindowDraft,
	}
	if window.RateType == "" {
		window.RateType = "per_word"
	}

	if err := s.db.WithContext(ctx).Create(window).Error; err != nil {
		return nil, err
	}

	s.logger.Info("Pitch window created",
		zap.String("window_id", window.ID),
		zap.String("editor_id", caller.ID))
	return window, nil
}

func (s *PitchWindowService) Get(ctx context.Context, windowID string) (*models.PitchWindow, error) {
	var window models.PitchWindow
	if err := s.db.WithContext(ctx).First(&window, "id = ?", windowID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.CodeNotFound, "pitch window not found")
		}
		return nil, err
	}
	return &window, nil
}

type WindowListInput struct {
	NewsroomID string
	Status     models.PitchWindowStatus
	Beats      []string
	Page       int
	PerPage    int
}

func (s *PitchWindowService) List(ctx context.Context, in WindowListInput) ([]models.PitchWindow, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PitchWindow{})
	if in.NewsroomID != "" {
		query = query.Where("newsroom_id = ?", in.NewsroomID)
	}
	if in.Status != "" {
		query = query.Where("status = ?", in.Status)
	}
	if len(in.Beats) > 0 {
		if s.db.Dialector.Name() == "postgres" {
			query = query.Where("beats && ?", models.StringArray(in.Beats))
		} else {
			beatQuery := s.db.Where("1 = 0")
			for _, beat := range in.Beats {
				beatQuery = beatQuery.Or("beats LIKE ?", "%\""+beat+"\"%")
			}
			query = query.Where(beatQuery)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var windows []models.PitchWindow
	page, perPage := normalizePage(in.Page, in.PerPage)
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&windows).Error
	if err != nil {
		return nil, 0, err
	}
	return windows, total, nil
}

func (s *PitchWindowService) Update(ctx context.Context, caller Caller, windowID string, in WindowUpdateInput) (*models.PitchWindow, error) {
	var window models.PitchWindow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockOwned(tx, caller, windowID, &window); err != nil {
			return err
		}
		if window.Status != models.WindowDraft && window.Status != models.WindowOpen {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"window can only be updated while draft or open",
				map[string]string{"current": string(window.Status)})
		}

		if in.Title != nil {
			window.Title = *in.Title
		}
		if in.Description != nil {
			window.Description = *in.Description
		}
		if in.Beats != nil {
			window.Beats = models.StringArray(in.Beats)
		}
		if in.Requirements != nil {
			window.Requirements = *in.Requirements
		}
		if in.BudgetMin != nil {
			window.BudgetMin = *in.BudgetMin
		}
		if in.BudgetMax != nil {
			window.BudgetMax = *in.BudgetMax
		}
		if in.MaxPitches != nil {
			window.MaxPitches = *in.MaxPitches
		}
		if in.OpensAt != nil {
			window.OpensAt = *in.OpensAt
		}
		if in.ClosesAt != nil {
			window.ClosesAt = *in.ClosesAt
		}
		if !window.ClosesAt.After(window.OpensAt) {
			return apperr.New(apperr.CodeValidationFailed, "closes_at must be after opens_at")
		}

		return tx.Save(&window).Error
	})
	if err != nil {
		return nil, err
	}
	return &window, nil
}

func (s *PitchWindowService) Open(ctx context.Context, caller Caller, windowID string) (*models.PitchWindow, error) {
	return s.transition(ctx, caller, windowID, models.WindowOpen, models.WindowDraft)
}

func (s *PitchWindowService) Close(ctx context.Context, caller Caller, windowID string) (*models.PitchWindow, error) {
	return s.transition(ctx, caller, windowID, models.WindowClosed, models.WindowOpen)
}

func (s *PitchWindowService) Cancel(ctx context.Context, caller Caller, windowID string) (*models.PitchWindow, error) {
	return s.transition(ctx, caller, windowID, models.WindowCancelled, models.WindowDraft, models.WindowOpen)
}

func (s *PitchWindowService) transition(ctx context.Context, caller Caller, windowID string, to models.PitchWindowStatus, from ...models.PitchWindowStatus) (*models.PitchWindow, error) {
	var window models.PitchWindow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockOwned(tx, caller, windowID, &window); err != nil {
			return err
		}
		allowed := false
		for _, f := range from {
			if window.Status == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"invalid pitch window transition",
				map[string]string{
					"current":   string(window.Status),
					"attempted": string(to),
				})
		}
		window.Status = to
		return tx.Save(&window).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Pitch window transitioned",
		zap.String("window_id", window.ID),
		zap.String("status", string(to)))
	return &window, nil
}

func (s *PitchWindowService) lockOwned(tx *gorm.DB, caller Caller, windowID string, window *models.PitchWindow) error {
	if caller.Role != RoleEditor {
		return apperr.New(apperr.CodeForbidden, "only editors can manage pitch windows")
	}
	if err := forUpdate(tx).First(window, "id = ?", windowID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.New(apperr.CodeNotFound, "pitch window not found")
		}
		return err
	}
	if window.EditorID != caller.ID {
		return apperr.New(apperr.CodeForbidden, "window belongs to another editor")
	}
	return nil
}

// IsAcceptingPitches reports whether a window currently accepts new
// pitches: open status, inside the time bounds, below capacity.
func (s *PitchWindowService) IsAcceptingPitches(window *models.PitchWindow) bool {
	return s.acceptanceError(window) == nil
}

// acceptanceError distinguishes a full window from one that is closed or
// outside its time bounds.
func (s *PitchWindowService) acceptanceError(window *models.PitchWindow) *apperr.Error {
	now := s.Now().UTC()
	if window.Status != models.WindowOpen || now.Before(window.OpensAt) || now.After(window.ClosesAt) {
		return apperr.New(apperr.CodeWindowNotAccepting, "this pitch window is not currently accepting pitches")
	}
	if window.CurrentPitchCount >= window.MaxPitches {
		return apperr.New(apperr.CodeCapacityReached, "this pitch window has reached its pitch capacity")
	}
	return nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
