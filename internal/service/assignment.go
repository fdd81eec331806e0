package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/config"
	"github.com/bylinehq/bylined/internal/models"
)

// assignmentTransitions is the per-actor whitelist for assignment status
// changes. Publication is driven externally by the CMS webhook and is not
// part of this table; approved is terminal for both actors here.
var assignmentTransitions = map[models.AssignmentStatus]map[Role][]models.AssignmentStatus{
	models.AssignmentAssigned: {
		RoleFreelancer: {models.AssignmentInProgress},
		RoleEditor:     {models.AssignmentKilled},
	},
	models.AssignmentInProgress: {
		RoleFreelancer: {models.AssignmentSubmitted},
		RoleEditor:     {models.AssignmentKilled},
	},
	models.AssignmentSubmitted: {
		RoleEditor: {
			models.AssignmentRevisionRequested,
			models.AssignmentApproved,
			models.AssignmentKilled,
		},
	},
	models.AssignmentRevisionRequested: {
		RoleFreelancer: {models.AssignmentSubmitted},
		RoleEditor:     {models.AssignmentKilled},
	},
}

// transitionAllowed reports whether any actor may drive from -> to, and
// whether the given role may.
func transitionAllowed(from, to models.AssignmentStatus, role Role) (anyActor, thisActor bool) {
	for r, targets := range assignmentTransitions[from] {
		for _, t := range targets {
			if t == to {
				anyActor = true
				if r == role {
					thisActor = true
				}
			}
		}
	}
	return anyActor, thisActor
}

// AssignmentService manages the lifecycle of accepted work.
type AssignmentService struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *zap.Logger

	Now func() time.Time
}

func NewAssignmentService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{
		cfg:    cfg,
		db:     db,
		logger: logger,
		Now:    time.Now,
	}
}

func (s *AssignmentService) Get(ctx context.Context, assignmentID string) (*models.Assignment, error) {
	var assignment models.Assignment
	if err := s.db.WithContext(ctx).First(&assignment, "id = ?", assignmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.CodeNotFound, "assignment not found")
		}
		return nil, err
	}
	return &assignment, nil
}

type AssignmentTransitionInput struct {
	Status models.AssignmentStatus

	// Optional side-effect fields, consumed per target status.
	ContentURL     string
	FinalWordCount *int
	RevisionNotes  string
}

// Transition applies a whitelisted state change on behalf of the caller.
// The aggregate row is re-read under lock so two concurrent requests
// cannot both succeed on a stale premise.
func (s *AssignmentService) Transition(ctx context.Context, caller Caller, assignmentID string, in AssignmentTransitionInput) (*models.Assignment, error) {
	var assignment models.Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&assignment, "id = ?", assignmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.CodeNotFound, "assignment not found")
			}
			return err
		}

		switch caller.Role {
		case RoleFreelancer:
			if assignment.FreelancerID != caller.ID {
				return apperr.New(apperr.CodeForbidden, "assignment belongs to another freelancer")
			}
		case RoleEditor:
			if assignment.EditorID != caller.ID {
				return apperr.New(apperr.CodeForbidden, "assignment belongs to another editor")
			}
		default:
			return apperr.New(apperr.CodeForbidden, "unknown caller role")
		}

		anyActor, thisActor := transitionAllowed(assignment.Status, in.Status, caller.Role)
		if !anyActor {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"invalid assignment status transition",
				map[string]string{
					"current":   string(assignment.Status),
					"attempted": string(in.Status),
				})
		}
		if !thisActor {
			return apperr.WithMetadata(apperr.CodeForbidden,
				"caller role may not drive this transition",
				map[string]string{
					"current":   string(assignment.Status),
					"attempted": string(in.Status),
					"role":      string(caller.Role),
				})
		}

		now := s.Now().UTC()
		assignment.Status = in.Status

		switch in.Status {
		case models.AssignmentInProgress:
			assignment.StartedAt = &now
		case models.AssignmentSubmitted:
			assignment.SubmittedAt = &now
			if in.ContentURL != "" {
				assignment.ContentURL = in.ContentURL
			}
			if in.FinalWordCount != nil {
				assignment.FinalWordCount = in.FinalWordCount
			}
		case models.AssignmentRevisionRequested:
			assignment.RevisionCount++
			if in.RevisionNotes != "" {
				assignment.RevisionNotes = in.RevisionNotes
			}
			if assignment.RevisionCount > assignment.MaxRevisions {
				s.logger.Warn("Assignment exceeded max revisions",
					zap.String("assignment_id", assignment.ID),
					zap.Int("revision_count", assignment.RevisionCount),
					zap.Int("max_revisions", assignment.MaxRevisions))
			}
		case models.AssignmentApproved, models.AssignmentKilled:
			assignment.CompletedAt = &now
		}

		return tx.Save(&assignment).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Assignment transitioned",
		zap.String("assignment_id", assignment.ID),
		zap.String("status", string(assignment.Status)),
		zap.String("actor", string(caller.Role)))
	return &assignment, nil
}

type AssignmentUpdateInput struct {
	WordCountTarget *int
	Deadline        *time.Time
	DraftURL        *string
}

// UpdateDetails lets the owning editor adjust working details before the
// assignment reaches a terminal state.
func (s *AssignmentService) UpdateDetails(ctx context.Context, caller Caller, assignmentID string, in AssignmentUpdateInput) (*models.Assignment, error) {
	if caller.Role != RoleEditor {
		return nil, apperr.New(apperr.CodeForbidden, "only editors can update assignment details")
	}

	var assignment models.Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&assignment, "id = ?", assignmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.CodeNotFound, "assignment not found")
			}
			return err
		}
		if assignment.EditorID != caller.ID {
			return apperr.New(apperr.CodeForbidden, "assignment belongs to another editor")
		}
		switch assignment.Status {
		case models.AssignmentKilled, models.AssignmentPublished, models.AssignmentApproved:
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"assignment details can no longer be updated",
				map[string]string{"current": string(assignment.Status)})
		}

		if in.WordCountTarget != nil {
			assignment.WordCountTarget = in.WordCountTarget
		}
		if in.Deadline != nil {
			assignment.Deadline = *in.Deadline
		}
		if in.DraftURL != nil {
			assignment.DraftURL = *in.DraftURL
		}
		return tx.Save(&assignment).Error
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

type AssignmentListInput struct {
	Status  models.AssignmentStatus
	Page    int
	PerPage int
}

func (s *AssignmentService) ListForFreelancer(ctx context.Context, freelancerID string, in AssignmentListInput) ([]models.Assignment, int64, error) {
	return s.list(ctx, "freelancer_id = ?", freelancerID, in)
}

func (s *AssignmentService) ListForNewsroom(ctx context.Context, newsroomID string, in AssignmentListInput) ([]models.Assignment, int64, error) {
	return s.list(ctx, "newsroom_id = ?", newsroomID, in)
}

func (s *AssignmentService) list(ctx context.Context, cond string, arg string, in AssignmentListInput) ([]models.Assignment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Assignment{}).Where(cond, arg)
	if in.Status != "" {
		query = query.Where("status = ?", in.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var assignments []models.Assignment
	page, perPage := normalizePage(in.Page, in.PerPage)
	err := query.Order("deadline ASC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&assignments).Error
	if err != nil {
		return nil, 0, err
	}
	return assignments, total, nil
}
