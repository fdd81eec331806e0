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

// CMSEvent is the payload the external content system posts when an
// article's publication state changes.
type CMSEvent struct {
	Event        string            `json:"event"`
	CMSPostID    string            `json:"cms_post_id"`
	AssignmentID string            `json:"assignment_id"`
	PublishedURL string            `json:"published_url"`
	PublishedAt  *time.Time        `json:"published_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CMSResult is the webhook acknowledgment.
type CMSResult struct {
	Status                  string                  `json:"status"`
	AssignmentID            string                  `json:"assignment_id"`
	AssignmentStatus        models.AssignmentStatus `json:"assignment_status"`
	PaymentReleaseTriggered bool                    `json:"payment_release_triggered"`
}

// CMSWebhookService ingests signed publication events and maps them onto
// assignment transitions. Publication is also the trigger point for escrow
// release.
type CMSWebhookService struct {
	cfg      *config.Config
	db       *gorm.DB
	logger   *zap.Logger
	payments *PaymentService

	Now func() time.Time
}

func NewCMSWebhookService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, payments *PaymentService) *CMSWebhookService {
	return &CMSWebhookService{
		cfg:      cfg,
		db:       db,
		logger:   logger,
		payments: payments,
		Now:      time.Now,
	}
}

// VerifySignature authenticates the raw request body against the shared
// CMS secret. It must run before any state is touched.
func (s *CMSWebhookService) VerifySignature(body []byte, signature string) error {
	if signature == "" {
		return apperr.New(apperr.CodeSignatureMismatch, "webhook signature required")
	}
	if !verifyHMACSignature(body, signature, s.cfg.CMS.WebhookSecret) {
		return apperr.New(apperr.CodeSignatureMismatch, "invalid webhook signature")
	}
	return nil
}

// Handle processes a verified CMS event. Replaying an already-applied
// article.published event is a no-op, not an error.
func (s *CMSWebhookService) Handle(ctx context.Context, evt CMSEvent) (*CMSResult, error) {
	switch evt.Event {
	case "article.published":
		return s.handlePublished(ctx, evt)
	case "article.updated":
		return s.handleUpdated(ctx, evt)
	case "article.unpublished":
		return s.handleUnpublished(ctx, evt)
	default:
		return nil, apperr.WithMetadata(apperr.CodeValidationFailed,
			"unknown CMS event",
			map[string]string{"event": evt.Event})
	}
}

func (s *CMSWebhookService) handlePublished(ctx context.Context, evt CMSEvent) (*CMSResult, error) {
	var assignment models.Assignment
	var replay bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&assignment, "id = ?", evt.AssignmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.CodeNotFound, "assignment not found")
			}
			return err
		}

		// Idempotent replay: the event already applied.
		if assignment.Status == models.AssignmentPublished && assignment.CMSPostID == evt.CMSPostID {
			replay = true
			return nil
		}

		if assignment.Status != models.AssignmentApproved {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"cannot publish: assignment is not approved",
				map[string]string{
					"current":   string(assignment.Status),
					"attempted": string(models.AssignmentPublished),
				})
		}

		publishedAt := s.Now().UTC()
		if evt.PublishedAt != nil {
			publishedAt = evt.PublishedAt.UTC()
		}
		assignment.Status = models.AssignmentPublished
		assignment.CMSPostID = evt.CMSPostID
		assignment.FinalURL = evt.PublishedURL
		if evt.Metadata != nil {
			assignment.CMSMetadata = models.JSONMap(evt.Metadata)
		}
		assignment.PublishedAt = &publishedAt
		return tx.Save(&assignment).Error
	})
	if err != nil {
		return nil, err
	}

	result := &CMSResult{
		Status:           "processed",
		AssignmentID:     assignment.ID,
		AssignmentStatus: assignment.Status,
	}
	if replay {
		s.logger.Info("CMS publish event replayed, no-op",
			zap.String("assignment_id", assignment.ID),
			zap.String("cms_post_id", evt.CMSPostID))
		return result, nil
	}

	s.logger.Info("Assignment published via CMS webhook",
		zap.String("assignment_id", assignment.ID),
		zap.String("cms_post_id", evt.CMSPostID),
		zap.String("published_url", evt.PublishedURL))

	result.PaymentReleaseTriggered = s.releaseEscrow(ctx, &assignment)
	return result, nil
}

// releaseEscrow attempts the publication-triggered escrow release: if the
// assignment has a payment sitting in escrow_held, capture it. A release
// failure is recorded on the payment, never rolled into the webhook
// acknowledgment; replays are safe because release is only legal from
// escrow_held.
func (s *CMSWebhookService) releaseEscrow(ctx context.Context, assignment *models.Assignment) bool {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("assignment_id = ? AND status = ?", assignment.ID, models.PaymentEscrowHeld).
		Order("created_at ASC").
		First(&payment).Error
	if err == gorm.ErrRecordNotFound {
		s.logger.Info("No escrow-held payment for published assignment",
			zap.String("assignment_id", assignment.ID))
		return false
	}
	if err != nil {
		s.logger.Error("Escrow lookup failed",
			zap.String("assignment_id", assignment.ID),
			zap.Error(err))
		return false
	}

	releaser := Caller{ID: assignment.EditorID, Role: RoleEditor}
	if _, err := s.payments.Release(ctx, releaser, payment.ID); err != nil {
		s.logger.Error("Publication-triggered release failed",
			zap.String("assignment_id", assignment.ID),
			zap.String("payment_id", payment.ID),
			zap.Error(err))
		return false
	}
	return true
}

func (s *CMSWebhookService) handleUpdated(ctx context.Context, evt CMSEvent) (*CMSResult, error) {
	var assignment models.Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&assignment, "id = ?", evt.AssignmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.CodeNotFound, "assignment not found")
			}
			return err
		}
		if assignment.Status != models.AssignmentPublished {
			return apperr.WithMetadata(apperr.CodeInvalidTransition,
				"cannot update article: assignment is not published",
				map[string]string{"current": string(assignment.Status)})
		}
		if evt.PublishedURL != "" {
			assignment.FinalURL = evt.PublishedURL
		}
		if evt.Metadata != nil {
			assignment.CMSMetadata = models.JSONMap(evt.Metadata)
		}
		return tx.Save(&assignment).Error
	})
	if err != nil {
		return nil, err
	}

	return &CMSResult{
		Status:           "processed",
		AssignmentID:     assignment.ID,
		AssignmentStatus: assignment.Status,
	}, nil
}

// handleUnpublished logs only. There is deliberately no rollback path out
// of published.
func (s *CMSWebhookService) handleUnpublished(ctx context.Context, evt CMSEvent) (*CMSResult, error) {
	var assignment models.Assignment
	if err := s.db.WithContext(ctx).First(&assignment, "id = ?", evt.AssignmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.CodeNotFound, "assignment not found")
		}
		return nil, err
	}

	s.logger.Warn("Article unpublished event received",
		zap.String("assignment_id", assignment.ID),
		zap.String("cms_post_id", evt.CMSPostID))

	return &CMSResult{
		Status:           "acknowledged",
		AssignmentID:     assignment.ID,
		AssignmentStatus: assignment.Status,
	}, nil
}
