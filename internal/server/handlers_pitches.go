package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/bylinehq/bylined/internal/models"
	"github.com/bylinehq/bylined/internal/service"
)

type createPitchRequest struct {
	PitchWindowID         string           `json:"pitch_window_id" binding:"required"`
	Headline              string           `json:"headline" binding:"required"`
	Summary               string           `json:"summary"`
	Approach              string           `json:"approach"`
	EstimatedWordCount    *int             `json:"estimated_word_count"`
	ProposedRate          *decimal.Decimal `json:"proposed_rate"`
	ProposedRateType      string           `json:"proposed_rate_type"`
	EstimatedDeliveryDays *int             `json:"estimated_delivery_days"`
}

func (s *Server) handleCreatePitch(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req createPitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pitch, err := s.Pitches.Create(c.Request.Context(), caller, service.PitchCreateInput{
		PitchWindowID:         req.PitchWindowID,
		Headline:              req.Headline,
		Summary:               req.Summary,
		Approach:              req.Approach,
		EstimatedWordCount:    req.EstimatedWordCount,
		ProposedRate:          nullDecimal(req.ProposedRate),
		ProposedRateType:      req.ProposedRateType,
		EstimatedDeliveryDays: req.EstimatedDeliveryDays,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pitch)
}

func (s *Server) handleGetPitch(c *gin.Context) {
	pitch, err := s.Pitches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pitch)
}

type updatePitchRequest struct {
	Headline              *string          `json:"headline"`
	Summary               *string          `json:"summary"`
	Approach              *string          `json:"approach"`
	EstimatedWordCount    *int             `json:"estimated_word_count"`
	ProposedRate          *decimal.Decimal `json:"proposed_rate"`
	ProposedRateType      *string          `json:"proposed_rate_type"`
	EstimatedDeliveryDays *int             `json:"estimated_delivery_days"`
}

func (s *Server) handleUpdatePitch(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req updatePitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := service.PitchUpdateInput{
		Headline:              req.Headline,
		Summary:               req.Summary,
		Approach:              req.Approach,
		EstimatedWordCount:    req.EstimatedWordCount,
		ProposedRateType:      req.ProposedRateType,
		EstimatedDeliveryDays: req.EstimatedDeliveryDays,
	}
	if req.ProposedRate != nil {
		rate := nullDecimal(req.ProposedRate)
		in.ProposedRate = &rate
	}

	pitch, err := s.Pitches.UpdateDraft(c.Request.Context(), caller, c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pitch)
}

func (s *Server) handleSubmitPitch(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	pitch, err := s.Pitches.Submit(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pitch)
}

type reviewPitchRequest struct {
	Decision          string           `json:"decision" binding:"required"`
	AgreedRate        *decimal.Decimal `json:"agreed_rate"`
	RateType          string           `json:"rate_type"`
	Deadline          *time.Time       `json:"deadline"`
	WordCountTarget   *int             `json:"word_count_target"`
	KillFeePercentage *decimal.Decimal `json:"kill_fee_percentage"`
	EditorNotes       string           `json:"editor_notes"`
	RejectionReason   string           `json:"rejection_reason"`
}

func (s *Server) handleReviewPitch(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req reviewPitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Decision != "accept" && req.Decision != "reject" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be accept or reject"})
		return
	}

	in := service.PitchReviewInput{
		Accept:            req.Decision == "accept",
		RateType:          req.RateType,
		WordCountTarget:   req.WordCountTarget,
		KillFeePercentage: nullDecimal(req.KillFeePercentage),
		EditorNotes:       req.EditorNotes,
		RejectionReason:   req.RejectionReason,
	}
	if req.AgreedRate != nil {
		in.AgreedRate = *req.AgreedRate
	}
	if req.Deadline != nil {
		in.Deadline = *req.Deadline
	}

	pitch, assignment, err := s.Pitches.Review(c.Request.Context(), caller, c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch, "assignment": assignment})
}

func (s *Server) handleWithdrawPitch(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	pitch, err := s.Pitches.Withdraw(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pitch)
}

func (s *Server) handleListMyPitches(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	pitches, total, err := s.Pitches.ListForFreelancer(c.Request.Context(), caller.ID, service.PitchListInput{
		Status:  models.PitchStatus(c.Query("status")),
		Page:    intQuery(c, "page"),
		PerPage: intQuery(c, "per_page"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitches": pitches, "total": total})
}

func (s *Server) handleListWindowPitches(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	pitches, total, err := s.Pitches.ListForWindow(c.Request.Context(), caller, c.Param("id"), service.PitchListInput{
		Status:  models.PitchStatus(c.Query("status")),
		Page:    intQuery(c, "page"),
		PerPage: intQuery(c, "per_page"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitches": pitches, "total": total})
}
