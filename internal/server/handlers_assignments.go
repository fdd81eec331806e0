package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/models"
	"github.com/bylinehq/bylined/internal/service"
)

func (s *Server) handleGetAssignment(c *gin.Context) {
	assignment, err := s.Assignments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

func (s *Server) handleListAssignments(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	in := service.AssignmentListInput{
		Status:  models.AssignmentStatus(c.Query("status")),
		Page:    intQuery(c, "page"),
		PerPage: intQuery(c, "per_page"),
	}

	var (
		assignments []models.Assignment
		total       int64
		err         error
	)
	switch caller.Role {
	case service.RoleFreelancer:
		assignments, total, err = s.Assignments.ListForFreelancer(c.Request.Context(), caller.ID, in)
	case service.RoleEditor:
		newsroomID := c.Query("newsroom_id")
		if newsroomID == "" {
			s.respondError(c, apperr.New(apperr.CodeValidationFailed, "newsroom_id is required"))
			return
		}
		assignments, total, err = s.Assignments.ListForNewsroom(c.Request.Context(), newsroomID, in)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments, "total": total})
}

type updateAssignmentRequest struct {
	WordCountTarget *int       `json:"word_count_target"`
	Deadline        *time.Time `json:"deadline"`
	DraftURL        *string    `json:"draft_url"`
}

func (s *Server) handleUpdateAssignment(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req updateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, err := s.Assignments.UpdateDetails(c.Request.Context(), caller, c.Param("id"), service.AssignmentUpdateInput{
		WordCountTarget: req.WordCountTarget,
		Deadline:        req.Deadline,
		DraftURL:        req.DraftURL,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

type assignmentStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	ContentURL     string `json:"content_url"`
	FinalWordCount *int   `json:"final_word_count"`
	RevisionNotes  string `json:"revision_notes"`
}

func (s *Server) handleAssignmentStatus(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req assignmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, err := s.Assignments.Transition(c.Request.Context(), caller, c.Param("id"), service.AssignmentTransitionInput{
		Status:         models.AssignmentStatus(req.Status),
		ContentURL:     req.ContentURL,
		FinalWordCount: req.FinalWordCount,
		RevisionNotes:  req.RevisionNotes,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// handleCreateKillFee records the kill fee owed for a killed assignment.
func (s *Server) handleCreateKillFee(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	payment, err := s.Payments.CreateKillFee(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (s *Server) handleListAssignmentPayments(c *gin.Context) {
	payments, err := s.Payments.ListForAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
