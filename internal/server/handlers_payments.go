package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/models"
	"github.com/bylinehq/bylined/internal/service"
)

type createPaymentRequest struct {
	AssignmentID string          `json:"assignment_id" binding:"required"`
	PaymentType  string          `json:"payment_type" binding:"required"`
	GrossAmount  decimal.Decimal `json:"gross_amount" binding:"required"`
	Description  string          `json:"description"`
}

func (s *Server) handleCreatePayment(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := s.Payments.Create(c.Request.Context(), caller, service.PaymentCreateInput{
		AssignmentID: req.AssignmentID,
		PaymentType:  models.PaymentType(req.PaymentType),
		GrossAmount:  req.GrossAmount,
		Description:  req.Description,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (s *Server) handleListPayments(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	in := service.PaymentListInput{
		Status:  models.PaymentStatus(c.Query("status")),
		Page:    intQuery(c, "page"),
		PerPage: intQuery(c, "per_page"),
	}

	var (
		payments []models.Payment
		total    int64
		err      error
	)
	switch caller.Role {
	case service.RoleFreelancer:
		payments, total, err = s.Payments.ListForFreelancer(c.Request.Context(), caller.ID, in)
	case service.RoleEditor:
		newsroomID := c.Query("newsroom_id")
		if newsroomID == "" {
			s.respondError(c, apperr.New(apperr.CodeValidationFailed, "newsroom_id is required"))
			return
		}
		payments, total, err = s.Payments.ListForNewsroom(c.Request.Context(), newsroomID, in)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "total": total})
}

func (s *Server) handleGetPayment(c *gin.Context) {
	payment, err := s.Payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) handleHoldPayment(c *gin.Context) {
	s.paymentTransition(c, s.Payments.Hold)
}

func (s *Server) handleReleasePayment(c *gin.Context) {
	s.paymentTransition(c, s.Payments.Release)
}

func (s *Server) handleCompletePayment(c *gin.Context) {
	s.paymentTransition(c, s.Payments.Complete)
}

func (s *Server) handleRefundPayment(c *gin.Context) {
	s.paymentTransition(c, s.Payments.Refund)
}

func (s *Server) paymentTransition(c *gin.Context, op func(gctx, service.Caller, string) (*models.Payment, error)) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	payment, err := op(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) handleListLedgerEntries(c *gin.Context) {
	entries, total, err := s.Ledger.ListForFreelancer(c.Request.Context(), c.Param("freelancer_id"), service.LedgerListInput{
		Page:    intQuery(c, "page"),
		PerPage: intQuery(c, "per_page"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": total})
}

func (s *Server) handleLedgerBalance(c *gin.Context) {
	freelancerID := c.Param("freelancer_id")
	balance, err := s.Ledger.Balance(c.Request.Context(), freelancerID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"freelancer_id": freelancerID, "balance": balance})
}

func taxYear(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tax year"})
		return 0, false
	}
	return year, true
}

func (s *Server) handleComplianceSummary(c *gin.Context) {
	year, ok := taxYear(c)
	if !ok {
		return
	}
	summary, err := s.Compliance.Summary(c.Request.Context(), year)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleListComplianceRecords(c *gin.Context) {
	year, ok := taxYear(c)
	if !ok {
		return
	}
	records, err := s.Compliance.ListForYear(c.Request.Context(), year, c.Query("exceeds_threshold") == "true")
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

func (s *Server) handleGetComplianceRecord(c *gin.Context) {
	year, ok := taxYear(c)
	if !ok {
		return
	}
	record, err := s.Compliance.Record(c.Request.Context(), c.Param("freelancer_id"), year)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type markW9Request struct {
	TINLastFour string `json:"tin_last_four" binding:"required"`
}

func (s *Server) handleMarkW9(c *gin.Context) {
	year, ok := taxYear(c)
	if !ok {
		return
	}
	var req markW9Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := s.Compliance.MarkW9Received(c.Request.Context(), c.Param("freelancer_id"), year, req.TINLastFour)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleMark1099(c *gin.Context) {
	year, ok := taxYear(c)
	if !ok {
		return
	}
	record, err := s.Compliance.Mark1099Generated(c.Request.Context(), c.Param("freelancer_id"), year)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
