package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/bylinehq/bylined/internal/models"
	"github.com/bylinehq/bylined/internal/service"
)

type createWindowRequest struct {
	NewsroomID   string           `json:"newsroom_id" binding:"required"`
	Title        string           `json:"title" binding:"required"`
	Description  string           `json:"description"`
	Beats        []string         `json:"beats"`
	Requirements string           `json:"requirements"`
	BudgetMin    *decimal.Decimal `json:"budget_min"`
	BudgetMax    *decimal.Decimal `json:"budget_max"`
	RateType     string           `json:"rate_type"`
	MaxPitches   int              `json:"max_pitches"`
	OpensAt      time.Time        `json:"opens_at" binding:"required"`
	ClosesAt     time.Time        `json:"closes_at" binding:"required"`
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (s *Server) handleCreateWindow(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req createWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	window, err := s.Windows.Create(c.Request.Context(), caller, req.NewsroomID, service.WindowCreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Beats:        req.Beats,
		Requirements: req.Requirements,
		BudgetMin:    nullDecimal(req.BudgetMin),
		BudgetMax:    nullDecimal(req.BudgetMax),
		RateType:     req.RateType,
		MaxPitches:   req.MaxPitches,
		OpensAt:      req.OpensAt,
		ClosesAt:     req.ClosesAt,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, window)
}

func (s *Server) handleListWindows(c *gin.Context) {
	windows, total, err := s.Windows.List(c.Request.Context(), service.WindowListInput{
		NewsroomID: c.Query("newsroom_id"),
		Status:     models.PitchWindowStatus(c.Query("status")),
		Beats:      c.QueryArray("beat"),
		Page:       intQuery(c, "page"),
		PerPage:    intQuery(c, "per_page"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows, "total": total})
}

func (s *Server) handleGetWindow(c *gin.Context) {
	window, err := s.Windows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, window)
}

type updateWindowRequest struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Beats        []string         `json:"beats"`
	Requirements *string          `json:"requirements"`
	BudgetMin    *decimal.Decimal `json:"budget_min"`
	BudgetMax    *decimal.Decimal `json:"budget_max"`
	MaxPitches   *int             `json:"max_pitches"`
	OpensAt      *time.Time       `json:"opens_at"`
	ClosesAt     *time.Time       `json:"closes_at"`
}

func (s *Server) handleUpdateWindow(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req updateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := service.WindowUpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		Beats:        req.Beats,
		Requirements: req.Requirements,
		MaxPitches:   req.MaxPitches,
		OpensAt:      req.OpensAt,
		ClosesAt:     req.ClosesAt,
	}
	if req.BudgetMin != nil {
		min := nullDecimal(req.BudgetMin)
		in.BudgetMin = &min
	}
	if req.BudgetMax != nil {
		max := nullDecimal(req.BudgetMax)
		in.BudgetMax = &max
	}

	window, err := s.Windows.Update(c.Request.Context(), caller, c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, window)
}

func (s *Server) handleOpenWindow(c *gin.Context) {
	s.windowTransition(c, s.Windows.Open)
}

func (s *Server) handleCloseWindow(c *gin.Context) {
	s.windowTransition(c, s.Windows.Close)
}

func (s *Server) handleCancelWindow(c *gin.Context) {
	s.windowTransition(c, s.Windows.Cancel)
}

func (s *Server) windowTransition(c *gin.Context, op func(ctx gctx, caller service.Caller, id string) (*models.PitchWindow, error)) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	window, err := op(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, window)
}
