package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/config"
	"github.com/bylinehq/bylined/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Windows     *service.PitchWindowService
	Pitches     *service.PitchService
	Assignments *service.AssignmentService
	Payments    *service.PaymentService
	Ledger      *service.LedgerService
	Compliance  *service.ComplianceService
	CMSWebhooks *service.CMSWebhookService
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gateway := service.NewSandboxGateway(&cfg.Escrow)
	srv := NewServerWithDeps(cfg, db, logger, gateway)
	return srv, nil
}

// NewServerWithDeps wires the full service graph against an existing DB
// handle and gateway. Tests use this with sqlite and a scripted gateway.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, logger *zap.Logger, gateway service.PaymentGateway) *Server {
	windows := service.NewPitchWindowService(cfg, db, logger)
	pitches := service.NewPitchService(cfg, db, logger, windows)
	assignments := service.NewAssignmentService(cfg, db, logger)
	ledger := service.NewLedgerService(db, logger)
	compliance := service.NewComplianceService(cfg, db, logger)
	payments := service.NewPaymentService(cfg, db, logger, gateway, ledger, compliance)
	cmsWebhooks := service.NewCMSWebhookService(cfg, db, logger, payments)

	router := gin.New()

	srv := &Server{
		Config:      cfg,
		DB:          db,
		Router:      router,
		Logger:      logger,
		Windows:     windows,
		Pitches:     pitches,
		Assignments: assignments,
		Payments:    payments,
		Ledger:      ledger,
		Compliance:  compliance,
		CMSWebhooks: cmsWebhooks,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Caller-ID, X-Caller-Role")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		windows := api.Group("/windows")
		{
			windows.POST("", s.handleCreateWindow)
			windows.GET("", s.handleListWindows)
			windows.GET("/:id", s.handleGetWindow)
			windows.PATCH("/:id", s.handleUpdateWindow)
			windows.POST("/:id/open", s.handleOpenWindow)
			windows.POST("/:id/close", s.handleCloseWindow)
			windows.POST("/:id/cancel", s.handleCancelWindow)
			windows.GET("/:id/pitches", s.handleListWindowPitches)
		}

		pitches := api.Group("/pitches")
		{
			pitches.POST("", s.handleCreatePitch)
			pitches.GET("/my", s.handleListMyPitches)
			pitches.GET("/:id", s.handleGetPitch)
			pitches.PATCH("/:id", s.handleUpdatePitch)
			pitches.POST("/:id/submit", s.handleSubmitPitch)
			pitches.POST("/:id/review", s.handleReviewPitch)
			pitches.POST("/:id/withdraw", s.handleWithdrawPitch)
		}

		assignments := api.Group("/assignments")
		{
			assignments.GET("", s.handleListAssignments)
			assignments.GET("/:id", s.handleGetAssignment)
			assignments.PATCH("/:id", s.handleUpdateAssignment)
			assignments.POST("/:id/status", s.handleAssignmentStatus)
			assignments.POST("/:id/kill-fee", s.handleCreateKillFee)
			assignments.GET("/:id/payments", s.handleListAssignmentPayments)
		}

		payments := api.Group("/payments")
		{
			payments.POST("", s.handleCreatePayment)
			payments.GET("", s.handleListPayments)
			payments.GET("/:id", s.handleGetPayment)
			payments.POST("/:id/hold", s.handleHoldPayment)
			payments.POST("/:id/release", s.handleReleasePayment)
			payments.POST("/:id/complete", s.handleCompletePayment)
			payments.POST("/:id/refund", s.handleRefundPayment)
		}

		ledger := api.Group("/ledger")
		{
			ledger.GET("/:freelancer_id", s.handleListLedgerEntries)
			ledger.GET("/:freelancer_id/balance", s.handleLedgerBalance)
		}

		compliance := api.Group("/compliance")
		{
			compliance.GET("/:year/summary", s.handleComplianceSummary)
			compliance.GET("/:year/records", s.handleListComplianceRecords)
			compliance.GET("/:year/records/:freelancer_id", s.handleGetComplianceRecord)
			compliance.POST("/:year/records/:freelancer_id/w9", s.handleMarkW9)
			compliance.POST("/:year/records/:freelancer_id/1099", s.handleMark1099)
		}

		api.POST("/cms/webhook", s.handleCMSWebhook)
	}
}

// caller extracts the pre-verified identity the excluded auth layer
// forwards with every request.
func (s *Server) caller(c *gin.Context) (service.Caller, bool) {
	id := c.GetHeader("X-Caller-ID")
	role := service.Role(c.GetHeader("X-Caller-Role"))
	if id == "" || (role != service.RoleFreelancer && role != service.RoleEditor) {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    apperr.CodeForbidden,
			"message": "caller identity required",
		})
		return service.Caller{}, false
	}
	return service.Caller{ID: id, Role: role}, true
}

func (s *Server) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body := gin.H{"code": ae.Code, "message": ae.Message}
		if len(ae.Metadata) > 0 {
			body["metadata"] = ae.Metadata
		}
		c.JSON(ae.Code.HTTPStatus(), body)
		return
	}

	s.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    apperr.CodeUnknown,
		"message": "internal error",
	})
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
