package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bylinehq/bylined/internal/apperr"
	"github.com/bylinehq/bylined/internal/service"
)

// handleCMSWebhook authenticates the raw body before it is parsed. The
// signature covers the exact bytes on the wire, so no binding happens
// until verification passes.
func (s *Server) handleCMSWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	if err := s.CMSWebhooks.VerifySignature(body, c.GetHeader("X-Webhook-Signature")); err != nil {
		s.respondError(c, err)
		return
	}

	var evt service.CMSEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		s.respondError(c, apperr.New(apperr.CodeValidationFailed, "malformed webhook payload"))
		return
	}
	if evt.AssignmentID == "" {
		s.respondError(c, apperr.New(apperr.CodeValidationFailed, "assignment_id is required"))
		return
	}

	result, err := s.CMSWebhooks.Handle(c.Request.Context(), evt)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
