package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	commissiondomain "github.com/draftworks/meridian/internal/commission/domain"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	webhookdomain "github.com/draftworks/meridian/internal/webhook/domain"
	"github.com/gin-gonic/gin"
)

// ReconcilePayout forces one provider status poll for a stuck request
// instead of waiting for the background sweep.
func (s *Server) ReconcilePayout(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req, err := s.payoutSvc.ForceReconcile(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) AdminListPayouts(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := payoutdomain.ListRequest{
		Status: payoutdomain.PayoutStatus(strings.TrimSpace(c.Query("status"))),
		Limit:  limit,
		Offset: offset,
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		userID, err := parseSnowflakeID(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.UserID = userID
	}

	rows, err := s.payoutSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": rows})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := auditdomain.ListRequest{
		Action: strings.TrimSpace(c.Query("action")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		userID, err := parseSnowflakeID(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.UserID = userID
	}
	if req.StartAt, err = parseOptionalTime(c.Query("start_at")); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.EndAt, err = parseOptionalTime(c.Query("end_at")); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": rows})
}

func (s *Server) ListCommissionTiers(c *gin.Context) {
	revenueType := commissiondomain.RevenueType(strings.TrimSpace(c.Query("revenue_type")))

	tiers, err := s.commissionSvc.ListTiers(c.Request.Context(), revenueType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (s *Server) ListWebhookEvents(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.webhookSvc.List(c.Request.Context(), webhookdomain.ListRequest{
		Provider: strings.TrimSpace(c.Query("provider")),
		Status:   webhookdomain.EventStatus(strings.TrimSpace(c.Query("status"))),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}
