package server

import (
	"net/http"
	"strings"

	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	"github.com/gin-gonic/gin"
)

type requestPayoutRequest struct {
	Amount         int64  `json:"amount"`
	Channel        string `json:"channel"`
	RecipientName  string `json:"recipient_name"`
	AccountNumber  string `json:"account_number"`
	BankCode       string `json:"bank_code"`
	Role           string `json:"role"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) RequestPayout(c *gin.Context) {
	var req requestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.payoutSvc.RequestPayout(c.Request.Context(), payoutdomain.RequestPayoutInput{
		UserID:         currentUserID(c),
		Amount:         req.Amount,
		Channel:        transferdomain.Channel(strings.TrimSpace(req.Channel)),
		RecipientName:  req.RecipientName,
		AccountNumber:  req.AccountNumber,
		BankCode:       req.BankCode,
		Role:           req.Role,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (s *Server) GetPayout(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req, err := s.payoutSvc.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) ListPayouts(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.payoutSvc.List(c.Request.Context(), payoutdomain.ListRequest{
		UserID: currentUserID(c),
		Status: payoutdomain.PayoutStatus(strings.TrimSpace(c.Query("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": rows})
}

func (s *Server) ListPayoutOptions(c *gin.Context) {
	channel := transferdomain.Channel(strings.TrimSpace(c.DefaultQuery("channel", string(transferdomain.ChannelBank))))

	banks, err := s.payoutSvc.ListPayoutOptions(c.Request.Context(), channel)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": channel, "options": banks})
}
