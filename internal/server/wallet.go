package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	"github.com/gin-gonic/gin"
)

type walletResponse struct {
	UserID           string `json:"user_id"`
	Currency         string `json:"currency"`
	TotalEarned      int64  `json:"total_earned"`
	TotalWithdrawn   int64  `json:"total_withdrawn"`
	PendingBalance   int64  `json:"pending_balance"`
	AvailableBalance int64  `json:"available_balance"`
}

func (s *Server) GetWallet(c *gin.Context) {
	wallet, err := s.walletSvc.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletResponse{
		UserID:           wallet.UserID.String(),
		Currency:         wallet.Currency,
		TotalEarned:      wallet.TotalEarned,
		TotalWithdrawn:   wallet.TotalWithdrawn,
		PendingBalance:   wallet.PendingBalance,
		AvailableBalance: wallet.AvailableBalance(),
	})
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := walletdomain.ListTransactionsRequest{
		UserID: currentUserID(c),
		Kind:   walletdomain.TransactionKind(strings.TrimSpace(c.Query("kind"))),
		Limit:  limit,
		Offset: offset,
	}

	rows, err := s.walletSvc.ListTransactions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

type adjustWalletRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
	Reason         string `json:"reason"`
}

// AdjustWallet applies a signed manual correction to a wallet. Admin only;
// the reason lands in both the ledger row and the audit trail.
func (s *Server) AdjustWallet(c *gin.Context) {
	userID, err := parseSnowflakeID(c.Param("user_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req adjustWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.walletSvc.Apply(c.Request.Context(), walletdomain.Mutation{
		UserID:         userID,
		Kind:           walletdomain.KindManualAdjustment,
		Amount:         req.Amount,
		Currency:       s.cfg.DefaultCurrency,
		IdempotencyKey: req.IdempotencyKey,
		Detail:         map[string]any{"reason": req.Reason},
		ActorType:      auditdomain.ActorTypeAdmin,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
