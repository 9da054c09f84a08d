package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	commissiondomain "github.com/draftworks/meridian/internal/commission/domain"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	pkgdb "github.com/draftworks/meridian/pkg/db"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recordEarningRequest struct {
	Amount         int64  `json:"amount"`
	RevenueType    string `json:"revenue_type"`
	FoundingMember bool   `json:"founding_member"`
	IdempotencyKey string `json:"idempotency_key"`
	Reference      string `json:"reference"`
}

type recordEarningResponse struct {
	TransactionID    string          `json:"transaction_id"`
	Replayed         bool            `json:"replayed"`
	GrossAmount      int64           `json:"gross_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount int64           `json:"commission_amount"`
	NetAmount        int64           `json:"net_amount"`
	TotalEarned      int64           `json:"total_earned"`
	AvailableBalance int64           `json:"available_balance"`
}

// RecordEarning credits a sale to the seller's wallet net of platform
// commission, recording the commission as its own balance-neutral ledger row.
func (s *Server) RecordEarning(c *gin.Context) {
	userID := currentUserID(c)

	var req recordEarningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		AbortWithError(c, walletdomain.ErrInvalidIdempotency)
		return
	}

	ctx := c.Request.Context()
	commission, err := s.commissionSvc.Calculate(ctx, req.Amount, commissiondomain.RevenueType(req.RevenueType), req.FoundingMember)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	net := req.Amount - commission.Commission

	var reference *string
	if trimmed := strings.TrimSpace(req.Reference); trimmed != "" {
		reference = &trimmed
	}
	actorID := userID.String()
	detail := map[string]any{
		"gross_amount":      req.Amount,
		"commission_rate":   commission.Rate.String(),
		"commission_amount": commission.Commission,
		"revenue_type":      req.RevenueType,
	}

	apply := func() (*walletdomain.Result, error) {
		var credit *walletdomain.Result
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			credit, txErr = s.walletSvc.ApplyTx(ctx, tx, walletdomain.Mutation{
				UserID:         userID,
				Kind:           walletdomain.KindCreditEarned,
				Amount:         net,
				Currency:       s.cfg.DefaultCurrency,
				IdempotencyKey: req.IdempotencyKey,
				Reference:      reference,
				Detail:         detail,
				ActorType:      auditdomain.ActorTypeUser,
				ActorID:        &actorID,
			})
			if txErr != nil {
				return txErr
			}
			if commission.Commission > 0 {
				_, txErr = s.walletSvc.ApplyTx(ctx, tx, walletdomain.Mutation{
					UserID:         userID,
					Kind:           walletdomain.KindPlatformCommission,
					Amount:         commission.Commission,
					Currency:       s.cfg.DefaultCurrency,
					IdempotencyKey: req.IdempotencyKey,
					Reference:      reference,
					Detail:         detail,
					ActorType:      auditdomain.ActorTypeSystem,
				})
			}
			return txErr
		})
		return credit, err
	}

	result, err := apply()
	if pkgdb.IsDuplicateKeyErr(err) {
		// Lost a concurrent race on the same key; the re-run replays.
		result, err = apply()
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, recordEarningResponse{
		TransactionID:    result.TransactionID.String(),
		Replayed:         result.Replayed,
		GrossAmount:      req.Amount,
		CommissionRate:   commission.Rate,
		CommissionAmount: commission.Commission,
		NetAmount:        net,
		TotalEarned:      result.TotalEarned,
		AvailableBalance: result.AvailableBalance,
	})
}

func (s *Server) GetEarningsSummary(c *gin.Context) {
	summary, err := s.payoutSvc.EarningsSummary(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
