package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Result is one commission decision: the applied percentage rate and the
// commission amount in minor currency units.
type Result struct {
	Rate       decimal.Decimal `json:"rate"`
	Commission int64           `json:"commission"`
}

type Service interface {
	// Calculate resolves the commission for a gross amount. A founding
	// member pays 0% on design sales regardless of the tier table.
	Calculate(ctx context.Context, amount int64, revenueType RevenueType, foundingMember bool) (Result, error)
	ListTiers(ctx context.Context, revenueType RevenueType) ([]CommissionTier, error)
}

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidRevenueType = errors.New("invalid_revenue_type")
	// ErrNoCommissionTier means the rate table has no band covering the
	// amount. This is a configuration fault: the caller must refuse the
	// sale rather than guess a rate.
	ErrNoCommissionTier = errors.New("no_commission_tier")
	ErrOverlappingTiers = errors.New("overlapping_tiers")
)
