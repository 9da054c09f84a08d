package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RevenueType classifies how a seller earned an amount.
type RevenueType string

const (
	RevenueTypeDesignSale       RevenueType = "design_sale"
	RevenueTypeContractReferral RevenueType = "contract_referral"
)

// CommissionTier is one row of the admin-managed rate table. Amounts are in
// minor currency units; MaxAmount nil means the band is unbounded above.
// Active bands for the same revenue type must not overlap.
type CommissionTier struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	RevenueType RevenueType     `json:"revenue_type" gorm:"type:text;not null;index"`
	MinAmount   int64           `json:"min_amount" gorm:"not null"`
	MaxAmount   *int64          `json:"max_amount,omitempty"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:numeric(5,2);not null"`
	Active      bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommissionTier) TableName() string { return "commission_tiers" }

// Contains reports whether amount falls inside the tier band. Bands are
// half-open [MinAmount, MaxAmount): the upper bound of one band is the lower
// bound of the next.
func (t CommissionTier) Contains(amount int64) bool {
	if amount < t.MinAmount {
		return false
	}
	if t.MaxAmount != nil && amount >= *t.MaxAmount {
		return false
	}
	return true
}
