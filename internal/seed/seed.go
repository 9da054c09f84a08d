package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/draftworks/meridian/internal/commission/domain"
	commissionservice "github.com/draftworks/meridian/internal/commission/service"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EnsureDefaultCommissionTiers seeds the starter commission schedule so a
// fresh install can price sales immediately. A database that already has any
// tier is left alone; operators manage the schedule from there.
func EnsureDefaultCommissionTiers(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&commissiondomain.CommissionTier{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		tiers := defaultTiers(node)
		if err := commissionservice.ValidateTiers(tiers); err != nil {
			return err
		}
		return tx.Create(&tiers).Error
	})
}

func defaultTiers(node *snowflake.Node) []commissiondomain.CommissionTier {
	now := time.Now().UTC()
	tenTh := int64(100_00 * 100)

	tier := func(revenueType commissiondomain.RevenueType, minAmount int64, maxAmount *int64, rate string) commissiondomain.CommissionTier {
		return commissiondomain.CommissionTier{
			ID:          node.Generate(),
			RevenueType: revenueType,
			MinAmount:   minAmount,
			MaxAmount:   maxAmount,
			Rate:        decimal.RequireFromString(rate),
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	return []commissiondomain.CommissionTier{
		tier(commissiondomain.RevenueTypeDesignSale, 0, &tenTh, "10"),
		tier(commissiondomain.RevenueTypeDesignSale, tenTh, nil, "5"),
		tier(commissiondomain.RevenueTypeContractReferral, 0, nil, "5"),
	}
}
