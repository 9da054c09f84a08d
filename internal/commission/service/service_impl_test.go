package service

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/draftworks/meridian/internal/commission/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tier(id int64, revenueType commissiondomain.RevenueType, minAmount int64, maxAmount *int64, rate string) commissiondomain.CommissionTier {
	return commissiondomain.CommissionTier{
		ID:          snowflake.ID(id),
		RevenueType: revenueType,
		MinAmount:   minAmount,
		MaxAmount:   maxAmount,
		Rate:        decimal.RequireFromString(rate),
		Active:      true,
	}
}

func testTiers() []commissiondomain.CommissionTier {
	upper := int64(10_000_00)
	return []commissiondomain.CommissionTier{
		tier(1, commissiondomain.RevenueTypeDesignSale, 0, &upper, "10"),
		tier(2, commissiondomain.RevenueTypeDesignSale, upper, nil, "5"),
		tier(3, commissiondomain.RevenueTypeContractReferral, 0, nil, "5"),
	}
}

func TestCalculateBandSelection(t *testing.T) {
	tiers := testTiers()

	// 15,000.00 falls in the upper design-sale band: 5% of 15,000.00 = 750.00.
	result, err := Calculate(15_000_00, commissiondomain.RevenueTypeDesignSale, false, tiers)
	require.NoError(t, err)
	assert.True(t, result.Rate.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(750_00), result.Commission)

	// 5,000.00 stays in the first band at 10%.
	result, err = Calculate(5_000_00, commissiondomain.RevenueTypeDesignSale, false, tiers)
	require.NoError(t, err)
	assert.True(t, result.Rate.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(500_00), result.Commission)

	// The band boundary belongs to the upper band.
	result, err = Calculate(10_000_00, commissiondomain.RevenueTypeDesignSale, false, tiers)
	require.NoError(t, err)
	assert.True(t, result.Rate.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(500_00), result.Commission)
}

func TestCalculateFoundingMemberOverride(t *testing.T) {
	tiers := testTiers()

	result, err := Calculate(15_000_00, commissiondomain.RevenueTypeDesignSale, true, tiers)
	require.NoError(t, err)
	assert.True(t, result.Rate.IsZero())
	assert.Equal(t, int64(0), result.Commission)

	// The override applies to design sales only.
	result, err = Calculate(15_000_00, commissiondomain.RevenueTypeContractReferral, true, tiers)
	require.NoError(t, err)
	assert.Equal(t, int64(750_00), result.Commission)
}

func TestCalculateRounding(t *testing.T) {
	tiers := []commissiondomain.CommissionTier{
		tier(1, commissiondomain.RevenueTypeDesignSale, 0, nil, "2.5"),
	}

	// 2.5% of 101 minor units = 2.525, rounds half-up to 3.
	result, err := Calculate(101, commissiondomain.RevenueTypeDesignSale, false, tiers)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Commission)
}

func TestCalculateErrors(t *testing.T) {
	tiers := testTiers()

	_, err := Calculate(0, commissiondomain.RevenueTypeDesignSale, false, tiers)
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidAmount)

	_, err = Calculate(-100, commissiondomain.RevenueTypeDesignSale, false, tiers)
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidAmount)

	_, err = Calculate(100, commissiondomain.RevenueType("subscription"), false, tiers)
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidRevenueType)

	// No band covers the amount: refuse, never guess a rate.
	gap := []commissiondomain.CommissionTier{
		tier(1, commissiondomain.RevenueTypeDesignSale, 1_000_00, nil, "10"),
	}
	_, err = Calculate(500_00, commissiondomain.RevenueTypeDesignSale, false, gap)
	assert.ErrorIs(t, err, commissiondomain.ErrNoCommissionTier)

	_, err = Calculate(100, commissiondomain.RevenueTypeDesignSale, false, nil)
	assert.ErrorIs(t, err, commissiondomain.ErrNoCommissionTier)
}

func TestCalculateIgnoresInactiveTiers(t *testing.T) {
	upper := int64(10_000_00)
	inactive := tier(1, commissiondomain.RevenueTypeDesignSale, 0, &upper, "50")
	inactive.Active = false
	tiers := []commissiondomain.CommissionTier{
		inactive,
		tier(2, commissiondomain.RevenueTypeDesignSale, 0, &upper, "10"),
	}

	result, err := Calculate(5_000_00, commissiondomain.RevenueTypeDesignSale, false, tiers)
	require.NoError(t, err)
	assert.Equal(t, int64(500_00), result.Commission)
}

func TestValidateTiers(t *testing.T) {
	assert.NoError(t, ValidateTiers(testTiers()))

	upper := int64(10_000_00)
	overlapping := []commissiondomain.CommissionTier{
		tier(1, commissiondomain.RevenueTypeDesignSale, 0, &upper, "10"),
		tier(2, commissiondomain.RevenueTypeDesignSale, 5_000_00, nil, "5"),
	}
	assert.ErrorIs(t, ValidateTiers(overlapping), commissiondomain.ErrOverlappingTiers)

	// Same bands across revenue types do not overlap each other.
	mixed := []commissiondomain.CommissionTier{
		tier(1, commissiondomain.RevenueTypeDesignSale, 0, nil, "10"),
		tier(2, commissiondomain.RevenueTypeContractReferral, 0, nil, "5"),
	}
	assert.NoError(t, ValidateTiers(mixed))
}
