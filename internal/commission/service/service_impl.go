package service

import (
	"context"
	"sort"
	"strings"

	commissiondomain "github.com/draftworks/meridian/internal/commission/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var oneHundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) commissiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("commission.service"),
	}
}

func (s *Service) Calculate(ctx context.Context, amount int64, revenueType commissiondomain.RevenueType, foundingMember bool) (commissiondomain.Result, error) {
	tiers, err := s.ListTiers(ctx, revenueType)
	if err != nil {
		return commissiondomain.Result{}, err
	}
	return Calculate(amount, revenueType, foundingMember, tiers)
}

func (s *Service) ListTiers(ctx context.Context, revenueType commissiondomain.RevenueType) ([]commissiondomain.CommissionTier, error) {
	if err := validateRevenueType(revenueType); err != nil {
		return nil, err
	}

	var tiers []commissiondomain.CommissionTier
	err := s.db.WithContext(ctx).
		Where("revenue_type = ? AND active = ?", revenueType, true).
		Order("min_amount ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

// Calculate is the pure rate decision over tier data passed in by the caller.
// The commission is amount * rate / 100, rounded half-up to a whole minor
// unit, computed in decimal arithmetic.
func Calculate(amount int64, revenueType commissiondomain.RevenueType, foundingMember bool, tiers []commissiondomain.CommissionTier) (commissiondomain.Result, error) {
	if amount <= 0 {
		return commissiondomain.Result{}, commissiondomain.ErrInvalidAmount
	}
	if err := validateRevenueType(revenueType); err != nil {
		return commissiondomain.Result{}, err
	}

	// Founding-member override takes precedence over the tier table.
	if foundingMember && revenueType == commissiondomain.RevenueTypeDesignSale {
		return commissiondomain.Result{Rate: decimal.Zero, Commission: 0}, nil
	}

	ordered := make([]commissiondomain.CommissionTier, 0, len(tiers))
	for _, tier := range tiers {
		if tier.Active && tier.RevenueType == revenueType {
			ordered = append(ordered, tier)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinAmount < ordered[j].MinAmount
	})

	for _, tier := range ordered {
		if tier.Contains(amount) {
			commission := decimal.NewFromInt(amount).
				Mul(tier.Rate).
				Div(oneHundred).
				Round(0)
			return commissiondomain.Result{
				Rate:       tier.Rate,
				Commission: commission.IntPart(),
			}, nil
		}
	}

	return commissiondomain.Result{}, commissiondomain.ErrNoCommissionTier
}

// ValidateTiers rejects tier sets where two active bands of the same revenue
// type overlap.
func ValidateTiers(tiers []commissiondomain.CommissionTier) error {
	byType := map[commissiondomain.RevenueType][]commissiondomain.CommissionTier{}
	for _, tier := range tiers {
		if !tier.Active {
			continue
		}
		byType[tier.RevenueType] = append(byType[tier.RevenueType], tier)
	}

	for _, group := range byType {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].MinAmount < group[j].MinAmount
		})
		for i := 1; i < len(group); i++ {
			prev := group[i-1]
			if prev.MaxAmount == nil || group[i].MinAmount < *prev.MaxAmount {
				return commissiondomain.ErrOverlappingTiers
			}
		}
	}
	return nil
}

func validateRevenueType(revenueType commissiondomain.RevenueType) error {
	switch commissiondomain.RevenueType(strings.TrimSpace(string(revenueType))) {
	case commissiondomain.RevenueTypeDesignSale, commissiondomain.RevenueTypeContractReferral:
		return nil
	default:
		return commissiondomain.ErrInvalidRevenueType
	}
}
