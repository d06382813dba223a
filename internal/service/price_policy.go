package service

import (
	"fmt"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/shopspring/decimal"
)

// PricePolicy holds the pure price rules of a negotiation. All amounts are
// integer minor units.
type PricePolicy interface {
	ValidateInitialOffer(listedPrice, offeredPrice int64) error
	ValidateCounter(offeredPrice, listedPrice, counterPrice int64) error
	DiscountPercent(listedPrice, offeredPrice int64) int
}

type pricePolicy struct{}

func NewPricePolicy() PricePolicy {
	return &pricePolicy{}
}

func (p *pricePolicy) ValidateInitialOffer(listedPrice, offeredPrice int64) error {
	if offeredPrice <= 0 {
		return fmt.Errorf("offered price %d must be positive: %w", offeredPrice, apperrors.ErrInvalidPrice)
	}
	if offeredPrice >= listedPrice {
		return fmt.Errorf("offered price %d must be below listed price %d: %w", offeredPrice, listedPrice, apperrors.ErrInvalidPrice)
	}
	return nil
}

// ValidateCounter only accepts counters strictly between the standing offer
// and the listed price; anything else is an accept or a no-op.
func (p *pricePolicy) ValidateCounter(offeredPrice, listedPrice, counterPrice int64) error {
	if counterPrice <= offeredPrice {
		return fmt.Errorf("counter price %d must be above offered price %d: %w", counterPrice, offeredPrice, apperrors.ErrInvalidPrice)
	}
	if counterPrice >= listedPrice {
		return fmt.Errorf("counter price %d must be below listed price %d: %w", counterPrice, listedPrice, apperrors.ErrInvalidPrice)
	}
	return nil
}

// DiscountPercent rounds half up; it is for display only.
func (p *pricePolicy) DiscountPercent(listedPrice, offeredPrice int64) int {
	if listedPrice <= 0 {
		return 0
	}
	diff := decimal.NewFromInt(listedPrice - offeredPrice)
	pct := diff.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(listedPrice))
	// decimal rounds half away from zero, which is half up for discounts.
	return int(pct.Round(0).IntPart())
}
