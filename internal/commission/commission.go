package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/referral"
)

var hundred = decimal.NewFromInt(100)

type Request struct {
	Amount      decimal.Decimal
	SelfPercent decimal.Decimal
}

type Shares struct {
	Self     decimal.Decimal `json:"self"`
	Direct   decimal.Decimal `json:"direct"`
	Indirect decimal.Decimal `json:"indirect"`
	Platform decimal.Decimal `json:"platform"`
}

func (s Shares) Total() decimal.Decimal {
	return s.Self.Add(s.Direct).Add(s.Indirect).Add(s.Platform)
}

// Calculator splits a claimed amount between the submitter, the referral
// chain and the platform. Shares are truncated to Places decimal places and
// the platform takes the exact remainder, so the four always sum to the
// amount.
type Calculator struct {
	Places int32
}

func NewCalculator(places int32) Calculator {
	return Calculator{Places: places}
}

func (c Calculator) Compute(req Request, chain referral.Chain) (Shares, error) {
	if !req.Amount.IsPositive() {
		return Shares{}, apperr.Invalid("amount must be positive, got %s", req.Amount)
	}

	self, err := c.share(req.Amount, req.SelfPercent, "self")
	if err != nil {
		return Shares{}, err
	}

	s := Shares{Self: self, Direct: decimal.Zero, Indirect: decimal.Zero}
	if chain.Direct != nil {
		if s.Direct, err = c.share(req.Amount, chain.Direct.DirectPercent, "direct"); err != nil {
			return Shares{}, err
		}
		if chain.Indirect != nil {
			if s.Indirect, err = c.share(req.Amount, chain.Indirect.IndirectPercent, "indirect"); err != nil {
				return Shares{}, err
			}
		}
	}

	s.Platform = req.Amount.Sub(s.Self).Sub(s.Direct).Sub(s.Indirect)
	if s.Platform.IsNegative() {
		return Shares{}, fmt.Errorf("%w: splits exceed amount %s (self %s, direct %s, indirect %s)",
			apperr.ErrInvalidConfiguration, req.Amount, s.Self, s.Direct, s.Indirect)
	}
	return s, nil
}

func (c Calculator) share(amount, percent decimal.Decimal, role string) (decimal.Decimal, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: %s percentage %s out of range", apperr.ErrInvalidConfiguration, role, percent)
	}
	return amount.Mul(percent).Div(hundred).Truncate(c.Places), nil
}
