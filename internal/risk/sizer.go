package risk

import (
	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/shopspring/decimal"
)

// ClassSizing holds the sizing constants of one asset class.
type ClassSizing struct {
	RiskFraction       float64
	StopDistance       float64
	ContractMultiplier float64
	MinLot             float64
}

// CapitalPerLot is the account currency risked per lot at the stop distance.
func (c ClassSizing) CapitalPerLot() float64 { return c.StopDistance * c.ContractMultiplier }

// Sizer converts balance into a lot size. There is no maximum: exposure is
// bounded by the capacity model instead.
type Sizer struct {
	classes   map[domain.AssetClass]ClassSizing
	precision int32
}

// NewSizer returns a sizer rounding to precision decimals.
func NewSizer(classes map[domain.AssetClass]ClassSizing, precision int32) *Sizer {
	return &Sizer{classes: classes, precision: precision}
}

// Size returns max(minLot, round(balance*risk/capitalPerLot, precision)).
func (s *Sizer) Size(class domain.AssetClass, balance float64) float64 {
	c, ok := s.classes[class]
	if !ok {
		return 0
	}
	capital := c.CapitalPerLot()
	if capital <= 0 || balance <= 0 {
		return c.MinLot
	}
	lot := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(c.RiskFraction)).
		Div(decimal.NewFromFloat(capital)).
		Round(s.precision)
	minLot := decimal.NewFromFloat(c.MinLot)
	if lot.LessThan(minLot) {
		lot = minLot
	}
	return lot.InexactFloat64()
}

// Class returns the sizing constants of a class.
func (s *Sizer) Class(class domain.AssetClass) (ClassSizing, bool) {
	c, ok := s.classes[class]
	return c, ok
}

// MarginOK reports whether free margin is at least ratio of balance.
func MarginOK(acct domain.AccountSnapshot, ratio float64) bool {
	return acct.FreeMargin >= acct.Balance*ratio
}

// NormalizePrice rounds a price to the symbol's digits.
func NormalizePrice(price float64, digits int) float64 {
	return decimal.NewFromFloat(price).Round(int32(digits)).InexactFloat64()
}
