package risk

import (
	"github.com/shopspring/decimal"
)

// Capacity is the largest contract count that could be bought at price
// without tripping the contract cap, the per-position cap or the remaining
// portfolio room. It returns 0 when nothing fits or the price is not
// positive.
func Capacity(l Limits, snap Snapshot, price decimal.Decimal) int {
	if !price.IsPositive() {
		return 0
	}
	perContract := PositionValue(1, price)

	maxByPosition := l.MaxPositionExposure.Div(perContract).Floor().IntPart()

	room := l.MaxPortfolioExposure.Sub(snap.OpenExposure)
	if room.IsNegative() {
		room = decimal.Zero
	}
	maxByPortfolio := room.Div(perContract).Floor().IntPart()

	n := int64(l.MaxContractsPerPosition)
	if maxByPosition < n {
		n = maxByPosition
	}
	if maxByPortfolio < n {
		n = maxByPortfolio
	}
	if n < 0 {
		return 0
	}
	return int(n)
}
