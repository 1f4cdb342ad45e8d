package risk

import (
	"github.com/shopspring/decimal"
)

// ContractMultiplier is the number of shares one option contract controls.
var ContractMultiplier = decimal.NewFromInt(100)

// PositionValue is the dollar exposure of contracts bought at price.
func PositionValue(contracts int, price decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(contracts)).Mul(price).Mul(ContractMultiplier)
}

// Utilization returns current as a percentage of max. A non-positive max
// reports 0.
func Utilization(current, max decimal.Decimal) float64 {
	if !max.IsPositive() {
		return 0
	}
	pct, _ := current.Div(max).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// CountUtilization is Utilization for integer limits.
func CountUtilization(current, max int) float64 {
	return Utilization(decimal.NewFromInt(int64(current)), decimal.NewFromInt(int64(max)))
}

func atLeastFraction(current, limit int, frac float64) bool {
	return float64(current) >= float64(limit)*frac
}

func aboveFraction(v, limit decimal.Decimal, frac float64) bool {
	return v.GreaterThan(limit.Mul(decimal.NewFromFloat(frac)))
}
