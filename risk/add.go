package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Add describes contracts added to a position that already passed the full
// pipeline when it opened.
type Add struct {
	Ticker     string
	Held       int
	Contracts  int
	EntryPrice decimal.Decimal
}

// EvaluateAdd re-checks the limits that can change when a position grows:
// the execution count, both exposure caps and the per-position contract cap.
// Strike and premium were vetted at open and are not re-checked. Checks stop
// at the first failure and warnings accumulate, as in Evaluate.
func (p *Pipeline) EvaluateAdd(a Add, snap Snapshot) Result {
	start := time.Now()
	l := p.limits
	var warnings []string

	done := func(v verdict, check string) Result {
		return Result{
			Valid:    false,
			Reason:   v.reason,
			Level:    v.level,
			Code:     v.code,
			Check:    check,
			Warnings: warnings,
			Elapsed:  time.Since(start),
		}
	}

	if snap.Executions >= l.MaxTotalExecutions {
		return done(fail(LevelCritical, CodeSessionExecutions,
			"Execution limit reached: %d/%d trades", snap.Executions, l.MaxTotalExecutions), "session_limits")
	}
	if atLeastFraction(snap.Executions, l.MaxTotalExecutions, p.thresholds.LimitWarn) {
		warnings = append(warnings, fmt.Sprintf("Approaching execution limit: %d/%d", snap.Executions, l.MaxTotalExecutions))
	}

	total := a.Held + a.Contracts
	value := PositionValue(total, a.EntryPrice)
	if value.GreaterThan(l.MaxPositionExposure) {
		return done(fail(LevelCritical, CodePositionExposure,
			"Position too large: %s > %s", usd(value), usd(l.MaxPositionExposure)), "position_exposure")
	}
	if aboveFraction(value, l.MaxPositionExposure, p.thresholds.ExposureWarn) {
		warnings = append(warnings, fmt.Sprintf("Large position: %s", usd(value)))
	}

	portfolio := snap.OpenExposure.Add(PositionValue(a.Contracts, a.EntryPrice))
	if portfolio.GreaterThan(l.MaxPortfolioExposure) {
		return done(fail(LevelCritical, CodePortfolioExposure,
			"Portfolio limit exceeded: %s > %s", usd(portfolio), usd(l.MaxPortfolioExposure)), "portfolio_exposure")
	}
	if aboveFraction(portfolio, l.MaxPortfolioExposure, p.thresholds.ExposureWarn) {
		warnings = append(warnings, fmt.Sprintf("High portfolio exposure: %s", usd(portfolio)))
	}

	if a.Contracts <= 0 {
		return done(fail(LevelHigh, CodeContractQuantity,
			"Invalid contract quantity: %d", a.Contracts), "contract_quantity")
	}
	if total > l.MaxContractsPerPosition {
		return done(fail(LevelHigh, CodeContractQuantity,
			"Would exceed %d-contract limit (%d + %d = %d)", l.MaxContractsPerPosition, a.Held, a.Contracts, total),
			"contract_quantity")
	}

	return Result{
		Valid:    true,
		Reason:   fmt.Sprintf("Can add %d contracts to %s", a.Contracts, a.Ticker),
		Level:    LevelLow,
		Check:    "contract_quantity",
		Warnings: warnings,
		Elapsed:  time.Since(start),
	}
}
