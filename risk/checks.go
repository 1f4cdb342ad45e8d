package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/ordergate/bounds"
	"github.com/shopspring/decimal"
)

// Level grades a failed check. Successful evaluations are always LevelLow.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	case LevelCritical:
		return "CRITICAL"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Rule codes reported in Result.Code.
const (
	CodeSessionPositions  = "SESSION_POSITION_LIMIT"
	CodeSessionExecutions = "SESSION_EXECUTION_LIMIT"
	CodePositionExposure  = "POSITION_EXPOSURE"
	CodePortfolioExposure = "PORTFOLIO_EXPOSURE"
	CodeStrikeBounds      = "STRIKE_BOUNDS"
	CodePriceBounds       = "PRICE_BOUNDS"
	CodeContractQuantity  = "CONTRACT_QUANTITY"
)

type verdict struct {
	ok       bool
	level    Level
	code     string
	reason   string
	warnings []string
}

func pass(warnings ...string) verdict {
	return verdict{ok: true, level: LevelLow, warnings: warnings}
}

func fail(level Level, code, format string, args ...any) verdict {
	return verdict{level: level, code: code, reason: fmt.Sprintf(format, args...)}
}

type check struct {
	name string
	run  func(*Pipeline, Intent, Snapshot) verdict
}

// The order is fixed: session, position exposure, portfolio exposure,
// strike, price, quantity.
var pipelineChecks = []check{
	{"session_limits", (*Pipeline).checkSessionLimits},
	{"position_exposure", (*Pipeline).checkPositionExposure},
	{"portfolio_exposure", (*Pipeline).checkPortfolioExposure},
	{"strike_bounds", (*Pipeline).checkStrikeBounds},
	{"price_bounds", (*Pipeline).checkPriceBounds},
	{"contract_quantity", (*Pipeline).checkContractQuantity},
}

// Pipeline runs the BUY_TO_OPEN checks. It holds no mutable state and is
// safe for concurrent use.
type Pipeline struct {
	limits     Limits
	thresholds Thresholds
	catalog    *bounds.Catalog
}

func NewPipeline(l Limits, th Thresholds, c *bounds.Catalog) *Pipeline {
	if c == nil {
		c = bounds.Default()
	}
	return &Pipeline{limits: l, thresholds: th, catalog: c}
}

func (p *Pipeline) Limits() Limits {
	return p.limits
}

func (p *Pipeline) Catalog() *bounds.Catalog {
	return p.catalog
}

// Checks lists the check names in execution order.
func (p *Pipeline) Checks() []string {
	out := make([]string, len(pipelineChecks))
	for i, c := range pipelineChecks {
		out[i] = c.name
	}
	return out
}

// Evaluate runs every check in order and stops at the first failure.
// Warnings from passed checks accumulate; a failure carries the warnings
// gathered before it.
func (p *Pipeline) Evaluate(in Intent, snap Snapshot) Result {
	start := time.Now()
	var warnings []string

	for _, c := range pipelineChecks {
		v := c.run(p, in, snap)
		warnings = append(warnings, v.warnings...)
		if !v.ok {
			return Result{
				Valid:    false,
				Reason:   v.reason,
				Level:    v.level,
				Code:     v.code,
				Check:    c.name,
				Warnings: warnings,
				Elapsed:  time.Since(start),
			}
		}
	}

	return Result{
		Valid:    true,
		Reason:   "All risk checks passed",
		Level:    LevelLow,
		Check:    pipelineChecks[len(pipelineChecks)-1].name,
		Warnings: warnings,
		Elapsed:  time.Since(start),
	}
}

func (p *Pipeline) checkSessionLimits(_ Intent, s Snapshot) verdict {
	l := p.limits
	if s.OpenPositions >= l.MaxNewPositions {
		return fail(LevelCritical, CodeSessionPositions,
			"Session limit reached: %d/%d positions", s.OpenPositions, l.MaxNewPositions)
	}
	if s.Executions >= l.MaxTotalExecutions {
		return fail(LevelCritical, CodeSessionExecutions,
			"Execution limit reached: %d/%d trades", s.Executions, l.MaxTotalExecutions)
	}

	var w []string
	if atLeastFraction(s.OpenPositions, l.MaxNewPositions, p.thresholds.LimitWarn) {
		w = append(w, fmt.Sprintf("Approaching position limit: %d/%d", s.OpenPositions, l.MaxNewPositions))
	}
	if atLeastFraction(s.Executions, l.MaxTotalExecutions, p.thresholds.LimitWarn) {
		w = append(w, fmt.Sprintf("Approaching execution limit: %d/%d", s.Executions, l.MaxTotalExecutions))
	}
	return pass(w...)
}

func (p *Pipeline) checkPositionExposure(in Intent, _ Snapshot) verdict {
	value := PositionValue(in.Contracts, in.EntryPrice)
	limit := p.limits.MaxPositionExposure
	if value.GreaterThan(limit) {
		return fail(LevelCritical, CodePositionExposure,
			"Position too large: %s > %s", usd(value), usd(limit))
	}
	if aboveFraction(value, limit, p.thresholds.ExposureWarn) {
		return pass(fmt.Sprintf("Large position: %s", usd(value)))
	}
	return pass()
}

func (p *Pipeline) checkPortfolioExposure(in Intent, s Snapshot) verdict {
	total := s.OpenExposure.Add(PositionValue(in.Contracts, in.EntryPrice))
	limit := p.limits.MaxPortfolioExposure
	if total.GreaterThan(limit) {
		return fail(LevelCritical, CodePortfolioExposure,
			"Portfolio limit exceeded: %s > %s", usd(total), usd(limit))
	}
	if aboveFraction(total, limit, p.thresholds.ExposureWarn) {
		return pass(fmt.Sprintf("High portfolio exposure: %s", usd(total)))
	}
	return pass()
}

func (p *Pipeline) checkStrikeBounds(in Intent, _ Snapshot) verdict {
	e, _ := p.catalog.Lookup(in.Ticker)
	if !e.Strike.Contains(in.Strike) {
		return fail(LevelHigh, CodeStrikeBounds,
			"Strike %s outside bounds %s for %s", in.Strike, e.Strike, in.Ticker)
	}
	if e.Strike.NearEdge(in.Strike, p.thresholds.StrikeWarnBand) {
		return pass(fmt.Sprintf("Strike %s near bounds for %s", in.Strike, in.Ticker))
	}
	return pass()
}

// Price anomalies grade MEDIUM: less severe than size anomalies.
func (p *Pipeline) checkPriceBounds(in Intent, _ Snapshot) verdict {
	e, _ := p.catalog.Lookup(in.Ticker)
	if !e.Price.Contains(in.EntryPrice) {
		return fail(LevelMedium, CodePriceBounds,
			"Price $%s outside typical range [$%s-$%s] for %s",
			in.EntryPrice.StringFixed(2), e.Price.Min.StringFixed(2), e.Price.Max.StringFixed(2), in.Ticker)
	}
	if e.Price.NearEdge(in.EntryPrice, p.thresholds.PriceWarnBand) {
		return pass(fmt.Sprintf("Price $%s near edge of typical range for %s", in.EntryPrice.StringFixed(2), in.Ticker))
	}
	return pass()
}

func (p *Pipeline) checkContractQuantity(in Intent, _ Snapshot) verdict {
	if in.Contracts > p.limits.MaxContractsPerPosition {
		return fail(LevelHigh, CodeContractQuantity,
			"Too many contracts: %d > %d", in.Contracts, p.limits.MaxContractsPerPosition)
	}
	if in.Contracts <= 0 {
		return fail(LevelHigh, CodeContractQuantity, "Invalid contract quantity: %d", in.Contracts)
	}
	return pass()
}

// usd renders whole dollars with thousands separators: $12,500.
func usd(v decimal.Decimal) string {
	s := v.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
