package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Limits are the per-session caps. They are read-only after startup.
type Limits struct {
	MaxNewPositions         int             // 6
	MaxTotalExecutions      int             // 50
	MaxContractsPerPosition int             // 5
	MaxPositionExposure     decimal.Decimal // 2500 USD
	MaxPortfolioExposure    decimal.Decimal // 15000 USD
}

func DefaultLimits() Limits {
	return Limits{
		MaxNewPositions:         6,
		MaxTotalExecutions:      50,
		MaxContractsPerPosition: 5,
		MaxPositionExposure:     decimal.NewFromInt(2500),
		MaxPortfolioExposure:    decimal.NewFromInt(15000),
	}
}

// Thresholds control when a passing check still emits a warning.
type Thresholds struct {
	LimitWarn      float64 // fraction of a count limit, 0.80
	ExposureWarn   float64 // fraction of a dollar cap, 0.80
	StrikeWarnBand float64 // outer fraction of the strike range, 0.20
	PriceWarnBand  float64 // outer fraction of the price range, 0.30
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LimitWarn:      0.8,
		ExposureWarn:   0.8,
		StrikeWarnBand: 0.2,
		PriceWarnBand:  0.3,
	}
}

// Intent is a BUY_TO_OPEN order as seen by the pipeline.
type Intent struct {
	Ticker     string
	Strike     decimal.Decimal
	OptionType string
	Contracts  int
	EntryPrice decimal.Decimal
}

// Snapshot is the session state the pipeline reads. It must come from a
// single consistent read of the ledger.
type Snapshot struct {
	OpenPositions int
	OpenContracts int
	OpenExposure  decimal.Decimal
	Executions    int
}

// Result is the pipeline verdict. Level is informational metadata for the
// caller; it does not change control flow.
type Result struct {
	Valid    bool
	Reason   string
	Level    Level
	Code     string // failing rule, empty when valid
	Check    string // check that produced the verdict
	Warnings []string
	Elapsed  time.Duration
}
