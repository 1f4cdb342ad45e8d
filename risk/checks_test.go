package risk

import (
	"testing"

	"github.com/rustyeddy/ordergate/bounds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeline() *Pipeline {
	return NewPipeline(DefaultLimits(), DefaultThresholds(), bounds.Default())
}

func tsla(contracts int, strike, price string) Intent {
	return Intent{
		Ticker:     "TSLA",
		Strike:     dec(strike),
		OptionType: "CALL",
		Contracts:  contracts,
		EntryPrice: dec(price),
	}
}

func TestEvaluateScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        Intent
		snap      Snapshot
		wantValid bool
		wantLevel Level
		wantCode  string
		wantCheck string
	}{
		{
			name:      "valid trade",
			in:        tsla(5, "340", "2.50"),
			wantValid: true,
			wantLevel: LevelLow,
			wantCheck: "contract_quantity",
		},
		{
			name:      "too expensive",
			in:        tsla(5, "340", "25.00"),
			wantLevel: LevelCritical,
			wantCode:  CodePositionExposure,
			wantCheck: "position_exposure",
		},
		{
			name:      "strike too high",
			in:        tsla(5, "500", "2.50"),
			wantLevel: LevelHigh,
			wantCode:  CodeStrikeBounds,
			wantCheck: "strike_bounds",
		},
		{
			name:      "too many contracts",
			in:        tsla(10, "340", "2.50"),
			wantLevel: LevelHigh,
			wantCode:  CodeContractQuantity,
			wantCheck: "contract_quantity",
		},
		{
			name:      "zero contracts",
			in:        tsla(0, "340", "2.50"),
			wantLevel: LevelHigh,
			wantCode:  CodeContractQuantity,
			wantCheck: "contract_quantity",
		},
		{
			name:      "price out of range",
			in:        tsla(1, "340", "9.00"),
			wantLevel: LevelMedium,
			wantCode:  CodePriceBounds,
			wantCheck: "price_bounds",
		},
		{
			name: "unknown ticker uses global bounds",
			in: Intent{
				Ticker: "UNKNOWN", Strike: dec("100"), OptionType: "CALL",
				Contracts: 5, EntryPrice: dec("5.00"),
			},
			wantValid: true,
			wantLevel: LevelLow,
			wantCheck: "contract_quantity",
		},
		{
			name:      "session positions exhausted",
			in:        tsla(1, "340", "2.50"),
			snap:      Snapshot{OpenPositions: 6},
			wantLevel: LevelCritical,
			wantCode:  CodeSessionPositions,
			wantCheck: "session_limits",
		},
		{
			name:      "session executions exhausted",
			in:        tsla(1, "340", "2.50"),
			snap:      Snapshot{Executions: 50},
			wantLevel: LevelCritical,
			wantCode:  CodeSessionExecutions,
			wantCheck: "session_limits",
		},
		{
			name:      "portfolio exceeded",
			in:        tsla(5, "340", "2.50"),
			snap:      Snapshot{OpenPositions: 5, OpenExposure: dec("14000")},
			wantLevel: LevelCritical,
			wantCode:  CodePortfolioExposure,
			wantCheck: "portfolio_exposure",
		},
	}

	p := newPipeline()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := p.Evaluate(tt.in, tt.snap)
			assert.Equal(t, tt.wantValid, got.Valid, got.Reason)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantCheck, got.Check)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestEvaluateReasons(t *testing.T) {
	t.Parallel()

	p := newPipeline()

	got := p.Evaluate(tsla(5, "340", "25.00"), Snapshot{})
	assert.Equal(t, "Position too large: $12,500 > $2,500", got.Reason)

	got = p.Evaluate(tsla(5, "500", "2.50"), Snapshot{})
	assert.Equal(t, "Strike 500 outside bounds [200-400] for TSLA", got.Reason)

	got = p.Evaluate(tsla(1, "340", "2.50"), Snapshot{OpenPositions: 6})
	assert.Equal(t, "Session limit reached: 6/6 positions", got.Reason)
}

func TestEvaluateStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	// Price 1.20 would warn in the price check; the strike failure must stop
	// the pipeline before that check runs.
	got := newPipeline().Evaluate(tsla(2, "500", "1.20"), Snapshot{})
	require.False(t, got.Valid)
	assert.Equal(t, "strike_bounds", got.Check)
	assert.Empty(t, got.Warnings)
}

func TestEvaluateAccumulatesWarnings(t *testing.T) {
	t.Parallel()

	// 5 x 4.50 = 2250 (> 80% of 2500); portfolio 10250 + 2250 = 12500 (> 80%
	// of 15000); strike 210 in the outer 20%; price 4.50 is mid-range; five of
	// six positions and 40 of 50 executions are both at the 80% mark.
	snap := Snapshot{OpenPositions: 5, OpenExposure: dec("10250"), Executions: 40}
	got := newPipeline().Evaluate(tsla(5, "210", "4.50"), snap)

	require.True(t, got.Valid, got.Reason)
	assert.Equal(t, LevelLow, got.Level)
	assert.Equal(t, []string{
		"Approaching position limit: 5/6",
		"Approaching execution limit: 40/50",
		"Large position: $2,250",
		"High portfolio exposure: $12,500",
		"Strike 210 near bounds for TSLA",
	}, got.Warnings)
}

func TestEvaluateCarriesWarningsIntoFailure(t *testing.T) {
	t.Parallel()

	got := newPipeline().Evaluate(tsla(5, "340", "4.80"), Snapshot{Executions: 45})
	require.True(t, got.Valid)

	got = newPipeline().Evaluate(tsla(9, "340", "2.50"), Snapshot{Executions: 45})
	require.False(t, got.Valid)
	assert.Equal(t, CodeContractQuantity, got.Code)
	assert.Contains(t, got.Warnings, "Approaching execution limit: 45/50")
}

func TestCustomThresholds(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	th.PriceWarnBand = 0
	th.StrikeWarnBand = 0
	th.ExposureWarn = 1
	th.LimitWarn = 1

	p := NewPipeline(DefaultLimits(), th, bounds.Default())
	got := p.Evaluate(tsla(5, "210", "1.10"), Snapshot{})
	require.True(t, got.Valid)
	assert.Empty(t, got.Warnings)
}

func TestChecksOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"session_limits",
		"position_exposure",
		"portfolio_exposure",
		"strike_bounds",
		"price_bounds",
		"contract_quantity",
	}, newPipeline().Checks())
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "LOW", LevelLow.String())
	assert.Equal(t, "MEDIUM", LevelMedium.String())
	assert.Equal(t, "HIGH", LevelHigh.String())
	assert.Equal(t, "CRITICAL", LevelCritical.String())

	b, err := LevelCritical.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", string(b))
}

func TestUSD(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$0", usd(dec("0")))
	assert.Equal(t, "$950", usd(dec("950")))
	assert.Equal(t, "$12,500", usd(dec("12500")))
	assert.Equal(t, "$1,234,568", usd(dec("1234567.8")))
	assert.Equal(t, "-$2,500", usd(dec("-2500")))
}
