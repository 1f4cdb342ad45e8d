package bounds

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestRangeContains(t *testing.T) {
	t.Parallel()

	r := NewRange(200, 400)
	tests := []struct {
		name string
		v    float64
		want bool
	}{
		{"below", 199.99, false},
		{"min", 200, true},
		{"middle", 300, true},
		{"max", 400, true},
		{"above", 500, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, r.Contains(d(tt.v)))
		})
	}
}

func TestRangeNearEdge(t *testing.T) {
	t.Parallel()

	// width 200, 20% band = 40 → quiet zone is [240, 360]
	r := NewRange(200, 400)
	assert.True(t, r.NearEdge(d(210), 0.2))
	assert.True(t, r.NearEdge(d(239.99), 0.2))
	assert.False(t, r.NearEdge(d(240), 0.2))
	assert.False(t, r.NearEdge(d(340), 0.2))
	assert.False(t, r.NearEdge(d(360), 0.2))
	assert.True(t, r.NearEdge(d(361), 0.2))
}

func TestLookupFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	c := Default()

	e, ok := c.Lookup("TSLA")
	require.True(t, ok)
	assert.True(t, e.Strike.Min.Equal(d(200)))
	assert.True(t, e.Price.Max.Equal(d(8)))

	e, ok = c.Lookup("tsla")
	assert.True(t, ok)

	e, ok = c.Lookup("UNKNOWN")
	assert.False(t, ok)
	assert.Equal(t, c.Global(), e)
	assert.True(t, e.Strike.Max.Equal(d(600)))
}

func TestNewCatalogRejectsBadRanges(t *testing.T) {
	t.Parallel()

	_, err := NewCatalog(Entry{Strike: NewRange(10, 5), Price: NewRange(1, 2)}, nil)
	assert.ErrorContains(t, err, "global bounds")

	_, err = NewCatalog(DefaultGlobal, map[string]Entry{
		"XYZ": {Strike: NewRange(10, 20), Price: NewRange(0, 2)},
	})
	assert.ErrorContains(t, err, "bounds for XYZ")
}

func TestNewCatalogRejectsDuplicateTickers(t *testing.T) {
	t.Parallel()

	// Lookups must not depend on map iteration order.
	_, err := NewCatalog(DefaultGlobal, map[string]Entry{
		"TSLA":   {Strike: NewRange(200, 400), Price: NewRange(0.5, 8)},
		" tsla ": {Strike: NewRange(100, 500), Price: NewRange(0.5, 8)},
	})
	assert.ErrorContains(t, err, "bounds for TSLA: ticker listed more than once")

	_, err = NewCatalog(DefaultGlobal, map[string]Entry{
		" ": {Strike: NewRange(100, 500), Price: NewRange(0.5, 8)},
	})
	assert.ErrorContains(t, err, "empty ticker key")
}

func TestNewCatalogCopiesTable(t *testing.T) {
	t.Parallel()

	table := map[string]Entry{"spy": {Strike: NewRange(400, 600), Price: NewRange(0.5, 12)}}
	c, err := NewCatalog(DefaultGlobal, table)
	require.NoError(t, err)

	table["QQQ"] = Entry{Strike: NewRange(1, 2), Price: NewRange(1, 2)}

	assert.Equal(t, []string{"SPY"}, c.Tickers())
}

func TestConcurrentLookups(t *testing.T) {
	t.Parallel()

	c := Default()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, tk := range c.Tickers() {
				_, ok := c.Lookup(tk)
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}
