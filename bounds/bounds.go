// Package bounds holds the static strike and premium ranges used to flag
// unreasonable orders. A Catalog is immutable once built.
package bounds

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Range is a closed interval [Min, Max].
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// NewRange builds a Range from float endpoints.
func NewRange(min, max float64) Range {
	return Range{Min: decimal.NewFromFloat(min), Max: decimal.NewFromFloat(max)}
}

func (r Range) Contains(v decimal.Decimal) bool {
	return !v.LessThan(r.Min) && !v.GreaterThan(r.Max)
}

func (r Range) Width() decimal.Decimal {
	return r.Max.Sub(r.Min)
}

// NearEdge reports whether v lies within the outer band (a fraction of the
// width) on either side of the range.
func (r Range) NearEdge(v decimal.Decimal, band float64) bool {
	buf := r.Width().Mul(decimal.NewFromFloat(band))
	return v.LessThan(r.Min.Add(buf)) || v.GreaterThan(r.Max.Sub(buf))
}

func (r Range) String() string {
	return fmt.Sprintf("[%s-%s]", r.Min, r.Max)
}

func (r Range) validate() error {
	if !r.Min.IsPositive() {
		return fmt.Errorf("min %s must be positive", r.Min)
	}
	if r.Max.LessThan(r.Min) {
		return fmt.Errorf("max %s below min %s", r.Max, r.Min)
	}
	return nil
}

// Entry is the strike range and typical premium range for one ticker.
type Entry struct {
	Strike Range
	Price  Range
}

func (e Entry) validate() error {
	if err := e.Strike.validate(); err != nil {
		return fmt.Errorf("strike: %w", err)
	}
	if err := e.Price.validate(); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	return nil
}

type Catalog struct {
	global  Entry
	tickers map[string]Entry
}

// NewCatalog validates and copies the given table. Ticker keys are
// upper-cased; two keys naming the same ticker are an error.
func NewCatalog(global Entry, tickers map[string]Entry) (*Catalog, error) {
	if err := global.validate(); err != nil {
		return nil, fmt.Errorf("global bounds: %w", err)
	}
	c := &Catalog{global: global, tickers: make(map[string]Entry, len(tickers))}
	for t, e := range tickers {
		key := strings.ToUpper(strings.TrimSpace(t))
		if key == "" {
			return nil, fmt.Errorf("bounds: empty ticker key")
		}
		if _, dup := c.tickers[key]; dup {
			return nil, fmt.Errorf("bounds for %s: ticker listed more than once", key)
		}
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("bounds for %s: %w", t, err)
		}
		c.tickers[key] = e
	}
	return c, nil
}

// Lookup always returns a usable entry. The bool is true when the ticker
// has its own entry and false when the global fallback was used.
func (c *Catalog) Lookup(ticker string) (Entry, bool) {
	if e, ok := c.tickers[strings.ToUpper(ticker)]; ok {
		return e, true
	}
	return c.global, false
}

func (c *Catalog) Global() Entry {
	return c.global
}

// Tickers returns the symbols with a specific entry, sorted.
func (c *Catalog) Tickers() []string {
	out := make([]string, 0, len(c.tickers))
	for t := range c.tickers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
