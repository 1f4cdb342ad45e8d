package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/ordergate/bounds"
	"github.com/rustyeddy/ordergate/logging"
	"github.com/rustyeddy/ordergate/risk"
	"github.com/rustyeddy/ordergate/session"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete gate configuration
type Config struct {
	Session    SessionConfig    `json:"session" yaml:"session"`
	Limits     LimitsConfig     `json:"limits" yaml:"limits"`
	Thresholds ThresholdsConfig `json:"thresholds" yaml:"thresholds"`
	Bounds     BoundsConfig     `json:"bounds" yaml:"bounds"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        logging.Config   `json:"log" yaml:"log"`
}

// SessionConfig controls how session keys are derived
type SessionConfig struct {
	Timezone string `json:"timezone" yaml:"timezone"`
	Bucket   string `json:"bucket" yaml:"bucket"` // e.g. "30m"; empty or "0" is one session per day
}

// ParseBucket converts the bucket string to a time.Duration
func (s SessionConfig) ParseBucket() (time.Duration, error) {
	if s.Bucket == "" || s.Bucket == "0" {
		return 0, nil
	}
	return time.ParseDuration(s.Bucket)
}

// LimitsConfig holds the per-session caps. Dollar amounts are USD.
type LimitsConfig struct {
	MaxNewPositions         int     `json:"max_new_positions" yaml:"max_new_positions"`
	MaxTotalExecutions      int     `json:"max_total_executions" yaml:"max_total_executions"`
	MaxContractsPerPosition int     `json:"max_contracts_per_position" yaml:"max_contracts_per_position"`
	MaxPositionExposure     float64 `json:"max_position_exposure" yaml:"max_position_exposure"`
	MaxPortfolioExposure    float64 `json:"max_portfolio_exposure" yaml:"max_portfolio_exposure"`
}

// ThresholdsConfig holds the warning fractions
type ThresholdsConfig struct {
	LimitWarn      float64 `json:"limit_warn" yaml:"limit_warn"`
	ExposureWarn   float64 `json:"exposure_warn" yaml:"exposure_warn"`
	StrikeWarnBand float64 `json:"strike_warn_band" yaml:"strike_warn_band"`
	PriceWarnBand  float64 `json:"price_warn_band" yaml:"price_warn_band"`
}

type RangeConfig struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

type BoundsEntryConfig struct {
	Strike RangeConfig `json:"strike" yaml:"strike"`
	Price  RangeConfig `json:"price" yaml:"price"`
}

// BoundsConfig is the strike/premium table. Tickers in a file are merged
// over the built-in table.
type BoundsConfig struct {
	Global  BoundsEntryConfig            `json:"global" yaml:"global"`
	Tickers map[string]BoundsEntryConfig `json:"tickers,omitempty" yaml:"tickers,omitempty"`
}

// LedgerConfig selects the storage backend
type LedgerConfig struct {
	Driver   string `json:"driver" yaml:"driver"` // "memory", "sqlite" or "postgres"
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN      string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	MaxConns int    `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
}

type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// on top of the defaults and validates it.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := fileBase()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = fileBase()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}

	tickers, err := mergeTickers(Default().Bounds.Tickers, cfg.Bounds.Tickers)
	if err != nil {
		return nil, err
	}
	cfg.Bounds.Tickers = tickers
	return cfg, nil
}

// fileBase is Default without the ticker table, so a file's tickers decode
// into an empty map and can be normalized before the merge.
func fileBase() *Config {
	cfg := Default()
	cfg.Bounds.Tickers = nil
	return cfg
}

// mergeTickers overlays file entries on the built-in table. File keys are
// upper-cased so "tsla" replaces the built-in "TSLA" rather than sitting
// beside it.
func mergeTickers(base, file map[string]BoundsEntryConfig) (map[string]BoundsEntryConfig, error) {
	out := make(map[string]BoundsEntryConfig, len(base)+len(file))
	for t, e := range base {
		out[t] = e
	}
	seen := make(map[string]string, len(file))
	for t, e := range file {
		key := strings.ToUpper(strings.TrimSpace(t))
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("bounds.tickers: %q and %q name the same ticker", prev, t)
		}
		seen[key] = t
		out[key] = e
	}
	return out, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	l := c.Limits
	if l.MaxNewPositions <= 0 {
		return fmt.Errorf("limits.max_new_positions must be positive")
	}
	if l.MaxTotalExecutions <= 0 {
		return fmt.Errorf("limits.max_total_executions must be positive")
	}
	if l.MaxContractsPerPosition <= 0 {
		return fmt.Errorf("limits.max_contracts_per_position must be positive")
	}
	if l.MaxPositionExposure <= 0 {
		return fmt.Errorf("limits.max_position_exposure must be positive")
	}
	if l.MaxPortfolioExposure < l.MaxPositionExposure {
		return fmt.Errorf("limits.max_portfolio_exposure must be at least max_position_exposure")
	}

	th := c.Thresholds
	for name, v := range map[string]float64{
		"limit_warn":       th.LimitWarn,
		"exposure_warn":    th.ExposureWarn,
		"strike_warn_band": th.StrikeWarnBand,
		"price_warn_band":  th.PriceWarnBand,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("thresholds.%s must be between 0 and 1", name)
		}
	}

	if _, err := c.Catalog(); err != nil {
		return err
	}
	if _, err := c.SessionResolver(); err != nil {
		return err
	}

	switch c.Ledger.Driver {
	case "memory":
	case "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path required for sqlite driver")
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn required for postgres driver")
		}
	default:
		return fmt.Errorf("ledger.driver must be 'memory', 'sqlite' or 'postgres'")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := logging.NewWithWriter(c.Log, io.Discard); err != nil {
		return err
	}
	return nil
}

// RiskLimits converts the limits to the risk package's decimal form.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MaxNewPositions:         c.Limits.MaxNewPositions,
		MaxTotalExecutions:      c.Limits.MaxTotalExecutions,
		MaxContractsPerPosition: c.Limits.MaxContractsPerPosition,
		MaxPositionExposure:     decimal.NewFromFloat(c.Limits.MaxPositionExposure),
		MaxPortfolioExposure:    decimal.NewFromFloat(c.Limits.MaxPortfolioExposure),
	}
}

func (c *Config) RiskThresholds() risk.Thresholds {
	return risk.Thresholds{
		LimitWarn:      c.Thresholds.LimitWarn,
		ExposureWarn:   c.Thresholds.ExposureWarn,
		StrikeWarnBand: c.Thresholds.StrikeWarnBand,
		PriceWarnBand:  c.Thresholds.PriceWarnBand,
	}
}

// Catalog builds and validates the bounds table.
func (c *Config) Catalog() (*bounds.Catalog, error) {
	tickers := make(map[string]bounds.Entry, len(c.Bounds.Tickers))
	for t, e := range c.Bounds.Tickers {
		tickers[t] = e.entry()
	}
	return bounds.NewCatalog(c.Bounds.Global.entry(), tickers)
}

func (c *Config) SessionResolver() (*session.Resolver, error) {
	bucket, err := c.Session.ParseBucket()
	if err != nil {
		return nil, fmt.Errorf("session.bucket: %w", err)
	}
	return session.NewResolver(c.Session.Timezone, bucket)
}

func (e BoundsEntryConfig) entry() bounds.Entry {
	return bounds.Entry{
		Strike: bounds.NewRange(e.Strike.Min, e.Strike.Max),
		Price:  bounds.NewRange(e.Price.Min, e.Price.Max),
	}
}

func entryConfig(e bounds.Entry) BoundsEntryConfig {
	f := func(d decimal.Decimal) float64 {
		v, _ := d.Float64()
		return v
	}
	return BoundsEntryConfig{
		Strike: RangeConfig{Min: f(e.Strike.Min), Max: f(e.Strike.Max)},
		Price:  RangeConfig{Min: f(e.Price.Min), Max: f(e.Price.Max)},
	}
}

// Default returns the stock limits, thresholds and bounds table with an
// in-memory ledger.
func Default() *Config {
	tickers := make(map[string]BoundsEntryConfig, len(bounds.DefaultTickers))
	for t, e := range bounds.DefaultTickers {
		tickers[t] = entryConfig(e)
	}

	l := risk.DefaultLimits()
	posCap, _ := l.MaxPositionExposure.Float64()
	portCap, _ := l.MaxPortfolioExposure.Float64()
	th := risk.DefaultThresholds()

	return &Config{
		Session: SessionConfig{
			Timezone: "America/New_York",
		},
		Limits: LimitsConfig{
			MaxNewPositions:         l.MaxNewPositions,
			MaxTotalExecutions:      l.MaxTotalExecutions,
			MaxContractsPerPosition: l.MaxContractsPerPosition,
			MaxPositionExposure:     posCap,
			MaxPortfolioExposure:    portCap,
		},
		Thresholds: ThresholdsConfig{
			LimitWarn:      th.LimitWarn,
			ExposureWarn:   th.ExposureWarn,
			StrikeWarnBand: th.StrikeWarnBand,
			PriceWarnBand:  th.PriceWarnBand,
		},
		Bounds: BoundsConfig{
			Global:  entryConfig(bounds.DefaultGlobal),
			Tickers: tickers,
		},
		Ledger: LedgerConfig{
			Driver: "memory",
		},
		Server: ServerConfig{
			Addr:        ":5001",
			CORSOrigins: []string{"*"},
		},
		Log: logging.DefaultConfig(),
	}
}
