package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load builds the runtime configuration: defaults, then the file at path
// (skipped when path is empty), then a .env file if one exists, then
// ORDERGATE_* environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overwrites fields whose ORDERGATE_* variable is set.
// A numeric value that does not parse is an error rather than a silent
// fall back to the default cap.
func applyEnvOverrides(cfg *Config) error {
	setStr(&cfg.Session.Timezone, "ORDERGATE_SESSION_TIMEZONE")
	setStr(&cfg.Session.Bucket, "ORDERGATE_SESSION_BUCKET")

	errs := []error{
		setInt(&cfg.Limits.MaxNewPositions, "ORDERGATE_LIMITS_MAX_NEW_POSITIONS"),
		setInt(&cfg.Limits.MaxTotalExecutions, "ORDERGATE_LIMITS_MAX_TOTAL_EXECUTIONS"),
		setInt(&cfg.Limits.MaxContractsPerPosition, "ORDERGATE_LIMITS_MAX_CONTRACTS_PER_POSITION"),
		setFloat64(&cfg.Limits.MaxPositionExposure, "ORDERGATE_LIMITS_MAX_POSITION_EXPOSURE"),
		setFloat64(&cfg.Limits.MaxPortfolioExposure, "ORDERGATE_LIMITS_MAX_PORTFOLIO_EXPOSURE"),

		setFloat64(&cfg.Thresholds.LimitWarn, "ORDERGATE_THRESHOLDS_LIMIT_WARN"),
		setFloat64(&cfg.Thresholds.ExposureWarn, "ORDERGATE_THRESHOLDS_EXPOSURE_WARN"),
		setFloat64(&cfg.Thresholds.StrikeWarnBand, "ORDERGATE_THRESHOLDS_STRIKE_WARN_BAND"),
		setFloat64(&cfg.Thresholds.PriceWarnBand, "ORDERGATE_THRESHOLDS_PRICE_WARN_BAND"),

		setInt(&cfg.Ledger.MaxConns, "ORDERGATE_LEDGER_MAX_CONNS"),
	}

	setStr(&cfg.Ledger.Driver, "ORDERGATE_LEDGER_DRIVER")
	setStr(&cfg.Ledger.Path, "ORDERGATE_LEDGER_PATH")
	setStr(&cfg.Ledger.DSN, "ORDERGATE_LEDGER_DSN")

	setStr(&cfg.Server.Addr, "ORDERGATE_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "ORDERGATE_SERVER_CORS_ORIGINS")

	setStr(&cfg.Log.Level, "ORDERGATE_LOG_LEVEL")
	setStr(&cfg.Log.Format, "ORDERGATE_LOG_FORMAT")
	setStr(&cfg.Log.File, "ORDERGATE_LOG_FILE")

	return errors.Join(errs...)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func setFloat64(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %q is not a number", key, v)
	}
	*dst = f
	return nil
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
