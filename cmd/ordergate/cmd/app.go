package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rustyeddy/ordergate/config"
	"github.com/rustyeddy/ordergate/gate"
	"github.com/rustyeddy/ordergate/ledger"
	"github.com/rustyeddy/ordergate/logging"
	"github.com/rustyeddy/ordergate/metrics"
	"github.com/rustyeddy/ordergate/risk"
	"github.com/rustyeddy/ordergate/session"
	"github.com/sirupsen/logrus"
)

// app is everything a command needs, built from the loaded config.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	logClose io.Closer
	ledger   ledger.Ledger
	gate     *gate.Gate
	sessions *session.Manager
	registry *prometheus.Registry
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, logClose, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		_ = logClose.Close()
		return nil, err
	}
	resolver, err := cfg.SessionResolver()
	if err != nil {
		_ = logClose.Close()
		return nil, err
	}

	l, err := openLedger(ctx, cfg.Ledger, cfg.Limits.MaxContractsPerPosition)
	if err != nil {
		_ = logClose.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(reg)
	sessions := session.NewManager(resolver, session.OnRollover(func(prev, next session.Session) {
		log.WithFields(logrus.Fields{"prev": prev.ID, "next": next.ID}).Info("session rollover")
		m.Forget(prev.ID)
	}))

	pipeline := risk.NewPipeline(cfg.RiskLimits(), cfg.RiskThresholds(), catalog)
	g := gate.New(l, pipeline,
		gate.WithLogger(log),
		gate.WithMetrics(m),
	)

	log.WithFields(logrus.Fields{
		"driver":  cfg.Ledger.Driver,
		"tickers": len(catalog.Tickers()),
	}).Debug("ordergate ready")

	return &app{
		cfg:      cfg,
		log:      log,
		logClose: logClose,
		ledger:   l,
		gate:     g,
		sessions: sessions,
		registry: reg,
	}, nil
}

// session returns the --session override or the current session.
func (a *app) session() session.Session {
	if sessionID != "" {
		return session.New(sessionID, time.Time{})
	}
	return a.sessions.Current()
}

func (a *app) Close() error {
	return errors.Join(a.ledger.Close(), a.logClose.Close())
}

// openLedger builds the configured backend. Every backend enforces the same
// per-position contract cap as the risk pipeline.
func openLedger(ctx context.Context, lc config.LedgerConfig, maxContracts int) (ledger.Ledger, error) {
	opts := []ledger.Option{ledger.WithMaxContracts(maxContracts)}

	switch lc.Driver {
	case "", "memory":
		return ledger.NewMemory(opts...), nil
	case "sqlite":
		l, err := ledger.NewSQLite(lc.Path, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "postgres":
		l, err := ledger.NewPostgres(ctx, lc.DSN, lc.MaxConns, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown ledger driver %q", lc.Driver)
}
