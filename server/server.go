// Package server exposes the gate over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/ordergate/gate"
	"github.com/rustyeddy/ordergate/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Addr        string
	CORSOrigins []string
	Version     string
}

type Server struct {
	gate     *gate.Gate
	sessions *session.Manager
	log      logrus.FieldLogger
	version  string

	httpServer *http.Server
}

// New registers the routes and wraps them in recovery, request logging and
// CORS middleware. A nil gatherer serves the default prometheus registry.
func New(cfg Config, g *gate.Gate, sessions *session.Manager, log logrus.FieldLogger, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		gate:     g,
		sessions: sessions,
		log:      log,
		version:  cfg.Version,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.health)

	mux.HandleFunc("POST /api/validate_position", s.validatePosition)
	mux.HandleFunc("POST /api/open_position", s.openPosition)
	mux.HandleFunc("POST /api/close_position", s.closePosition)
	mux.HandleFunc("POST /api/add_contracts", s.addContracts)
	mux.HandleFunc("POST /api/orders", s.submitOrder)

	mux.HandleFunc("GET /api/get_positions", s.getPositions)
	mux.HandleFunc("GET /api/session_summary", s.sessionSummary)
	mux.HandleFunc("GET /api/risk_summary", s.riskSummary)

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var h http.Handler = mux
	h = recoverer(log)(h)
	h = logging(log)(h)
	h = cors(cfg.CORSOrigins)(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.WithField("addr", s.httpServer.Addr).Info("server: starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// sessionFor honors an explicit ?session_id= and otherwise uses the current
// session.
func (s *Server) sessionFor(r *http.Request) session.Session {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return session.New(id, time.Time{})
	}
	return s.sessions.Current()
}
