// Package server exposes the Strazh status surface over HTTP: the current
// display state, health and readiness probes, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strazhlabs/strazh/internal/config"
	"github.com/strazhlabs/strazh/internal/health"
)

// shutdownGrace bounds how long in-flight requests may run after the server
// is asked to stop.
const shutdownGrace = 10 * time.Second

// Server is the HTTP status server. It owns no pipeline state of its own;
// the status sink and health checkers are injected.
type Server struct {
	cfg  config.ServerConfig
	mux  *http.ServeMux
	http *http.Server
}

// New builds the status server. status becomes GET /status, checkers feed
// /readyz, and /metrics serves the Prometheus registry populated by the
// OpenTelemetry exporter.
func New(cfg config.ServerConfig, status *StatusSink, checkers ...health.Checker) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /status", status)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	return &Server{
		cfg: cfg,
		mux: mux,
		http: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's route mux. For tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled, then shuts down gracefully. A nil error
// is returned on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := s.cfg.TLS; tls != nil {
			slog.Info("status server listening", "addr", s.cfg.ListenAddr, "tls", true)
			err = s.http.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("status server listening", "addr", s.cfg.ListenAddr, "tls", false)
			err = s.http.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
