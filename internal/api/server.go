// Package api exposes the status server of the watcher: Prometheus metrics,
// a liveness check, the loop status and pprof.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/controller"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/logger"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/exp/zapslog"
)

// HealthPath is the liveness check.
const HealthPath = "/healthz"

// StatusPath serves the loop status as JSON.
const StatusPath = "/v1/status"

// Options holds the HTTP server settings. Zero durations fall back to the
// net/http defaults.
type Options struct {
	// Addr is the TCP address the server listens on, e.g. ":8080".
	Addr string
	// ReadTimeout is the maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration
	// ReadHeaderTimeout is the amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration
	// MetricsPath is the HTTP path at which Prometheus metrics are served.
	MetricsPath string
}

// NewOptions maps the HTTP settings out of the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Addr:              cfg.HTTP.Addr,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MetricsPath:       cfg.HTTP.MetricsPath,
	}
}

// StatusProvider reports the current loop status.
type StatusProvider interface {
	Status() domain.Status
}

// Deps are the data sources of the server.
type Deps struct {
	Status   StatusProvider
	Gatherer prometheus.Gatherer
}

// NewServer wires up the routes and returns a configured *http.Server. The
// logger in ctx receives the access log and the server errors.
func NewServer(ctx context.Context, deps Deps, opts Options) *http.Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	mux := http.NewServeMux()

	mux.Handle("GET "+opts.MetricsPath, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(zapslog.NewHandler(logger.Get(ctx).Core()), slog.LevelWarn),
	}))
	mux.HandleFunc("GET "+HealthPath, healthHandler(deps.Status))
	mux.HandleFunc("GET "+StatusPath, statusHandler(deps.Status))
	controller.RegisterPprof(mux)

	handler := controller.WithRecover(mux)
	handler = controller.WithLogger(ctx, handler, HealthPath, opts.MetricsPath)

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(zapslog.NewHandler(logger.Get(ctx).Core()), slog.LevelError),
	}
}

func healthHandler(sp StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sp.Status().State == domain.StateStopped {
			controller.WriteJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})

			return
		}

		controller.WriteJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func statusHandler(sp StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		controller.WriteJSON(r.Context(), w, http.StatusOK, sp.Status())
	}
}
