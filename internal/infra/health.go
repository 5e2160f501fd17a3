package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusFunc reports one aspect of daemon health.
type StatusFunc func() bool

// HealthServer exposes /live, /ready and /metrics.
type HealthServer struct {
	server   *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHealthServer builds the HTTP handler. running backs the liveness check
// and enabled backs readiness.
func NewHealthServer(addr string, reg *prometheus.Registry, running, enabled StatusFunc, logger *zap.Logger) *HealthServer {
	health := healthcheck.NewMetricsHandler(reg, "relaunchd")
	health.AddLivenessCheck("session", statusCheck(running, "heartbeat session not running"))
	health.AddReadinessCheck("watchdog", statusCheck(enabled, "watchdog disabled"))

	mux := http.NewServeMux()
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &HealthServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func statusCheck(fn StatusFunc, msg string) healthcheck.Check {
	return func() error {
		if fn == nil || !fn() {
			return errors.New(msg)
		}
		return nil
	}
}

// Handler returns the mux, for tests.
func (h *HealthServer) Handler() http.Handler {
	return h.server.Handler
}

// Start binds the address and serves in the background.
func (h *HealthServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if h.logger != nil {
				h.logger.Error("health server stopped", zap.Error(err))
			}
		}
	}()

	if h.logger != nil {
		h.logger.Info("health server listening", zap.String("addr", ln.Addr().String()))
	}
	return nil
}

// Addr returns the bound address once started.
func (h *HealthServer) Addr() string {
	if h.listener == nil {
		return h.server.Addr
	}
	return h.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.listener == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
