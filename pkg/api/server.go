// Package api exposes the coordinator over HTTP. Errors follow RFC 7807
// problem details. Authorization failures map to 403, integrity conflicts
// to 409, missing state to 404.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shieldwallet/shieldwallet/pkg/coordinator"
)

// Metrics receives lifecycle counter increments from the handlers.
// observability.Provider satisfies it; the default is a no-op.
type Metrics interface {
	RecordProposal(ctx context.Context, attrs ...attribute.KeyValue)
	RecordApproval(ctx context.Context, attrs ...attribute.KeyValue)
	RecordExecution(ctx context.Context, attrs ...attribute.KeyValue)
	RecordRejection(ctx context.Context, reason string, attrs ...attribute.KeyValue)
}

type noopMetrics struct{}

func (noopMetrics) RecordProposal(context.Context, ...attribute.KeyValue)          {}
func (noopMetrics) RecordApproval(context.Context, ...attribute.KeyValue)          {}
func (noopMetrics) RecordExecution(context.Context, ...attribute.KeyValue)         {}
func (noopMetrics) RecordRejection(context.Context, string, ...attribute.KeyValue) {}

// Server serves the coordinator API.
type Server struct {
	service    *coordinator.Service
	logger     *slog.Logger
	limiter    *RateLimiter
	metrics    Metrics
	middleware []func(http.Handler) http.Handler
	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger injects a structured logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit enables per-client rate limiting.
func WithRateLimit(rps, burst int) ServerOption {
	return func(s *Server) { s.limiter = NewRateLimiter(rps, burst) }
}

// WithMetrics injects the lifecycle counters.
func WithMetrics(m Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithMiddleware appends middleware applied after request id and logging.
// The auth layer hooks in here.
func WithMiddleware(mw func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.middleware = append(s.middleware, mw) }
}

// NewServer wires the HTTP surface over a coordinator service.
func NewServer(service *coordinator.Service, opts ...ServerOption) *Server {
	s := &Server{
		service: service,
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the handler with the full middleware chain applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/wallets", s.handleRegisterWallet)
	mux.HandleFunc("GET /api/v1/wallets", s.handleListWallets)

	mux.HandleFunc("POST /api/v1/wallets/{wallet}/executions", s.handleOpenPending)
	mux.HandleFunc("GET /api/v1/wallets/{wallet}/executions", s.handleListPending)
	mux.HandleFunc("GET /api/v1/wallets/{wallet}/executions/{id}", s.handleGetRecord)
	mux.HandleFunc("POST /api/v1/wallets/{wallet}/executions/{id}/approvals", s.handleSubmitApproval)
	mux.HandleFunc("POST /api/v1/wallets/{wallet}/executions/{id}/status", s.handleMarkStatus)

	var handler http.Handler = mux
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

// ListenAndServe starts the server on the given port and blocks until the
// context is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("coordinator api listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("shutting down coordinator api")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
