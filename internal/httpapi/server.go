package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/fiberplan/internal/config"
	"github.com/Sumatoshi-tech/fiberplan/internal/observability"
)

// Server timeouts independent of the per-request handler timeout.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownGrace     = 15 * time.Second
)

// Server is the HTTP front of the service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer assembles the router, the middleware chain, and the listener
// configuration. The Prometheus registry backs GET /metrics.
func NewServer(
	cfg *config.Config,
	handlers *Handlers,
	registry *prometheus.Registry,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Server {
	router := mux.NewRouter()

	// Registered on the router so spans are named by route template.
	router.Use(observability.HTTPMiddleware(tracer))

	router.HandleFunc("/health", handlers.health).Methods(http.MethodGet)
	router.HandleFunc("/catalog/summary", handlers.catalogSummary).Methods(http.MethodGet)
	router.HandleFunc("/catalog/districts", handlers.catalogDistricts).Methods(http.MethodGet)
	router.HandleFunc("/catalog/franchises", handlers.catalogFranchises).Methods(http.MethodGet)
	router.HandleFunc("/routing/compute", handlers.computeRoute).Methods(http.MethodPost)
	router.HandleFunc("/upload-batch", handlers.uploadBatch).Methods(http.MethodPost)
	router.HandleFunc("/job-status/{job_id}", handlers.jobStatus).Methods(http.MethodGet)
	router.HandleFunc("/job-result/{job_id}", handlers.jobResult).Methods(http.MethodGet)
	router.HandleFunc("/jobs/metrics", handlers.jobsMetrics).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	handler := buildChain(cfg, router, logger)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       time.Duration(cfg.RequestTimeoutSec) * time.Second,
			WriteTimeout:      2 * time.Duration(cfg.RequestTimeoutSec) * time.Second,
			IdleTimeout:       idleTimeout,
		},
		logger: logger,
	}
}

// buildChain wraps the router with the middleware stack, outermost first:
// request ID, per-request timeout, CORS, payload cap, rate limit. Tracing
// runs inside the router itself, keyed by the matched route.
func buildChain(cfg *config.Config, router http.Handler, logger *slog.Logger) http.Handler {
	limiter := newRateLimiter(
		time.Duration(cfg.RateLimitWindowSec)*time.Second,
		cfg.RateLimitRequestsPerWindow,
		logger,
	)

	handler := limiter.middleware(router)
	handler = payloadLimit(cfg.MaxRequestBodyBytes, logger, handler)
	handler = corsHandler(cfg).Handler(handler)
	handler = timeout(time.Duration(cfg.RequestTimeoutSec)*time.Second, logger, handler)
	handler = requestContext(logger, handler)

	return handler
}

func corsHandler(cfg *config.Config) *cors.Cors {
	var origins []string

	for _, origin := range strings.Split(cfg.CORSAllowOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
}

// Handler returns the assembled middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests within the grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	err := s.httpServer.Shutdown(deadlineCtx)
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}
