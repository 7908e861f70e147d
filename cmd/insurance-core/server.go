// Command insurance-core serves the TravelGuard conversational
// travel-insurance platform: the tool surface an LLM drives plus the
// plain HTTP API the same operations are available through.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/config"
	"github.com/travelguard/insurance-core/httpapi/handlers"
	"github.com/travelguard/insurance-core/internal/metrics"
	"github.com/travelguard/insurance-core/internal/server"
	"github.com/travelguard/insurance-core/internal/telemetry"
	"github.com/travelguard/insurance-core/toolsurface"
)

// Server owns the process's two listeners (API + metrics) and every
// handler wired in main.go's component graph.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler   *handlers.HealthHandler
	claimsHandler   *handlers.ClaimsHandler
	memoryHandler   *handlers.MemoryHandler
	purchaseHandler *handlers.PurchaseHandler
	searchHandler   *handlers.SearchHandler
	webhookHandler  *handlers.WebhookHandler
	toolHandler     *toolsurface.Handler

	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	wg sync.WaitGroup
}

// NewServer builds a Server around an already-loaded config and the
// component graph assembled by main.go.
func NewServer(
	cfg *config.Config,
	configPath string,
	logger *zap.Logger,
	telemetryProviders *telemetry.Providers,
	claimsHandler *handlers.ClaimsHandler,
	memoryHandler *handlers.MemoryHandler,
	purchaseHandler *handlers.PurchaseHandler,
	searchHandler *handlers.SearchHandler,
	webhookHandler *handlers.WebhookHandler,
	toolHandler *toolsurface.Handler,
) *Server {
	return &Server{
		cfg:             cfg,
		configPath:      configPath,
		logger:          logger,
		telemetry:       telemetryProviders,
		healthHandler:   handlers.NewHealthHandler(logger),
		claimsHandler:   claimsHandler,
		memoryHandler:   memoryHandler,
		purchaseHandler: purchaseHandler,
		searchHandler:   searchHandler,
		webhookHandler:  webhookHandler,
		toolHandler:     toolHandler,
	}
}

// RegisterHealthCheck adds a readiness dependency (database, cache, ...)
// checked by GET /ready.
func (s *Server) RegisterHealthCheck(check handlers.HealthCheck) {
	s.healthHandler.RegisterCheck(check)
}

// Start brings up the metrics collector, the API listener, and the
// companion metrics listener, in that order. Both listeners run
// non-blocking background goroutines; call WaitForShutdown to block.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("insurance_core", s.logger)

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/claims/insights", s.claimsHandler.HandleInsights)

	mux.HandleFunc("POST /api/v1/memory/add", s.memoryHandler.HandleAdd)
	mux.HandleFunc("POST /api/v1/memory/search", s.memoryHandler.HandleSearch)
	mux.HandleFunc("GET /api/v1/memory/{user_id}", s.memoryHandler.HandleAll)
	mux.HandleFunc("DELETE /api/v1/memory/{memory_id}", s.memoryHandler.HandleDelete)

	mux.HandleFunc("POST /api/purchase/initiate", s.purchaseHandler.HandleInitiate)
	mux.HandleFunc("GET /api/purchase/payment/{pi}", s.purchaseHandler.HandleStatus)
	mux.HandleFunc("POST /api/purchase/complete/{pi}", s.purchaseHandler.HandleComplete)
	mux.HandleFunc("POST /api/purchase/cancel/{pi}", s.purchaseHandler.HandleCancel)
	mux.HandleFunc("GET /api/purchase/user/{u}/payments", s.purchaseHandler.HandleByUser)

	mux.HandleFunc("POST /api/v1/structured-policy-search", s.searchHandler.HandleStructuredPolicySearch)
	mux.HandleFunc("POST /api/v1/concept-search", s.searchHandler.HandleConceptSearch)

	mux.HandleFunc("POST /webhook/stripe", s.webhookHandler.HandleStripe)

	if s.toolHandler != nil {
		mux.Handle("/tools/", s.toolHandler)
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics", "/webhook/stripe"}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		SecurityHeaders(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(context.Background(), s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	middlewares = append(middlewares, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))

	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until the API listener receives a shutdown
// signal or error, then runs Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops both listeners and flushes telemetry.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.wg.Wait()

	s.logger.Info("graceful shutdown completed")
}
