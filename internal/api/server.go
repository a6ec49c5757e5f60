package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/metrics"
	"github.com/ecg-guardrail-server/internal/middleware"
	"github.com/ecg-guardrail-server/internal/rbac"
	"github.com/ecg-guardrail-server/internal/service"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// AuditLog is the read side of the ledger used by the audit routes
type AuditLog interface {
	Events(ctx context.Context) ([]domain.AuditEvent, error)
	Verify(ctx context.Context) (audit.Report, error)
	Subscribe() (<-chan domain.AuditEvent, func())
}

// Dependencies are the components the routes call into
type Dependencies struct {
	Guardrail *service.GuardrailService
	Imports   *service.ImportService
	Audit     AuditLog
	Metrics   *metrics.Collector
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server

	guardrail *service.GuardrailService
	imports   *service.ImportService
	audit     AuditLog
	metrics   *metrics.Collector
	resolver  *rbac.Resolver
	origins   map[string]bool
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	resolver := rbac.NewResolver(cfg.Auth)
	origins := make(map[string]bool, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		origins[o] = true
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(rbac.Middleware(resolver))
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, func(c *gin.Context) string {
			if token := rbac.TokenFrom(c); token != "" {
				return "token:" + token
			}
			return "ip:" + c.ClientIP()
		})
		router.Use(limiter.Handler())
	}

	server := &Server{
		configManager: configManager,
		logger:        logger,
		router:        router,
		guardrail:     deps.Guardrail,
		imports:       deps.Imports,
		audit:         deps.Audit,
		metrics:       deps.Metrics,
		resolver:      resolver,
		origins:       origins,
	}

	// Setup routes
	server.setupRoutes(cfg.Server.RequestTimeout)

	return server
}

// Handler returns the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(requestTimeout time.Duration) {
	all := rbac.Require(domain.RoleAdmin, domain.RoleClinician, domain.RoleObserver)
	writers := rbac.Require(domain.RoleAdmin, domain.RoleClinician)
	admin := rbac.Require(domain.RoleAdmin)
	timeout := middleware.RequestTimeout(requestTimeout)

	s.router.GET("/healthz", s.handleHealth)

	s.router.POST("/guardrail/score", timeout, all, s.handleScore)
	s.router.POST("/trend/series", timeout, all, s.handleTrendSeries)
	s.router.POST("/narrative/qtc", timeout, all, s.handleNarrative)

	references := s.router.Group("/references", timeout, all)
	{
		references.GET("/ranges", s.handleRanges)
		references.GET("/versions", s.handleVersions)
	}

	imports := s.router.Group("/imports", timeout, writers)
	{
		imports.POST("/csv", s.handleImportCSV)
		imports.POST("/json", s.handleImportJSON)
		imports.GET("/jobs", s.handleListJobs)
		imports.GET("/jobs/:id", s.handleGetJob)
	}

	// The stream is long-lived and carries no request timeout.
	s.router.GET("/audit/events", timeout, admin, s.handleAuditEvents)
	s.router.GET("/audit/verify", timeout, admin, s.handleAuditVerify)
	s.router.GET("/audit/stream", admin, s.handleAuditStream)

	s.router.GET("/metrics/usage", writers, s.handleMetrics)
}
