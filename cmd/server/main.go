package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/api"
	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/config"
	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/jobs"
	"github.com/ecg-guardrail-server/internal/logging"
	"github.com/ecg-guardrail-server/internal/metrics"
	"github.com/ecg-guardrail-server/internal/narrative"
	"github.com/ecg-guardrail-server/internal/reference"
	"github.com/ecg-guardrail-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refs, err := reference.NewStore(reference.Config{
		BasePath:        cfg.References.BasePath,
		Version:         cfg.References.Version,
		FallbackVersion: cfg.References.FallbackVersion,
		CacheSize:       cfg.References.CacheSize,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load reference packs")
	}

	ledger, err := audit.Open(cfg.Audit.Path, audit.Options{
		PayloadLogPath: cfg.Audit.PayloadLogPath,
		QueueSize:      cfg.Audit.QueueSize,
		Fsync:          cfg.Audit.Fsync,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open audit ledger")
	}
	defer ledger.Close()

	jobStore, err := jobs.New(ctx, cfg.Jobs, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open import job store")
	}
	defer jobStore.Close()

	collector := metrics.NewCollector()
	narrator, closeCache := newNarrator(cfg, collector, logger)
	defer closeCache()

	guardrail := service.NewGuardrailService(logger, refs, ledger, collector, narrator)
	imports := service.NewImportService(logger, ledger, jobStore, collector)

	server := api.NewServer(configManager, api.Dependencies{
		Guardrail: guardrail,
		Imports:   imports,
		Audit:     ledger,
		Metrics:   collector,
	}, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"ledger":      ledger.Path(),
		"jobs":        cfg.Jobs.Backend,
		"ref_version": refs.ActiveVersion(""),
	}).Info("Starting ECG guardrail server")

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}

	logger.Info("Server stopped")
}

// newNarrator wires the generator, the optional Redis cache and the safety
// filter. The returned func releases the cache connection.
func newNarrator(cfg *domain.Config, collector *metrics.Collector, logger *logrus.Logger) (*narrative.SafetyFilter, func()) {
	var generator narrative.Generator
	if cfg.Narrative.Enabled {
		generator = narrative.NewOpenAIGenerator(cfg.Narrative, narrative.CircuitBreakerConfig{}, logger)
	} else {
		logger.Info("Narrative generator disabled, using deterministic summaries")
	}

	options := narrative.Options{
		Timeout:     cfg.Narrative.Timeout,
		Temperature: cfg.Narrative.Temperature,
		CacheTTL:    cfg.Narrative.CacheTTL,
		Metrics:     collector,
	}

	closeCache := func() {}
	if cfg.Cache.RedisURL != "" {
		cache, err := narrative.NewRedisCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Narrative cache unavailable, continuing without it")
		} else {
			options.Cache = cache
			closeCache = func() { _ = cache.Close() }
		}
	}

	return narrative.NewSafetyFilter(generator, options, logger), closeCache
}
