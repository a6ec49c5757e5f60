// Package main provides the stdio entry point for the ECG guardrail MCP server.
// It needs no config file or external services: the ledger lives under the
// data directory and logs go to stderr.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/config"
	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/logging"
	guardrailmcp "github.com/ecg-guardrail-server/internal/mcp"
	"github.com/ecg-guardrail-server/internal/metrics"
	"github.com/ecg-guardrail-server/internal/narrative"
	"github.com/ecg-guardrail-server/internal/reference"
	"github.com/ecg-guardrail-server/internal/service"
	"github.com/ecg-guardrail-server/internal/setup"
)

func main() {
	// Check for setup subcommand
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI(os.Stdout).Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	// Load lightweight configuration
	cfg := config.LoadLiteConfig()

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		logger.WithError(err).Fatal("Failed to create data directory")
	}
	logger.WithField("data_dir", cfg.DataDir).Info("Using data directory")

	refs, err := reference.NewStore(reference.Config{
		BasePath:  cfg.RefBasePath,
		Version:   cfg.RefVersion,
		CacheSize: cfg.RefCacheSize,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load reference packs")
	}

	ledger, err := audit.Open(cfg.LedgerPath(), audit.Options{
		PayloadLogPath: cfg.PayloadLogPath(),
		Fsync:          true,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open audit ledger")
	}
	defer ledger.Close()

	collector := metrics.NewCollector()
	narrativeCfg := cfg.Narrative()
	generator := narrative.NewOpenAIGenerator(narrativeCfg, narrative.CircuitBreakerConfig{}, logger)
	narrator := narrative.NewSafetyFilter(generator, narrative.Options{
		Timeout:     narrativeCfg.Timeout,
		Temperature: narrativeCfg.Temperature,
		Metrics:     collector,
	}, logger)

	guardrail := service.NewGuardrailService(logger, refs, ledger, collector, narrator)
	server := guardrailmcp.NewServer(domain.MCPConfig{}, guardrail, ledger, collector, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server stopped with error")
		ledger.Close()
		os.Exit(1)
	}

	logger.Info("ECG guardrail MCP server stopped")
}
