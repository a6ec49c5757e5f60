// Package mcp exposes the guardrail as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/service"
)

// Default server identity.
const (
	DefaultServerName    = "ecg-guardrail-mcp"
	DefaultServerVersion = "v0.1.0"
)

// ChainVerifier checks the audit ledger
type ChainVerifier interface {
	Verify(ctx context.Context) (audit.Report, error)
}

// Server wraps an MCP SDK server with the guardrail tools registered
type Server struct {
	mcpServer *mcp.Server
	guardrail *service.GuardrailService
	verifier  ChainVerifier
	metrics   domain.MetricsRecorder
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(
	cfg domain.MCPConfig,
	guardrail *service.GuardrailService,
	verifier ChainVerifier,
	metrics domain.MetricsRecorder,
	logger *logrus.Logger,
) *Server {
	name := cfg.ServerName
	if name == "" {
		name = DefaultServerName
	}
	version := cfg.ServerVersion
	if version == "" {
		version = DefaultServerVersion
	}

	serverInfo := &mcp.Implementation{
		Name:    name,
		Version: version,
	}

	server := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		guardrail: guardrail,
		verifier:  verifier,
		metrics:   metrics,
		logger:    logger,
	}
	server.registerTools()

	return server
}

// MCPServer returns the underlying SDK server
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Run serves the tools over transport until the client disconnects or
// ctx is cancelled
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("Starting ECG guardrail MCP server...")
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers every tool with the SDK
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolScoreIntervals,
		Description: "Assess de-identified ECG intervals against versioned reference ranges. Returns traffic-light assessments, QTc, percentile and advisory flags. Non-diagnostic.",
	}, s.handleScoreIntervals)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolComputeQTc,
		Description: "Compute rate-corrected QT (Bazett, Fridericia, Framingham) with the rate-aware primary formula and its categorical bucket.",
	}, s.handleComputeQTc)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSummarizeIntervals,
		Description: "Produce a safety-filtered, non-diagnostic narrative summary of interval values.",
	}, s.handleSummarizeIntervals)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolVerifyAuditChain,
		Description: "Replay the audit ledger hash chain and report the first divergence, if any.",
	}, s.handleVerifyAuditChain)

	s.logger.WithField("tool_count", 4).Info("Registered MCP tools")
}
