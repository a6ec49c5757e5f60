package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/service"
)

// Tool names.
const (
	ToolScoreIntervals     = "score_intervals"
	ToolComputeQTc         = "compute_qtc"
	ToolSummarizeIntervals = "summarize_intervals"
	ToolVerifyAuditChain   = "verify_audit_chain"
)

// intervals converts nullable tool inputs into an interval set
func intervals(hr, pr, qrs, qt, rr *float64) domain.IntervalSet {
	return domain.IntervalSet{
		HRBpm: domain.Ptr(hr),
		PRMs:  domain.Ptr(pr),
		QRSMs: domain.Ptr(qrs),
		QTMs:  domain.Ptr(qt),
		RRMs:  domain.Ptr(rr),
	}
}

// ScoreIntervalsParams defines parameters for score_intervals tool
type ScoreIntervalsParams struct {
	AgeBand    string   `json:"age_band" jsonschema:"reference age band, e.g. adult_18_39"`
	Sex        string   `json:"sex" jsonschema:"male or female; other values use generic thresholds"`
	RefVersion string   `json:"ref_version,omitempty" jsonschema:"pin a reference pack version"`
	HRBpm      *float64 `json:"HR_bpm,omitempty" jsonschema:"heart rate in bpm"`
	PRMs       *float64 `json:"PR_ms,omitempty" jsonschema:"PR interval in ms"`
	QRSMs      *float64 `json:"QRS_ms,omitempty" jsonschema:"QRS duration in ms"`
	QTMs       *float64 `json:"QT_ms,omitempty" jsonschema:"uncorrected QT interval in ms"`
	RRMs       *float64 `json:"RR_ms,omitempty" jsonschema:"RR interval in ms; authoritative over HR_bpm"`
}

// ComputeQTcParams defines parameters for compute_qtc tool
type ComputeQTcParams struct {
	Sex   string   `json:"sex,omitempty" jsonschema:"selects the threshold table"`
	QTMs  *float64 `json:"QT_ms,omitempty" jsonschema:"uncorrected QT interval in ms"`
	RRMs  *float64 `json:"RR_ms,omitempty" jsonschema:"RR interval in ms"`
	HRBpm *float64 `json:"HR_bpm,omitempty" jsonschema:"heart rate in bpm"`
}

// ComputeQTcResult is the output of compute_qtc
type ComputeQTcResult struct {
	QTc            domain.QTcResult      `json:"qtc"`
	Classification domain.Classification `json:"classification"`
	Disclaimer     string                `json:"disclaimer"`
}

// SummarizeIntervalsParams defines parameters for summarize_intervals tool
type SummarizeIntervalsParams struct {
	AgeBand        string   `json:"age_band" jsonschema:"reference age band"`
	Sex            string   `json:"sex" jsonschema:"male or female"`
	HRBpm          *float64 `json:"HR_bpm,omitempty" jsonschema:"heart rate in bpm"`
	PRMs           *float64 `json:"PR_ms,omitempty" jsonschema:"PR interval in ms"`
	QRSMs          *float64 `json:"QRS_ms,omitempty" jsonschema:"QRS duration in ms"`
	QTMs           *float64 `json:"QT_ms,omitempty" jsonschema:"uncorrected QT interval in ms"`
	RRMs           *float64 `json:"RR_ms,omitempty" jsonschema:"RR interval in ms"`
	QTcMs          *float64 `json:"qtc_ms,omitempty" jsonschema:"corrected QT; derived from the intervals when omitted"`
	PercentileBand string   `json:"percentile_band,omitempty"`
	RedFlags       []string `json:"red_flags,omitempty" jsonschema:"advisory tags; derived when omitted"`
	TrendComment   string   `json:"trend_comment,omitempty"`
}

// VerifyAuditChainParams defines parameters for verify_audit_chain tool
type VerifyAuditChainParams struct{}

// caller identifies the MCP client in the ledger
func caller(req *mcp.CallToolRequest) domain.Caller {
	name := "unknown"
	if req != nil && req.Session != nil {
		if params := req.Session.InitializeParams(); params != nil && params.ClientInfo != nil && params.ClientInfo.Name != "" {
			name = params.ClientInfo.Name
		}
	}
	return domain.Caller{UserID: "mcp:" + name, Role: domain.RoleClinician}
}

// handleScoreIntervals handles the score_intervals tool invocation
func (s *Server) handleScoreIntervals(ctx context.Context, req *mcp.CallToolRequest, params ScoreIntervalsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolScoreIntervals).Info("Tool invoked")
	s.increment("mcp_" + ToolScoreIntervals)

	resp, err := s.guardrail.Score(ctx, caller(req), domain.ScoreRequest{
		AgeBand:    params.AgeBand,
		Sex:        params.Sex,
		RefVersion: params.RefVersion,
		Intervals:  intervals(params.HRBpm, params.PRMs, params.QRSMs, params.QTMs, params.RRMs),
	})
	if err != nil {
		return s.createErrorResult(ToolScoreIntervals, err), nil, nil
	}
	return jsonResult(resp)
}

// handleComputeQTc handles the compute_qtc tool invocation. It is pure and
// writes no ledger event.
func (s *Server) handleComputeQTc(ctx context.Context, req *mcp.CallToolRequest, params ComputeQTcParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolComputeQTc).Info("Tool invoked")
	s.increment("mcp_" + ToolComputeQTc)

	qtc := service.ComputeQTc(domain.Ptr(params.QTMs), domain.Ptr(params.HRBpm), domain.Ptr(params.RRMs))
	return jsonResult(ComputeQTcResult{
		QTc:            qtc,
		Classification: service.Classify(qtc.PrimaryQTcMs, params.Sex),
		Disclaimer:     domain.ScoreDisclaimer,
	})
}

// handleSummarizeIntervals handles the summarize_intervals tool invocation
func (s *Server) handleSummarizeIntervals(ctx context.Context, req *mcp.CallToolRequest, params SummarizeIntervalsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolSummarizeIntervals).Info("Tool invoked")
	s.increment("mcp_" + ToolSummarizeIntervals)

	out, err := s.guardrail.Narrate(ctx, caller(req), domain.NarrativeRequest{
		AgeBand:        params.AgeBand,
		Sex:            params.Sex,
		Intervals:      intervals(params.HRBpm, params.PRMs, params.QRSMs, params.QTMs, params.RRMs),
		QTcMs:          domain.Ptr(params.QTcMs),
		PercentileBand: params.PercentileBand,
		RedFlags:       params.RedFlags,
		TrendComment:   params.TrendComment,
	})
	if err != nil {
		return s.createErrorResult(ToolSummarizeIntervals, err), nil, nil
	}
	return jsonResult(out)
}

// handleVerifyAuditChain handles the verify_audit_chain tool invocation
func (s *Server) handleVerifyAuditChain(ctx context.Context, req *mcp.CallToolRequest, params VerifyAuditChainParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolVerifyAuditChain).Info("Tool invoked")
	s.increment("mcp_" + ToolVerifyAuditChain)

	report, err := s.verifier.Verify(ctx)
	if err != nil {
		return s.createErrorResult(ToolVerifyAuditChain, err), nil, nil
	}
	return jsonResult(report)
}

// jsonResult renders v as the text content of a tool result
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// createErrorResult reports a tool failure to the client. Ledger failures
// are logged with their cause; the client sees only the category.
func (s *Server) createErrorResult(tool string, err error) *mcp.CallToolResult {
	message := err.Error()

	var (
		validationErr *domain.ValidationError
		auditErr      *domain.AuditWriteError
	)
	switch {
	case errors.As(err, &validationErr):
		message = fmt.Sprintf("%s: %s", domain.ErrValidation, validationErr.Error())
	case errors.As(err, &auditErr):
		s.logger.WithError(err).WithField("tool", tool).Error("Decision withheld: audit write failed")
		message = fmt.Sprintf("%s: audit ledger write failed", domain.ErrAuditWrite)
	default:
		s.logger.WithError(err).WithField("tool", tool).Error("Tool failed")
	}

	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}
}

func (s *Server) increment(name string) {
	if s.metrics != nil {
		s.metrics.Increment(name)
	}
}
