package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/metrics"
	"github.com/ecg-guardrail-server/internal/narrative"
	"github.com/ecg-guardrail-server/internal/reference"
	"github.com/ecg-guardrail-server/internal/service"
)

type failingVerifier struct{}

func (failingVerifier) Verify(context.Context) (audit.Report, error) {
	return audit.Report{}, errors.New("ledger unreadable")
}

type testEnv struct {
	session   *mcp.ClientSession
	ledger    *audit.Ledger
	collector *metrics.Collector
}

func newTestEnv(t *testing.T, verifier ChainVerifier) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	refs, err := reference.NewStore(reference.Config{BasePath: "../../content/references"}, logger)
	require.NoError(t, err)

	ledger, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"), audit.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	collector := metrics.NewCollector()
	generator := narrative.NewOpenAIGenerator(domain.NarrativeConfig{}, narrative.CircuitBreakerConfig{}, logger)
	filter := narrative.NewSafetyFilter(generator, narrative.Options{Metrics: collector}, logger)
	guardrail := service.NewGuardrailService(logger, refs, ledger, collector, filter)

	if verifier == nil {
		verifier = ledger
	}
	server := NewServer(domain.MCPConfig{}, guardrail, verifier, collector, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return &testEnv{session: session, ledger: ledger, collector: collector}
}

func (e *testEnv) call(t *testing.T, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := e.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return res
}

func decodeText(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	require.NoError(t, json.Unmarshal([]byte(text.Text), v))
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolScoreIntervals, ToolComputeQTc, ToolSummarizeIntervals, ToolVerifyAuditChain,
	}, names)
}

func TestScoreIntervals(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.call(t, ToolScoreIntervals, map[string]any{
		"age_band": "adult_18_39",
		"sex":      "female",
		"HR_bpm":   66.7,
		"PR_ms":    160,
		"QRS_ms":   90,
		"QT_ms":    400,
		"RR_ms":    900,
	})
	require.False(t, res.IsError)

	var resp struct {
		Computed struct {
			QTcMs      float64 `json:"QTc_ms"`
			Percentile string  `json:"percentile"`
			RefVersion string  `json:"ref_version"`
		} `json:"computed"`
		Disclaimer string `json:"disclaimer"`
	}
	decodeText(t, res, &resp)
	assert.InDelta(t, 421, resp.Computed.QTcMs, 1)
	assert.Equal(t, "1.1.0", resp.Computed.RefVersion)
	assert.Equal(t, "~50th+", resp.Computed.Percentile)
	assert.Equal(t, domain.ScoreDisclaimer, resp.Disclaimer)

	events, err := env.ledger.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mcp:test-client", events[0].UserID)
	assert.Equal(t, service.ActionScore, events[0].Action)

	assert.Equal(t, int64(1), env.collector.Snapshot().Counters["mcp_"+ToolScoreIntervals])
}

func TestScoreIntervals_ValidationError(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.call(t, ToolScoreIntervals, map[string]any{
		"age_band": "",
		"sex":      "female",
	})
	assert.True(t, res.IsError)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, string(domain.ErrValidation))

	events, err := env.ledger.Events(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestComputeQTc(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		formula  domain.QTcFormula
		category domain.RiskCategory
		warning  bool
	}{
		{
			name:     "normal rate uses bazett",
			args:     map[string]any{"QT_ms": 400, "RR_ms": 900, "sex": "female"},
			formula:  domain.Bazett,
			category: domain.CategoryNormal,
		},
		{
			name:     "bradycardia uses fridericia",
			args:     map[string]any{"QT_ms": 450, "HR_bpm": 50, "sex": "male"},
			formula:  domain.Fridericia,
			category: domain.CategoryNormal,
			warning:  true,
		},
		{
			name:     "missing QT",
			args:     map[string]any{"RR_ms": 900},
			category: domain.CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			res := env.call(t, ToolComputeQTc, tt.args)
			require.False(t, res.IsError)

			var out struct {
				QTc struct {
					PrimaryFormula domain.QTcFormula `json:"primary_formula"`
					RateWarning    string            `json:"rate_warning"`
				} `json:"qtc"`
				Classification struct {
					Category domain.RiskCategory `json:"category"`
				} `json:"classification"`
			}
			decodeText(t, res, &out)
			assert.Equal(t, tt.formula, out.QTc.PrimaryFormula)
			assert.Equal(t, tt.category, out.Classification.Category)
			assert.Equal(t, tt.warning, out.QTc.RateWarning != "")

			events, err := env.ledger.Events(context.Background())
			require.NoError(t, err)
			assert.Empty(t, events, "compute_qtc must not write to the ledger")
		})
	}
}

func TestSummarizeIntervals(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.call(t, ToolSummarizeIntervals, map[string]any{
		"age_band": "adult_18_39",
		"sex":      "male",
		"QT_ms":    400,
		"RR_ms":    900,
	})
	require.False(t, res.IsError)

	var out domain.NarrativeOutput
	decodeText(t, res, &out)
	assert.Contains(t, out.Narrative, "QTc")
	assert.Equal(t, domain.SourceFallback, out.Source)
	assert.NotEmpty(t, out.Disclaimer)

	events, err := env.ledger.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, service.ActionNarrative, events[0].Action)
	assert.Equal(t, "mcp:test-client", events[0].UserID)
}

func TestSummarizeIntervals_CallerFlagsAreScanned(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.call(t, ToolSummarizeIntervals, map[string]any{
		"age_band":  "adult_18_39",
		"sex":       "male",
		"QT_ms":     400,
		"RR_ms":     900,
		"red_flags": []string{"Long QT syndrome: start treatment", "prolongation-threshold-470"},
	})
	require.False(t, res.IsError)

	var out domain.NarrativeOutput
	decodeText(t, res, &out)
	assert.Equal(t, domain.SourceFallback, out.Source)
	assert.Equal(t, []string{"prolongation-threshold-470"}, out.CautionFlags)

	text := res.Content[0].(*mcp.TextContent).Text
	_, banned := narrative.FindBanned(text)
	assert.False(t, banned)
}

func TestVerifyAuditChain(t *testing.T) {
	env := newTestEnv(t, nil)

	env.call(t, ToolScoreIntervals, map[string]any{
		"age_band": "adult_18_39",
		"sex":      "female",
		"QT_ms":    400,
		"RR_ms":    900,
	})

	res := env.call(t, ToolVerifyAuditChain, map[string]any{})
	require.False(t, res.IsError)

	var report audit.Report
	decodeText(t, res, &report)
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.Events)
	assert.Equal(t, -1, report.FirstInvalid)

	events, err := env.ledger.Events(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1, "verification is read-only")
}

func TestVerifyAuditChain_Failure(t *testing.T) {
	env := newTestEnv(t, failingVerifier{})

	res := env.call(t, ToolVerifyAuditChain, map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "ledger unreadable")
}
