package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/logging"
)

func writeLedger(t *testing.T, n int) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	ledger, err := audit.Open(path, audit.Options{}, logging.Discard())
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := ledger.Append(context.Background(), "admin", "guardrail_score", map[string]any{"n": i})
		require.NoError(t, err)
	}
	require.NoError(t, ledger.Close())
	return path, audit.DefaultPayloadLogPath(path)
}

func TestRun(t *testing.T) {
	path, payloadPath := writeLedger(t, 3)

	t.Run("valid ledger", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"-ledger", path}, &stdout, &stderr)
		assert.Equal(t, exitValid, code)
		assert.Contains(t, stdout.String(), "VALID")
		assert.Contains(t, stdout.String(), "Payloads checked:  3")
	})

	t.Run("json report", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"-ledger", path, "-json"}, &stdout, &stderr)
		require.Equal(t, exitValid, code)

		var report audit.Report
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
		assert.True(t, report.Valid)
		assert.Equal(t, 3, report.Events)
	})

	t.Run("explicit payload log", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"-ledger", path, "-payloads", payloadPath}, &stdout, &stderr)
		assert.Equal(t, exitValid, code)
	})

	t.Run("missing ledger", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"-ledger", filepath.Join(t.TempDir(), "nope.jsonl")}, &stdout, &stderr)
		assert.Equal(t, exitFailure, code)
		assert.Contains(t, stderr.String(), "verification failed")
	})

	t.Run("unknown flag", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"-bogus"}, &stdout, &stderr)
		assert.Equal(t, exitFailure, code)
	})
}

func TestRun_DetectsDeletedLine(t *testing.T) {
	path, _ := writeLedger(t, 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	require.NoError(t, os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]+"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-ledger", path}, &stdout, &stderr)
	assert.Equal(t, exitTamper, code)
	assert.Contains(t, stdout.String(), "TAMPERED")
	assert.Contains(t, stdout.String(), "event 1")
}

func TestRun_DetectsForgedPayloadHash(t *testing.T) {
	path, _ := writeLedger(t, 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	last["payload_hash"] = "deadbeef" + last["payload_hash"].(string)[8:]
	forged, err := json.Marshal(last)
	require.NoError(t, err)
	lines[2] = string(forged)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-ledger", path}, &stdout, &stderr)
	assert.Equal(t, exitTamper, code)
	assert.Contains(t, stdout.String(), "event 2")
}

func TestRun_WithoutPayloadLog(t *testing.T) {
	path, payloadPath := writeLedger(t, 2)
	require.NoError(t, os.Remove(payloadPath))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-ledger", path}, &stdout, &stderr)
	assert.Equal(t, exitUnverified, code)
	assert.Contains(t, stdout.String(), "UNVERIFIED")
}
