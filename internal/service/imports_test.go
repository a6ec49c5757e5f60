package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/jobs"
	"github.com/ecg-guardrail-server/internal/metrics"
)

func newImportService() (*ImportService, *fakeLedger, *jobs.MemoryStore, *metrics.Collector) {
	ledger := &fakeLedger{}
	store := jobs.NewMemoryStore()
	collector := metrics.NewCollector()
	return NewImportService(testLogger(), ledger, store, collector), ledger, store, collector
}

func TestImportCSV(t *testing.T) {
	svc, ledger, store, collector := newImportService()
	csvData := "timestamp,QT_ms,RR_ms,HR_bpm\n" +
		"2026-01-01T08:00:00Z,400,900,66.7\n" +
		"2026-01-01T09:00:00Z,,1000,60\n"

	resp, err := svc.ImportCSV(context.Background(), clinician, strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Len(t, resp.Readings, 1)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "row 2: missing QT_ms", resp.Errors[0])
	assert.Equal(t, domain.FormatCSV, resp.Job.Format)
	assert.Equal(t, domain.ImportCompleted, resp.Job.Status)
	assert.Equal(t, 1, resp.Job.Rows)

	saved, err := store.Get(context.Background(), resp.Job.JobID)
	require.NoError(t, err)
	assert.Equal(t, resp.Job.JobID, saved.JobID)

	event := ledger.last(t)
	assert.Equal(t, ActionImportCSV, event.Action)
	assert.Equal(t, map[string]any{"job_id": resp.Job.JobID, "rows": 1, "errors": 1}, event.Payload)
	assert.Equal(t, int64(1), collector.Snapshot().Counters["imports_csv"])
}

func TestImportJSON(t *testing.T) {
	svc, ledger, _, collector := newImportService()

	t.Run("array", func(t *testing.T) {
		resp, err := svc.ImportJSON(context.Background(), clinician,
			[]byte(`[{"timestamp":"2026-01-01T08:00:00Z","QT_ms":400,"RR_ms":900}]`))
		require.NoError(t, err)
		assert.Len(t, resp.Readings, 1)
		assert.Empty(t, resp.Errors)
		assert.Equal(t, domain.ImportCompleted, resp.Job.Status)
		assert.Equal(t, ActionImportJSON, ledger.last(t).Action)
	})

	t.Run("not an array", func(t *testing.T) {
		resp, err := svc.ImportJSON(context.Background(), clinician, []byte(`{"QT_ms":400}`))
		require.NoError(t, err)
		assert.Empty(t, resp.Readings)
		assert.NotNil(t, resp.Readings)
		assert.Equal(t, domain.ImportFailed, resp.Job.Status)
		assert.Len(t, resp.Errors, 1)
	})

	assert.Equal(t, int64(2), collector.Snapshot().Counters["imports_json"])
}

func TestImport_RequiresWriterRole(t *testing.T) {
	svc, ledger, store, _ := newImportService()
	observer := domain.Caller{UserID: "observer", Role: domain.RoleObserver}

	_, err := svc.ImportCSV(context.Background(), observer, strings.NewReader("timestamp,QT_ms,RR_ms\n"))
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)

	_, err = svc.ImportJSON(context.Background(), observer, []byte(`[]`))
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)

	_, _, err = svc.ListJobs(context.Background(), observer, 10, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)

	_, err = svc.GetJob(context.Background(), observer, "anything")
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)

	assert.Empty(t, ledger.events)
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImport_LedgerFailure(t *testing.T) {
	svc, ledger, _, _ := newImportService()
	ledger.err = errors.New("ledger closed")

	_, err := svc.ImportJSON(context.Background(), domain.Caller{UserID: "admin", Role: domain.RoleAdmin}, []byte(`[]`))
	var auditErr *domain.AuditWriteError
	require.ErrorAs(t, err, &auditErr)
	assert.Equal(t, ActionImportJSON, auditErr.Action)
}

func TestListAndGetJobs(t *testing.T) {
	svc, _, _, _ := newImportService()
	ctx := context.Background()

	first, err := svc.ImportJSON(ctx, clinician, []byte(`[]`))
	require.NoError(t, err)
	_, err = svc.ImportJSON(ctx, clinician, []byte(`[]`))
	require.NoError(t, err)

	list, total, err := svc.ListJobs(ctx, clinician, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, total)

	job, err := svc.GetJob(ctx, clinician, first.Job.JobID)
	require.NoError(t, err)
	assert.Equal(t, first.Job.JobID, job.JobID)

	_, err = svc.GetJob(ctx, clinician, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
