package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ecg-guardrail-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "jobs-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleJob(id string, created time.Time) *domain.ImportJob {
	return &domain.ImportJob{
		JobID:     id,
		Format:    domain.FormatCSV,
		Status:    domain.ImportCompleted,
		Rows:      2,
		Errors:    []string{"row 3: missing QT_ms"},
		CreatedAt: created,
	}
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("save and get", func(t *testing.T) {
		job := sampleJob("job-a", base)
		require.NoError(t, store.Save(ctx, job))

		got, err := store.Get(ctx, "job-a")
		require.NoError(t, err)
		assert.Equal(t, "job-a", got.JobID)
		assert.Equal(t, domain.FormatCSV, got.Format)
		assert.Equal(t, domain.ImportCompleted, got.Status)
		assert.Equal(t, 2, got.Rows)
		assert.Equal(t, []string{"row 3: missing QT_ms"}, got.Errors)
		assert.True(t, base.Equal(got.CreatedAt), "created_at round trips")
	})

	t.Run("save updates existing", func(t *testing.T) {
		job := sampleJob("job-a", base.Add(time.Hour))
		job.Status = domain.ImportFailed
		job.Rows = 0
		job.Errors = nil
		require.NoError(t, store.Save(ctx, job))

		got, err := store.Get(ctx, "job-a")
		require.NoError(t, err)
		assert.Equal(t, domain.ImportFailed, got.Status)
		assert.Equal(t, 0, got.Rows)
		assert.Empty(t, got.Errors)
		assert.NotNil(t, got.Errors)
		assert.True(t, base.Equal(got.CreatedAt), "created_at is kept on update")
	})

	t.Run("list newest first with paging", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			job := sampleJob(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, store.Save(ctx, job))
		}

		all, err := store.List(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{"job-3", "job-2", "job-1", "job-a"},
			[]string{all[0].JobID, all[1].JobID, all[2].JobID, all[3].JobID})

		page, err := store.List(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "job-2", page[0].JobID)
		assert.Equal(t, "job-1", page[1].JobID)

		empty, err := store.List(ctx, 10, 50)
		require.NoError(t, err)
		assert.Empty(t, empty)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "jobs-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "jobs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")

	_, err = NewSQLiteStore("")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, createTestStore(t))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := sampleJob("job-a", time.Now().UTC())
	require.NoError(t, store.Save(ctx, job))

	job.Errors[0] = "mutated"
	got, err := store.Get(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, "row 3: missing QT_ms", got.Errors[0])
}

func TestNew(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := New(ctx, domain.JobsConfig{Backend: "memory"}, logger)
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("default is sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jobs.db")
		store, err := New(ctx, domain.JobsConfig{SQLitePath: path}, logger)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &SQLiteStore{}, store)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(ctx, domain.JobsConfig{Backend: "mongo"}, logger)
		assert.ErrorContains(t, err, "unknown jobs backend")
	})
}

func TestNewJob(t *testing.T) {
	tests := []struct {
		name   string
		result domain.ImportResult
		status domain.ImportStatus
		rows   int
	}{
		{
			name:   "rows parsed",
			result: domain.ImportResult{Readings: make([]domain.Reading, 3)},
			status: domain.ImportCompleted,
			rows:   3,
		},
		{
			name:   "partial",
			result: domain.ImportResult{Readings: make([]domain.Reading, 1), Errors: []string{"row 3: missing RR_ms"}},
			status: domain.ImportCompleted,
			rows:   1,
		},
		{
			name:   "nothing parsed",
			result: domain.ImportResult{Errors: []string{"row 2: missing QT_ms"}},
			status: domain.ImportFailed,
		},
		{
			name:   "empty file",
			result: domain.ImportResult{},
			status: domain.ImportCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob(domain.FormatJSON, tt.result)
			assert.NotEmpty(t, job.JobID)
			assert.Equal(t, domain.FormatJSON, job.Format)
			assert.Equal(t, tt.status, job.Status)
			assert.Equal(t, tt.rows, job.Rows)
			assert.NotNil(t, job.Errors)
			assert.False(t, job.CreatedAt.IsZero())
		})
	}

	assert.NotEqual(t, NewJob(domain.FormatCSV, domain.ImportResult{}).JobID,
		NewJob(domain.FormatCSV, domain.ImportResult{}).JobID)
}

func TestPostgresStore_Mocked(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store, err := NewPostgresStore(db)
		require.NoError(t, err)

		mock.ExpectQuery("INSERT INTO import_jobs").
			WithArgs("job-a", "CSV", "COMPLETED", 2, `["row 3: missing QT_ms"]`, created).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

		job := sampleJob("job-a", created)
		require.NoError(t, store.Save(ctx, job))
		assert.Equal(t, created, job.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store, err := NewPostgresStore(db)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT job_id, format, status, row_count, errors, created_at").
			WithArgs("job-a").
			WillReturnRows(sqlmock.NewRows([]string{"job_id", "format", "status", "row_count", "errors", "created_at"}).
				AddRow("job-a", "JSON", "FAILED", 0, []byte(`["item 0: missing QT_ms"]`), created))

		job, err := store.Get(ctx, "job-a")
		require.NoError(t, err)
		assert.Equal(t, domain.FormatJSON, job.Format)
		assert.Equal(t, domain.ImportFailed, job.Status)
		assert.Equal(t, []string{"item 0: missing QT_ms"}, job.Errors)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get missing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store, err := NewPostgresStore(db)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT job_id").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"job_id", "format", "status", "row_count", "errors", "created_at"}))

		_, err = store.Get(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list applies default limit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store, err := NewPostgresStore(db)
		require.NoError(t, err)

		mock.ExpectQuery("ORDER BY created_at DESC").
			WithArgs(DefaultListLimit, 0).
			WillReturnRows(sqlmock.NewRows([]string{"job_id", "format", "status", "row_count", "errors", "created_at"}).
				AddRow("job-b", "CSV", "COMPLETED", 1, []byte(`[]`), created.Add(time.Minute)).
				AddRow("job-a", "CSV", "COMPLETED", 2, []byte(`[]`), created))

		jobs, err := store.List(ctx, -1, -5)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "job-b", jobs[0].JobID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store, err := NewPostgresStore(db)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT COUNT").WillReturnError(fmt.Errorf("connection reset"))
		_, err = store.Count(ctx)
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("nil db", func(t *testing.T) {
		_, err := NewPostgresStore(nil)
		assert.Error(t, err)
	})
}

func TestPostgresStore_Container(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := New(ctx, domain.JobsConfig{Backend: BackendPostgres, PostgresURL: url}, logger)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}
