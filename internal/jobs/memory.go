package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ecg-guardrail-server/internal/domain"
)

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.ImportJob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]domain.ImportJob)}
}

func cloneJob(job domain.ImportJob) *domain.ImportJob {
	job.Errors = append([]string{}, job.Errors...)
	return &job
}

// Save stores a copy of job.
func (m *MemoryStore) Save(ctx context.Context, job *domain.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.jobs[job.JobID]; ok {
		job.CreatedAt = existing.CreatedAt
	}
	m.jobs[job.JobID] = *cloneJob(*job)
	return nil
}

// Get returns a copy of the job.
func (m *MemoryStore) Get(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("import job %s: %w", jobID, domain.ErrNotFound)
	}
	return cloneJob(job), nil
}

// List returns jobs newest first.
func (m *MemoryStore) List(ctx context.Context, limit, offset int) ([]*domain.ImportJob, error) {
	limit, offset = normalizePage(limit, offset)

	m.mu.RLock()
	all := make([]*domain.ImportJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		all = append(all, cloneJob(job))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].JobID < all[j].JobID
	})

	if offset >= len(all) {
		return []*domain.ImportJob{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Count returns the number of stored jobs.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
