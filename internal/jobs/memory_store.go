package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-binary setups.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

func (m *MemoryStore) CreateJob(_ context.Context, job *Job) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := CloneJob(job)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	now := m.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.jobs[stored.ID] = stored
	return CloneJob(stored), nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return CloneJob(job), nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	next := CloneJob(current)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = m.now()
	m.jobs[id] = next
	return CloneJob(next), nil
}

func (m *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ret := make([]*Job, 0)
	for _, job := range m.jobs {
		if filter.Match(job) {
			ret = append(ret, CloneJob(job))
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	if filter.Limit > 0 && len(ret) > filter.Limit {
		ret = ret[:filter.Limit]
	}
	return ret, nil
}

func (m *MemoryStore) IncrementProcessed(_ context.Context, parentID string) (*Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.jobs[parentID]
	if !ok {
		return nil, false, ErrJobNotFound
	}
	if parent.TotalKeywords <= 0 || parent.ProcessedKeywords >= parent.TotalKeywords {
		return CloneJob(parent), false, nil
	}

	now := m.now()
	parent.ProcessedKeywords++
	parent.CompletionPercentage = parent.ProcessedKeywords * 100 / parent.TotalKeywords
	parent.UpdatedAt = now
	if parent.ProcessedKeywords == parent.TotalKeywords {
		parent.Status = StatusCompleted
		parent.Step = StepCompleted
		parent.CompletedAt = &now
	}
	return CloneJob(parent), true, nil
}
