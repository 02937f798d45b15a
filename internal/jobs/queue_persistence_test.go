package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{tasks: make(map[string]*Task)}
}

func (m *memoryTaskStore) LoadTasks(_ context.Context) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		ret = append(ret, cloneTask(task))
	}
	return ret, nil
}

func (m *memoryTaskStore) UpsertTask(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *memoryTaskStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *memoryTaskStore) get(id string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTask(m.tasks[id])
}

func TestQueue_RecoversPendingAndRunningTasksFromStore(t *testing.T) {
	store := newMemoryTaskStore()
	now := time.Now()
	store.tasks["t-1"] = &Task{
		ID:          "t-1",
		JobID:       "job-1",
		Status:      TaskPending,
		MaxAttempts: 3,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	store.tasks["t-2"] = &Task{
		ID:          "t-2",
		JobID:       "job-2",
		DedupeKey:   "k2",
		Status:      TaskRunning,
		Attempt:     1,
		MaxAttempts: 3,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	q := NewQueue(1, store)

	got, ok := q.Get("t-2")
	require.True(t, ok)
	assert.Equal(t, TaskPending, got.Status)

	_, created := q.Enqueue(EnqueueRequest{JobID: "job-2", Options: EnqueueOptions{DedupeKey: "k2"}})
	assert.False(t, created)

	var mu sync.Mutex
	seen := map[string]bool{}
	q.Start(func(_ context.Context, task *Task) error {
		mu.Lock()
		seen[task.JobID] = true
		mu.Unlock()
		return nil
	})
	defer q.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["job-1"] && seen["job-2"]
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		a, b := store.get("t-1"), store.get("t-2")
		return a != nil && b != nil && a.Status == TaskCompleted && b.Status == TaskCompleted
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, store.get("t-2").Attempt)
}

func TestQueue_PrunesTerminalTasks(t *testing.T) {
	store := newMemoryTaskStore()
	q := NewQueue(1, store, WithMaxTasks(2))
	q.Start(func(_ context.Context, _ *Task) error { return nil })
	defer q.Stop()

	for i := 0; i < 5; i++ {
		task, _ := q.Enqueue(EnqueueRequest{JobID: "job"})
		require.Eventually(t, func() bool {
			got, ok := q.Get(task.ID)
			return !ok || got.Status == TaskCompleted
		}, time.Second, 10*time.Millisecond)
	}

	assert.LessOrEqual(t, len(q.List()), 2)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.LessOrEqual(t, len(store.tasks), 2)
}

func TestQueue_StopKeepsInterruptedTaskPending(t *testing.T) {
	store := newMemoryTaskStore()
	q := NewQueue(1, store)

	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *Task) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	task, _ := q.Enqueue(EnqueueRequest{JobID: "job-1", Options: EnqueueOptions{Attempts: 1}})
	<-started
	q.Stop()

	persisted := store.get(task.ID)
	require.NotNil(t, persisted)
	assert.Equal(t, TaskPending, persisted.Status)
	assert.Equal(t, 0, persisted.Attempt)
}
