package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.CreateJob(ctx, &Job{Type: TypeGeneratePage, InputPayload: []byte(`{"slug":"pricing"}`)})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, StatusPending, created.Status)

	updated, err := store.UpdateJob(ctx, created.ID, func(j *Job) error {
		j.Status = StatusRunning
		j.Step = StepInitialization
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, updated.Status)

	_, err = store.UpdateJob(ctx, created.ID, func(j *Job) error {
		j.Status = StatusFailed
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := store.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_IncrementProcessedConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	parent, err := store.CreateJob(ctx, &Job{Type: TypeBulkKeywordGeneration, Status: StatusRunning, TotalKeywords: 20})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	completions := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, changed, err := store.IncrementProcessed(ctx, parent.ID)
			if err != nil || !changed {
				return
			}
			if job.ProcessedKeywords == job.TotalKeywords && job.Status == StatusCompleted {
				mu.Lock()
				completions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := store.GetJob(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.ProcessedKeywords)
	assert.Equal(t, 100, got.CompletionPercentage)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 1, completions)
}

func TestMemoryStore_IncrementIgnoredWithoutTotal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	parent, _ := store.CreateJob(ctx, &Job{Type: TypeGenerateWebsite, Status: StatusCompleted})

	_, changed, err := store.IncrementProcessed(ctx, parent.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestJobFilterAndTerminal(t *testing.T) {
	job := &Job{Type: TypeAgentSync, Status: StatusFailed, Step: StepCancelled, ParentJob: "p"}
	assert.True(t, JobFilter{Type: TypeAgentSync, ParentJob: "p"}.Match(job))
	assert.False(t, JobFilter{Status: StatusPending}.Match(job))
	assert.True(t, job.Terminal())

	job.Step = StepFailed
	assert.False(t, job.Terminal())

	_, err := ParseType("NOT_A_TYPE")
	assert.Error(t, err)
}
