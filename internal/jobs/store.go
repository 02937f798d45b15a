package jobs

import (
	"context"
	"errors"
	"time"
)

var ErrJobNotFound = errors.New("job not found")

// Store persists Job records. It is the source of truth for job status.
type Store interface {
	CreateJob(ctx context.Context, job *Job) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	// UpdateJob applies fn to the current record and persists the result atomically.
	// An error from fn aborts the update.
	UpdateJob(ctx context.Context, id string, fn func(*Job) error) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	// IncrementProcessed counts one finished child on the parent. It applies only while
	// total_keywords > 0 and processed_keywords < total_keywords, and flips the parent to
	// completed when the counters meet. The bool reports whether the row changed.
	IncrementProcessed(ctx context.Context, parentID string) (*Job, bool, error)
}

// TaskStore persists queue tasks for restart recovery.
type TaskStore interface {
	LoadTasks(ctx context.Context) ([]*Task, error)
	UpsertTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, taskID string) error
}

// SharedTaskStore is a TaskStore that queues in several processes consume at once. A claim
// atomically moves one due task to running under an owner and a lease. A running task whose
// lease lapsed is claimable again.
type SharedTaskStore interface {
	TaskStore
	// InsertTask stores a new pending task. When task.DedupeKey matches an active task it
	// stores nothing and returns that task and false.
	InsertTask(ctx context.Context, task *Task) (*Task, bool, error)
	// ClaimTask returns the earliest due task, or nil when none is due.
	ClaimTask(ctx context.Context, owner string, now time.Time, lease time.Duration) (*Task, error)
	RenewLease(ctx context.Context, taskID, owner string, until time.Time) error
	// ReleaseTask records the outcome of a claimed task and drops the claim. It reports false
	// when owner no longer holds the claim.
	ReleaseTask(ctx context.Context, task *Task, owner string) (bool, error)
	// PruneTasks deletes the oldest completed and failed tasks beyond keep.
	PruneTasks(ctx context.Context, keep int) error
}
