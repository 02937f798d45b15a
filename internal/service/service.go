// Package service holds the trigger surface shared by the HTTP API, the CLI and the news cron:
// creating, rerunning and cancelling jobs, publish events and the news schedule.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/agentsync"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/tracking"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

const (
	syncAttempts = 3
	syncBackoff  = 5 * time.Second
)

type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.Task, bool)
}

// Triggers creates and re-queues jobs on behalf of external callers.
type Triggers struct {
	store     jobs.Store
	docs      docstore.Store
	queue     Enqueuer
	queueName string
	tracking  *tracking.Service
	languages []string
}

func NewTriggers(store jobs.Store, docs docstore.Store, queue Enqueuer, queueName string, tr *tracking.Service, languages []string) *Triggers {
	if tr == nil {
		tr = tracking.NewService(docs, store, queue, queueName)
	}
	return &Triggers{
		store:     store,
		docs:      docs,
		queue:     queue,
		queueName: queueName,
		tracking:  tr,
		languages: languages,
	}
}

// CreateRequest is a new job as submitted by a caller.
type CreateRequest struct {
	Type           jobs.Type       `json:"type"`
	Input          json.RawMessage `json:"input,omitempty"`
	TargetLanguage string          `json:"target_language,omitempty"`
}

func (t *Triggers) CreateAndEnqueue(ctx context.Context, req CreateRequest) (*jobs.Job, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidInput, req.Type)
	}
	if len(req.Input) > 0 && !json.Valid(req.Input) {
		return nil, fmt.Errorf("%w: input is not valid JSON", ErrInvalidInput)
	}
	job, err := t.store.CreateJob(ctx, &jobs.Job{
		Type:           req.Type,
		Status:         jobs.StatusPending,
		InputPayload:   req.Input,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	t.enqueue(job.ID, jobs.EnqueueOptions{})
	log.Info("[Triggers] created %s job %s", job.Type, job.ID)
	return job, nil
}

// Rerun resets a finished or stuck job to pending, clears its error and queues it again.
func (t *Triggers) Rerun(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := t.store.UpdateJob(ctx, jobID, func(j *jobs.Job) error {
		if j.Status == jobs.StatusRunning {
			return fmt.Errorf("%w: job %s is running", ErrConflict, j.ID)
		}
		j.Status = jobs.StatusPending
		j.Step = ""
		j.Error = nil
		j.CompletedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.enqueue(job.ID, jobs.EnqueueOptions{})
	log.Info("[Triggers] job %s queued for rerun", job.ID)
	return job, nil
}

// Cancel stops a job that has not completed. Workers skip cancelled jobs.
func (t *Triggers) Cancel(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := t.store.UpdateJob(ctx, jobID, func(j *jobs.Job) error {
		if j.Status == jobs.StatusCompleted {
			return fmt.Errorf("%w: job %s already completed", ErrConflict, j.ID)
		}
		j.Status = jobs.StatusFailed
		j.Step = jobs.StepCancelled
		j.Error = &jobs.ErrorInfo{Message: "Job cancelled by user"}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("[Triggers] job %s cancelled", job.ID)
	return job, nil
}

// PublishResult is what a publish event queued.
type PublishResult struct {
	Translation *tracking.PublishResult `json:"translation"`
	SyncJobID   string                  `json:"sync_job_id,omitempty"`
}

// Publish handles a document publish: stale translations are queued and the document is
// synced to the agent workspace.
func (t *Triggers) Publish(ctx context.Context, collection, id string) (*PublishResult, error) {
	sourceType, err := sourceTypeOf(collection)
	if err != nil {
		return nil, err
	}
	doc, err := t.docs.FindByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	translation, err := t.tracking.OnPublish(ctx, collection, doc, t.languages)
	if err != nil {
		return nil, err
	}
	result := &PublishResult{Translation: translation}
	if doc.String("_status") != "published" {
		return result, nil
	}

	input, err := json.Marshal(map[string]string{
		"sourceId":   id,
		"sourceType": string(sourceType),
		"collection": collection,
	})
	if err != nil {
		return nil, err
	}
	job, err := t.store.CreateJob(ctx, &jobs.Job{Type: jobs.TypeAgentSync, Status: jobs.StatusPending, InputPayload: input})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	t.enqueue(job.ID, jobs.EnqueueOptions{
		Attempts: syncAttempts,
		Backoff:  jobs.ExponentialBackoff(syncBackoff),
	})
	result.SyncJobID = job.ID
	log.Info("[Triggers] publish of %s/%s queued %d translations and sync job %s",
		collection, id, len(translation.JobIDs), job.ID)
	return result, nil
}

func (t *Triggers) enqueue(jobID string, opts jobs.EnqueueOptions) {
	t.queue.Enqueue(jobs.EnqueueRequest{Name: t.queueName, JobID: jobID, Options: opts})
}

func sourceTypeOf(collection string) (agentsync.SourceType, error) {
	switch collection {
	case docstore.CollectionPages:
		return agentsync.SourcePage, nil
	case docstore.CollectionPosts:
		return agentsync.SourcePost, nil
	}
	return "", fmt.Errorf("%w: collection %q cannot be published", ErrInvalidInput, collection)
}
