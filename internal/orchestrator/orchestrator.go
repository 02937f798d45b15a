// Package orchestrator runs jobs: it dispatches each job type to its handler, persists status
// transitions and keeps parent jobs in step with their children.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/agentsync"
	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/internal/news"
	"github.com/MimeLyc/content-orchestrator/internal/tracking"
	"github.com/MimeLyc/content-orchestrator/internal/translator"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

// Handler processes one job type. On success it marks the job completed itself, unless the
// job stays running until its children finish.
type Handler interface {
	Handle(ctx context.Context, job *jobs.Job) error
}

type HandlerFunc func(ctx context.Context, job *jobs.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *jobs.Job) error {
	return f(ctx, job)
}

// FailureHook is implemented by handlers that keep external state in step with a failed job.
type FailureHook interface {
	OnFailure(ctx context.Context, job *jobs.Job, err error)
}

type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.Task, bool)
}

// SettingsProvider returns the current news automation settings.
type SettingsProvider interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
}

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Store      jobs.Store
	Docs       docstore.Store
	Queue      Enqueuer
	QueueName  string
	Generator  llm.Generator
	Registry   *content.Registry
	Media      content.MediaStorer
	Translator *translator.Translator
	Tracking   *tracking.Service
	AgentSync  *agentsync.Client
	NewsSource news.Source
	Settings   SettingsProvider
	Languages  []string
	ServerURL  string
	Retry      config.RetryConfig
	Now        func() time.Time
}

type Option func(*Orchestrator)

// WithHandler replaces the handler of one job type.
func WithHandler(t jobs.Type, h Handler) Option {
	return func(o *Orchestrator) { o.handlers[t] = h }
}

type Orchestrator struct {
	deps     Deps
	handlers map[jobs.Type]Handler

	planner   *content.Planner
	builder   *content.PageBuilder
	reviewer  *content.Reviewer
	seo       *content.SEOBuilder
	processor *content.PostProcessor
	fetcher   *news.Fetcher
	rewriter  *news.Processor
}

// New wires the default handlers and checks that every job type has one.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil || deps.Docs == nil || deps.Queue == nil {
		return nil, fmt.Errorf("orchestrator requires a job store, document store and queue")
	}
	if deps.Registry == nil {
		deps.Registry = content.DefaultRegistry()
	}
	if deps.Translator == nil {
		deps.Translator = translator.New(deps.Generator, nil)
	}
	if deps.Tracking == nil {
		deps.Tracking = tracking.NewService(deps.Docs, deps.Store, deps.Queue, deps.QueueName)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	o := &Orchestrator{
		deps:      deps,
		planner:   content.NewPlanner(deps.Generator, deps.Registry),
		builder:   content.NewPageBuilder(deps.Generator, deps.Registry),
		reviewer:  content.NewReviewer(deps.Generator),
		seo:       content.NewSEOBuilder(deps.Generator),
		processor: content.NewPostProcessor(deps.Registry, deps.Docs, deps.Media),
		rewriter:  news.NewProcessor(deps.Docs, deps.Generator),
	}
	if deps.NewsSource != nil {
		o.fetcher = news.NewFetcher(deps.Docs, deps.NewsSource)
	}

	o.handlers = map[jobs.Type]Handler{
		jobs.TypeGenerateWebsite:        HandlerFunc(o.handleGenerateWebsite),
		jobs.TypeGeneratePage:           HandlerFunc(o.handleGeneratePage),
		jobs.TypeRegeneratePage:         HandlerFunc(o.handleRegeneratePage),
		jobs.TypeTranslateDocument:      &translateHandler{o: o},
		jobs.TypeBulkKeywordGeneration:  HandlerFunc(o.handleBulkKeywords),
		jobs.TypeAgentSync:              HandlerFunc(o.handleAgentSync),
		jobs.TypeIndustryNewsAutomation: HandlerFunc(o.handleNewsAutomation),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := checkCoverage(o.handlers); err != nil {
		return nil, err
	}
	return o, nil
}

func checkCoverage(handlers map[jobs.Type]Handler) error {
	for _, t := range jobs.AllTypes {
		if handlers[t] == nil {
			return fmt.Errorf("no handler registered for job type %s", t)
		}
	}
	for t := range handlers {
		if !t.Valid() {
			return fmt.Errorf("handler registered for unknown job type %q", t)
		}
	}
	return nil
}

// Run executes the job once. A completed or cancelled job is left untouched. A handler error
// is persisted on the job and returned.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.deps.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == jobs.StatusCompleted {
		log.Info("[Orchestrator] job %s already completed, skipping", jobID)
		return nil
	}
	if job.Cancelled() {
		log.Info("[Orchestrator] job %s was cancelled, skipping", jobID)
		return nil
	}

	handler, ok := o.handlers[job.Type]
	if !ok {
		err := NewError(ErrInput, fmt.Sprintf("unknown job type %q", job.Type))
		return o.fail(ctx, job, nil, err)
	}

	job, err = o.deps.Store.UpdateJob(ctx, jobID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.Step = jobs.StepInitialization
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark job %s running: %w", jobID, err)
	}
	log.Info("[Orchestrator] starting job %s of type %s", jobID, job.Type)

	if err := SafeExecute(func() error { return handler.Handle(ctx, job) }); err != nil {
		return o.fail(ctx, job, handler, err)
	}

	done, err := o.deps.Store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to reload job %s: %w", jobID, err)
	}
	if done.Status == jobs.StatusCompleted && done.ParentJob != "" {
		o.countChild(ctx, done)
	}
	log.Info("[Orchestrator] job %s finished with status %s", jobID, done.Status)
	return nil
}

// countChild adds a completed child to its parent's progress unless an earlier run of the
// same child already did.
func (o *Orchestrator) countChild(ctx context.Context, child *jobs.Job) {
	_, err := o.deps.Store.UpdateJob(ctx, child.ID, func(j *jobs.Job) error {
		if j.ParentCounted {
			return errChildCounted
		}
		j.ParentCounted = true
		return nil
	})
	if errors.Is(err, errChildCounted) {
		log.Info("[Orchestrator] child %s already counted on parent %s", child.ID, child.ParentJob)
		return
	}
	if err != nil {
		log.Error("[Orchestrator] failed to mark child %s counted: %v", child.ID, err)
		return
	}

	parent, changed, err := o.deps.Store.IncrementProcessed(ctx, child.ParentJob)
	if err != nil {
		log.Error("[Orchestrator] failed to count child %s on parent %s: %v", child.ID, child.ParentJob, err)
	} else if changed {
		log.Info("[Orchestrator] parent %s progress: %d/%d", parent.ID, parent.ProcessedKeywords, parent.TotalKeywords)
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *jobs.Job, handler Handler, cause error) error {
	message, stack := ErrorInfo(cause)
	log.Error("[Orchestrator] job %s failed: %s", job.ID, message)

	retry := false
	var delay time.Duration
	updated, err := o.deps.Store.UpdateJob(ctx, job.ID, func(j *jobs.Job) error {
		j.RetryCount++
		j.Error = &jobs.ErrorInfo{Message: message, Stack: stack}
		if o.deps.Retry.Enabled && IsRetryable(cause) && j.RetryCount <= o.deps.Retry.MaxRetries {
			retry = true
			delay = retryDelay(o.deps.Retry.BaseDelayMS, j.RetryCount)
			j.Status = jobs.StatusPending
			j.Step = jobs.StepRetryPending
			return nil
		}
		retry = false
		j.Status = jobs.StatusFailed
		j.Step = jobs.StepFailed
		return nil
	})
	if err != nil {
		log.Error("[Orchestrator] failed to persist failure of job %s: %v", job.ID, err)
		return errors.Join(cause, err)
	}

	if retry {
		o.deps.Queue.Enqueue(jobs.EnqueueRequest{
			Name:    o.deps.QueueName,
			JobID:   job.ID,
			Options: jobs.EnqueueOptions{Delay: delay},
		})
		log.Warn("[Orchestrator] job %s scheduled for retry %d/%d in %s", job.ID, updated.RetryCount, o.deps.Retry.MaxRetries, delay)
		return cause
	}

	if hook, ok := handler.(FailureHook); ok {
		hook.OnFailure(ctx, updated, cause)
	}
	if updated.ParentJob != "" {
		o.failParent(ctx, updated.ParentJob, job.ID, message)
	}
	return cause
}

// failParent marks the direct parent failed. Completed parents are left alone.
func (o *Orchestrator) failParent(ctx context.Context, parentID, childID, reason string) {
	_, err := o.deps.Store.UpdateJob(ctx, parentID, func(p *jobs.Job) error {
		if p.Status == jobs.StatusCompleted {
			return errParentCompleted
		}
		p.Status = jobs.StatusFailed
		p.Step = jobs.StepFailed
		p.Error = &jobs.ErrorInfo{Message: fmt.Sprintf("Child job %s failed: %s", childID, reason)}
		return nil
	})
	if err != nil && !errors.Is(err, errParentCompleted) {
		log.Error("[Orchestrator] failed to mark parent %s failed: %v", parentID, err)
	}
}

var (
	errParentCompleted = errors.New("parent already completed")
	errChildCounted    = errors.New("child already counted")
)

func retryDelay(baseMS, attempt int) time.Duration {
	if baseMS <= 0 {
		baseMS = 1000
	}
	return time.Duration(float64(baseMS)*math.Pow(2, float64(attempt-1))) * time.Millisecond
}

// setStep records progress on the job.
func (o *Orchestrator) setStep(ctx context.Context, jobID, step string) error {
	return o.update(ctx, jobID, func(j *jobs.Job) error {
		j.Step = step
		return nil
	})
}

func (o *Orchestrator) update(ctx context.Context, jobID string, fn func(*jobs.Job) error) error {
	if _, err := o.deps.Store.UpdateJob(ctx, jobID, fn); err != nil {
		return WrapError(err, ErrPersistence, "failed to update job").WithContext("job", jobID)
	}
	return nil
}

// complete marks the job completed with output.
func (o *Orchestrator) complete(ctx context.Context, jobID, step string, output any) error {
	return o.update(ctx, jobID, func(j *jobs.Job) error {
		if output != nil {
			if err := j.SetOutput(output); err != nil {
				return err
			}
		}
		j.MarkCompleted(step, o.deps.Now())
		return nil
	})
}

// spawn creates a pending job and returns it without enqueueing.
func (o *Orchestrator) spawn(ctx context.Context, t jobs.Type, parentID, targetLang string, input any) (*jobs.Job, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, WrapError(err, ErrInput, "failed to encode child input")
	}
	job, err := o.deps.Store.CreateJob(ctx, &jobs.Job{
		Type:           t,
		Status:         jobs.StatusPending,
		ParentJob:      parentID,
		TargetLanguage: targetLang,
		InputPayload:   payload,
	})
	if err != nil {
		return nil, WrapError(err, ErrPersistence, "failed to create child job").WithContext("type", t)
	}
	return job, nil
}

func (o *Orchestrator) enqueue(jobID string) {
	o.deps.Queue.Enqueue(jobs.EnqueueRequest{Name: o.deps.QueueName, JobID: jobID})
}

// Handler returns the handler registered for t.
func (o *Orchestrator) Handler(t jobs.Type) Handler {
	return o.handlers[t]
}
