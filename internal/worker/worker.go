// Package worker connects queue deliveries to the orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/orchestrator"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

// Runner executes one job by id.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

type Worker struct {
	store  jobs.Store
	runner Runner
}

func New(store jobs.Store, runner Runner) *Worker {
	return &Worker{store: store, runner: runner}
}

// Execute is a jobs.Executor. A nil return acknowledges the delivery; permanent errors stop
// queue-level redelivery.
func (w *Worker) Execute(ctx context.Context, task *jobs.Task) error {
	job, err := w.store.GetJob(ctx, task.JobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		return jobs.Permanent(fmt.Errorf("job %s: %w", task.JobID, err))
	}
	if err != nil {
		return err
	}
	if job.Terminal() {
		log.Info("[Worker] job %s is %s, acknowledging task %s", job.ID, job.Status, task.ID)
		return nil
	}

	runErr := w.runner.Run(ctx, task.JobID)
	if runErr == nil {
		return nil
	}

	after, err := w.store.GetJob(ctx, task.JobID)
	if err == nil && after.Step == jobs.StepRetryPending {
		// the orchestrator already queued a delayed retry
		return nil
	}
	if err == nil && after.Status != jobs.StatusFailed {
		w.markFailed(ctx, task.JobID, runErr)
	}
	if !orchestrator.IsRetryable(runErr) {
		return jobs.Permanent(runErr)
	}
	return runErr
}

// markFailed covers errors raised before the orchestrator could persist the failure itself.
func (w *Worker) markFailed(ctx context.Context, jobID string, cause error) {
	message, stack := orchestrator.ErrorInfo(cause)
	_, err := w.store.UpdateJob(ctx, jobID, func(j *jobs.Job) error {
		if j.Terminal() {
			return nil
		}
		j.Status = jobs.StatusFailed
		j.Step = jobs.StepFailed
		j.Error = &jobs.ErrorInfo{Message: message, Stack: stack}
		return nil
	})
	if err != nil {
		log.Error("[Worker] failed to mark job %s failed: %v", jobID, err)
	}
}
