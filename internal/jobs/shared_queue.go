package jobs

import (
	"context"
	"sort"
	"time"

	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	defaultPollInterval = time.Second
	defaultLease        = 2 * time.Minute
)

// WithPollInterval sets how often idle workers look for tasks other processes stored. Only
// used with a SharedTaskStore.
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// WithLease sets how long a claim survives without renewal. Running tasks renew it every
// third of the lease, so only a crashed worker lets it lapse.
func WithLease(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// Owner identifies this queue's claims in a shared task store.
func (q *Queue) Owner() string {
	return q.owner
}

func (q *Queue) enqueueShared(task *Task) (*Task, bool) {
	stored, inserted, err := q.shared.InsertTask(context.Background(), task)
	if err != nil {
		log.Error("[Queue] failed to store task for job %s: %v", task.JobID, err)
		return nil, false
	}
	if inserted {
		q.wakeWorker()
	}
	return stored, inserted
}

func (q *Queue) wakeWorker() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) sharedWorker(exec Executor) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		task, err := q.shared.ClaimTask(q.ctx, q.owner, time.Now(), q.lease)
		if err != nil && q.ctx.Err() == nil {
			log.Error("[Queue] failed to claim task: %v", err)
		}
		if task != nil {
			q.runClaimed(exec, task)
			continue
		}

		select {
		case <-q.stopCh:
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// runClaimed executes a claimed task while keeping its lease alive, then records the outcome.
func (q *Queue) runClaimed(exec Executor, task *Task) {
	done := make(chan struct{})
	go q.renewLease(task.ID, done)

	err := q.safeExec(exec, task)
	close(done)

	now := time.Now()
	task.UpdatedAt = now
	terminal := false
	switch {
	case err == nil:
		task.Status = TaskCompleted
		task.Error = ""
		terminal = true
	default:
		task.Error = err.Error()
		stopping := q.ctx.Err() != nil
		if !IsPermanent(err) && (task.Attempt < task.MaxAttempts || stopping) {
			// a shutdown interrupts the attempt, it does not consume it
			if stopping {
				task.Attempt--
			}
			task.Status = TaskPending
			task.RunAt = now.Add(task.Backoff.Strategy().Delay(task.Attempt))
			log.Warn("[Queue] task %s for job %s failed (attempt %d/%d), retry at %s: %v",
				task.ID, task.JobID, task.Attempt, task.MaxAttempts, task.RunAt.Format(time.RFC3339), err)
		} else {
			task.Status = TaskFailed
			terminal = true
			log.Error("[Queue] task %s for job %s failed permanently after %d attempt(s): %v",
				task.ID, task.JobID, task.Attempt, err)
		}
	}

	// the outcome is written even while stopping, so it gets a context of its own
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	held, relErr := q.shared.ReleaseTask(ctx, task, q.owner)
	if relErr != nil {
		log.Error("[Queue] failed to record outcome of task %s: %v", task.ID, relErr)
		return
	}
	if !held {
		log.Warn("[Queue] lease on task %s was lost before it finished, outcome dropped", task.ID)
		return
	}
	if terminal {
		if err := q.shared.PruneTasks(ctx, q.maxTasks); err != nil {
			log.Error("[Queue] failed to prune tasks: %v", err)
		}
	}
}

func (q *Queue) renewLease(taskID string, done <-chan struct{}) {
	ticker := time.NewTicker(q.lease / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := q.shared.RenewLease(context.Background(), taskID, q.owner, time.Now().Add(q.lease)); err != nil {
				log.Warn("[Queue] failed to renew lease on task %s: %v", taskID, err)
			}
		}
	}
}

func (q *Queue) listShared() []*Task {
	tasks, err := q.shared.LoadTasks(q.ctx)
	if err != nil {
		log.Error("[Queue] failed to list tasks: %v", err)
		return []*Task{}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}
