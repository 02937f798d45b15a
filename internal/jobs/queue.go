package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MimeLyc/content-orchestrator/pkg/log"
	"github.com/google/uuid"
)

// Executor processes one delivery. A returned error triggers redelivery until attempts run out.
type Executor func(ctx context.Context, task *Task) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the queue fails the task without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type QueueOption func(*Queue)

// WithMaxTasks bounds how many terminal tasks are kept in memory and in the store.
func WithMaxTasks(n int) QueueOption {
	return func(q *Queue) { q.maxTasks = n }
}

// WithDefaultOptions fills attempts and backoff for requests that leave them unset.
func WithDefaultOptions(opts EnqueueOptions) QueueOption {
	return func(q *Queue) { q.defaults = opts }
}

// Queue delivers job ids to a fixed pool of workers with at-least-once semantics.
//
// Over a plain TaskStore the queue owns its tasks: it loads them once at construction and
// dispatches from memory. Over a SharedTaskStore the store owns them: workers claim due tasks
// from it, so tasks stored by other processes are picked up and no task runs in two places.
type Queue struct {
	workerCount int
	maxTasks    int
	store       TaskStore
	defaults    EnqueueOptions

	shared SharedTaskStore
	owner  string
	poll   time.Duration
	lease  time.Duration
	wake   chan struct{}

	mu       sync.RWMutex
	tasks    map[string]*Task
	dedupe   map[string]string
	timers   map[string]*time.Timer
	started  bool
	ready    chan string
	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(workerCount int, store TaskStore, opts ...QueueOption) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		maxTasks:    1000,
		store:       store,
		defaults:    EnqueueOptions{Attempts: 1},
		tasks:       make(map[string]*Task),
		dedupe:      make(map[string]string),
		timers:      make(map[string]*time.Timer),
		ready:       make(chan string, 1024),
		owner:       uuid.NewString(),
		poll:        defaultPollInterval,
		lease:       defaultLease,
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if shared, ok := store.(SharedTaskStore); ok {
		q.shared = shared
		return q
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue adds a delivery for req.JobID. A DedupeKey matching an active task returns that
// task and false.
func (q *Queue) Enqueue(req EnqueueRequest) (*Task, bool) {
	now := time.Now()
	opts := q.withDefaults(req.Options)

	if q.shared != nil {
		return q.enqueueShared(&Task{
			ID:          uuid.NewString(),
			Name:        req.Name,
			JobID:       req.JobID,
			DedupeKey:   opts.DedupeKey,
			Status:      TaskPending,
			MaxAttempts: opts.Attempts,
			Backoff:     opts.Backoff,
			RunAt:       now.Add(opts.Delay),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	q.mu.Lock()
	if opts.DedupeKey != "" {
		if id, ok := q.dedupe[opts.DedupeKey]; ok {
			if existing, exists := q.tasks[id]; exists {
				snapshot := cloneTask(existing)
				q.mu.Unlock()
				return snapshot, false
			}
			delete(q.dedupe, opts.DedupeKey)
		}
	}

	task := &Task{
		ID:          uuid.NewString(),
		Name:        req.Name,
		JobID:       req.JobID,
		DedupeKey:   opts.DedupeKey,
		Status:      TaskPending,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		RunAt:       now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.tasks[task.ID] = task
	if task.DedupeKey != "" {
		q.dedupe[task.DedupeKey] = task.ID
	}
	started := q.started
	snapshot := cloneTask(task)
	q.mu.Unlock()

	q.persistTask(snapshot)
	if started {
		q.schedule(task.ID, snapshot.RunAt)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*Task, bool) {
	if q.shared != nil {
		for _, task := range q.listShared() {
			if task.ID == id {
				return task, true
			}
		}
		return nil, false
	}
	q.mu.RLock()
	task, ok := q.tasks[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneTask(task), true
}

func (q *Queue) List() []*Task {
	if q.shared != nil {
		return q.listShared()
	}
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		ret = append(ret, cloneTask(task))
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

// Start launches the workers and schedules every pending task.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	if q.shared != nil {
		q.mu.Unlock()
		for range q.workerCount {
			q.wg.Add(1)
			go q.sharedWorker(exec)
		}
		return
	}

	type due struct {
		id    string
		runAt time.Time
	}
	pending := make([]due, 0)
	for id, task := range q.tasks {
		if task.Status == TaskPending {
			pending = append(pending, due{id: id, runAt: task.RunAt})
		}
	}
	q.mu.Unlock()

	for _, p := range pending {
		q.schedule(p.id, p.runAt)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels in-flight executions and waits for workers to return. Tasks still pending
// stay in the store for the next start.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		for id, timer := range q.timers {
			timer.Stop()
			delete(q.timers, id)
		}
		q.mu.Unlock()

		close(q.stopCh)
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.ready:
			task, ok := q.markRunning(id)
			if !ok {
				continue
			}

			err := q.safeExec(exec, task)
			if err != nil {
				q.markFailed(id, err)
				continue
			}
			q.markCompleted(id)
		}
	}
}

func (q *Queue) safeExec(exec Executor, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("[Queue] task %s panicked: %v", task.ID, r)
			err = Permanent(errors.New("executor panic"))
		}
	}()
	return exec(q.ctx, task)
}

func (q *Queue) schedule(id string, runAt time.Time) {
	delay := time.Until(runAt)
	if delay <= 0 {
		q.push(id)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.stopCh:
		return
	default:
	}
	q.timers[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, id)
		q.mu.Unlock()
		q.push(id)
	})
}

func (q *Queue) push(id string) {
	select {
	case q.ready <- id:
	default:
		go func() {
			select {
			case q.ready <- id:
			case <-q.stopCh:
			}
		}()
	}
}

func (q *Queue) markRunning(id string) (*Task, bool) {
	q.mu.Lock()
	task, ok := q.tasks[id]
	if !ok || task.Status != TaskPending {
		q.mu.Unlock()
		return nil, false
	}
	task.Status = TaskRunning
	task.Attempt++
	task.UpdatedAt = time.Now()
	snapshot := cloneTask(task)
	q.mu.Unlock()

	q.persistTask(snapshot)
	return snapshot, true
}

func (q *Queue) markCompleted(id string) {
	q.mu.Lock()
	task, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	task.Status = TaskCompleted
	task.Error = ""
	task.UpdatedAt = time.Now()
	q.releaseDedupeLocked(task)
	pruned := q.pruneTerminalTasksLocked()
	snapshot := cloneTask(task)
	q.mu.Unlock()

	q.persistTask(snapshot)
	q.deleteTasksFromStore(pruned)
}

func (q *Queue) markFailed(id string, err error) {
	now := time.Now()

	q.mu.Lock()
	task, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	if err != nil {
		task.Error = err.Error()
	}
	task.UpdatedAt = now

	stopping := q.ctx.Err() != nil
	if !IsPermanent(err) && (task.Attempt < task.MaxAttempts || stopping) {
		// a shutdown interrupts the attempt, it does not consume it
		if stopping {
			task.Attempt--
		}
		task.Status = TaskPending
		task.RunAt = now.Add(task.Backoff.Strategy().Delay(task.Attempt))
		snapshot := cloneTask(task)
		q.mu.Unlock()

		log.Warn("[Queue] task %s for job %s failed (attempt %d/%d), retry at %s: %v",
			snapshot.ID, snapshot.JobID, snapshot.Attempt, snapshot.MaxAttempts, snapshot.RunAt.Format(time.RFC3339), err)
		q.persistTask(snapshot)
		if !stopping {
			q.schedule(id, snapshot.RunAt)
		}
		return
	}

	task.Status = TaskFailed
	q.releaseDedupeLocked(task)
	pruned := q.pruneTerminalTasksLocked()
	snapshot := cloneTask(task)
	q.mu.Unlock()

	log.Error("[Queue] task %s for job %s failed permanently after %d attempt(s): %v",
		snapshot.ID, snapshot.JobID, snapshot.Attempt, err)
	q.persistTask(snapshot)
	q.deleteTasksFromStore(pruned)
}

func (q *Queue) withDefaults(opts EnqueueOptions) EnqueueOptions {
	if opts.Attempts <= 0 {
		opts.Attempts = q.defaults.Attempts
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Backoff.Type == "" && opts.Backoff.Delay == 0 {
		opts.Backoff = q.defaults.Backoff
	}
	return opts
}

func (q *Queue) releaseDedupeLocked(task *Task) {
	if task == nil || task.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[task.DedupeKey]; ok && id == task.ID {
		delete(q.dedupe, task.DedupeKey)
	}
}

func (q *Queue) pruneTerminalTasksLocked() []string {
	if q.maxTasks <= 0 || len(q.tasks) <= q.maxTasks {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.tasks))
	for id, task := range q.tasks {
		if task.Status == TaskCompleted || task.Status == TaskFailed {
			terminal = append(terminal, candidate{id: id, updatedAt: task.UpdatedAt})
		}
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := min(len(q.tasks)-q.maxTasks, len(terminal))
	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := terminal[i].id
		q.releaseDedupeLocked(q.tasks[id])
		delete(q.tasks, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func (q *Queue) deleteTasksFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteTask(context.Background(), id); err != nil {
			log.Error("[Queue] failed to delete pruned task %s from store: %v", id, err)
		}
	}
}

func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadTasks(ctx)
	if err != nil {
		log.Error("[Queue] failed to load tasks from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*Task, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		task := cloneTask(raw)
		if task.Status == TaskRunning {
			task.Status = TaskPending
			task.RunAt = now
			task.UpdatedAt = now
			toPersist = append(toPersist, cloneTask(task))
		}
		q.tasks[task.ID] = task
		if task.Status == TaskPending && task.DedupeKey != "" {
			q.dedupe[task.DedupeKey] = task.ID
		}
	}
	q.mu.Unlock()

	for _, task := range toPersist {
		q.persistTask(task)
	}
}

func (q *Queue) persistTask(task *Task) {
	if q.store == nil || task == nil {
		return
	}
	if err := q.store.UpsertTask(context.Background(), task); err != nil {
		log.Error("[Queue] failed to persist task %s: %v", task.ID, err)
	}
}
